package sessions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_RemovesOnlyExpired(t *testing.T) {
	store, clock := newTestStore(t)

	old, _, err := store.Resolve("")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	younger, _, err := store.Resolve("")
	require.NoError(t, err)
	clock.Advance(22 * time.Hour)
	fresh, _, err := store.Resolve("")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	stats, err := store.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepStats{Scanned: 3, Removed: 1}, stats)
	assert.NoDirExists(t, old.Dir)
	assert.DirExists(t, younger.Dir, "younger than max age")
	assert.DirExists(t, fresh.Dir)
}

func TestSweep_ExactlyMaxAgeIsKept(t *testing.T) {
	store, clock := newTestStore(t)

	s, _, err := store.Resolve("")
	require.NoError(t, err)
	clock.Advance(24 * time.Hour)

	stats, err := store.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Removed)
	assert.DirExists(t, s.Dir)
}

func TestSweep_MaxAgeBoundary(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		removed bool
	}{
		{"one second under max age", 24*time.Hour - time.Second, false},
		{"exactly max age", 24 * time.Hour, false},
		{"one second over max age", 24*time.Hour + time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, clock := newTestStore(t)

			s, _, err := store.Resolve("")
			require.NoError(t, err)
			clock.Advance(tt.age)

			stats, err := store.Sweep(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Scanned)
			if tt.removed {
				assert.Equal(t, 1, stats.Removed)
				assert.NoDirExists(t, s.Dir)
			} else {
				assert.Equal(t, 0, stats.Removed)
				assert.DirExists(t, s.Dir)
			}
		})
	}
}

func TestSweep_UsesMarkerAfterRestart(t *testing.T) {
	root := t.TempDir()
	clock := &fakeClock{now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}

	first, err := NewStore(root, 24*time.Hour, WithClock(clock.Now))
	require.NoError(t, err)
	s, _, err := first.Resolve("")
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	second, err := NewStore(root, 24*time.Hour, WithClock(clock.Now))
	require.NoError(t, err)

	stats, err := second.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Removed)
	assert.NoDirExists(t, s.Dir)
}

func TestSweepRoot_FallsBackToModTime(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "legacy")
	require.NoError(t, os.Mkdir(stale, 0o750))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	store, err := NewStore(t.TempDir(), time.Hour)
	require.NoError(t, err)

	stats, err := store.SweepRoot(context.Background(), root, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Removed)
	assert.NoDirExists(t, stale)
}

func TestSweeper_RunsImmediatelyAndStops(t *testing.T) {
	store, clock := newTestStore(t)
	s, _, err := store.Resolve("")
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(store, time.Hour).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(s.Dir)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
