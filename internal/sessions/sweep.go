package sessions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SweepStats summarizes one reclamation pass.
type SweepStats struct {
	Scanned int `json:"scanned"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Sweep removes session directories older than the store's max age.
func (s *Store) Sweep(ctx context.Context) (SweepStats, error) {
	return s.sweep(ctx, s.root, s.maxAge)
}

// SweepRoot removes session directories under root older than maxAge.
// It serves one-off reclamation of a root that no running store owns.
func (s *Store) SweepRoot(ctx context.Context, root string, maxAge time.Duration) (SweepStats, error) {
	return s.sweep(ctx, root, maxAge)
}

func (s *Store) sweep(ctx context.Context, root string, maxAge time.Duration) (SweepStats, error) {
	var stats SweepStats

	entries, err := os.ReadDir(root)
	if err != nil {
		return stats, fmt.Errorf("read upload root: %w", err)
	}

	now := s.now()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !e.IsDir() {
			continue
		}
		stats.Scanned++

		dir := filepath.Join(root, e.Name())
		age := now.Sub(s.createdAt(e.Name(), dir))
		if age <= maxAge {
			continue
		}

		if err := os.RemoveAll(dir); err != nil {
			stats.Failed++
			s.logger.Error("sessions.sweep.remove_error", "dir", dir, "error", err)
			continue
		}
		s.forget(e.Name())
		stats.Removed++
		s.logger.Info("sessions.sweep.removed", "session_id", e.Name(), "age", age.Round(time.Second).String())
	}

	s.logger.Debug("sessions.sweep.done", "scanned", stats.Scanned, "removed", stats.Removed, "failed", stats.Failed)
	return stats, nil
}

// Sweeper runs Sweep on a fixed interval.
type Sweeper struct {
	store    *Store
	interval time.Duration
}

// NewSweeper creates a sweeper for store.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, interval: interval}
}

// Run sweeps once immediately and then every interval until ctx is done.
// Sweep errors are logged, never returned.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.store.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.store.logger.Error("sessions.sweep.error", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
