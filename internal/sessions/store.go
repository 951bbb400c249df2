// Package sessions keeps uploaded documents in per-client directories and
// reclaims them after they expire.
package sessions

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/taxform-extractor/internal/types"
)

// markerFile records the creation time of a session directory.
const markerFile = ".session"

var (
	// ErrNotFound is returned when a file id does not exist in the session
	ErrNotFound = errors.New("file not found")
	// ErrInvalidID is returned for ids that are not plain file names
	ErrInvalidID = errors.New("invalid file id")
)

// Option configures a Store
type Option func(*Store)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store manages session directories under a root directory. Each session
// owns one subdirectory named by its token.
type Store struct {
	root   string
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	created map[string]time.Time
}

// NewStore creates the root directory if needed.
func NewStore(root string, maxAge time.Duration, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("upload root is required")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("session max age must be positive")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}

	s := &Store{
		root:    root,
		maxAge:  maxAge,
		now:     time.Now,
		logger:  slog.Default(),
		created: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the directory holding all sessions.
func (s *Store) Root() string {
	return s.root
}

// MaxAge returns the age after which sessions are reclaimed.
func (s *Store) MaxAge() time.Duration {
	return s.maxAge
}

// Resolve returns the session for token when its directory still exists.
// Otherwise it starts a new session; created reports which happened.
func (s *Store) Resolve(token string) (session *types.Session, created bool, err error) {
	if validToken(token) {
		dir := filepath.Join(s.root, token)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return &types.Session{ID: token, Dir: dir, CreatedAt: s.createdAt(token, dir)}, false, nil
		}
	}

	id := uuid.NewString()
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, false, fmt.Errorf("create session directory: %w", err)
	}

	now, err := s.mark(id, dir)
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("sessions.created", "session_id", id)
	return &types.Session{ID: id, Dir: dir, CreatedAt: now}, true, nil
}

// Clear removes the session directory and everything in it. Clearing a
// session that no longer exists is not an error.
func (s *Store) Clear(session *types.Session) error {
	if err := os.RemoveAll(session.Dir); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.forget(session.ID)
	s.logger.Info("sessions.cleared", "session_id", session.ID)
	return nil
}

// Reset empties the session directory and restarts its lifetime. The token
// stays valid.
func (s *Store) Reset(session *types.Session) error {
	if err := os.RemoveAll(session.Dir); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	if err := os.MkdirAll(session.Dir, 0o750); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	now, err := s.mark(session.ID, session.Dir)
	if err != nil {
		return err
	}
	session.CreatedAt = now
	return nil
}

// mark records now as the creation time of the session in dir.
func (s *Store) mark(id, dir string) (time.Time, error) {
	now := s.now()
	if err := os.WriteFile(filepath.Join(dir, markerFile), []byte(now.UTC().Format(time.RFC3339Nano)), 0o600); err != nil {
		return time.Time{}, fmt.Errorf("write session marker: %w", err)
	}

	s.mu.Lock()
	s.created[id] = now
	s.mu.Unlock()
	return now, nil
}

// Path returns the absolute path of a stored file.
func (s *Store) Path(session *types.Session, id string) (string, error) {
	if !validID(id) {
		return "", ErrInvalidID
	}
	path := filepath.Join(session.Dir, id)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", id, err)
	}
	return path, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(session *types.Session, id string) (*os.File, error) {
	path, err := s.Path(session, id)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete removes one stored file.
func (s *Store) Delete(session *types.Session, id string) error {
	path, err := s.Path(session, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// List returns the stored files of a session sorted by id.
func (s *Store) List(session *types.Session) ([]types.UploadedFile, error) {
	entries, err := os.ReadDir(session.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []types.UploadedFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list session: %w", err)
	}

	files := make([]types.UploadedFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == markerFile {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, types.UploadedFile{
			ID:     e.Name(),
			Name:   e.Name(),
			Size:   info.Size(),
			Status: types.UploadStatusUploaded,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files, nil
}

// UniqueName returns desired, or the first of name_1.ext, name_2.ext, ...
// that does not exist in dir.
func UniqueName(dir, desired string) (string, error) {
	ext := filepath.Ext(desired)
	stem := strings.TrimSuffix(desired, ext)

	candidate := desired
	for i := 1; ; i++ {
		_, err := os.Lstat(filepath.Join(dir, candidate))
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("probe %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
}

func (s *Store) createdAt(id, dir string) time.Time {
	s.mu.Lock()
	t, ok := s.created[id]
	s.mu.Unlock()
	if ok {
		return t
	}
	return diskCreatedAt(dir)
}

func (s *Store) forget(id string) {
	s.mu.Lock()
	delete(s.created, id)
	s.mu.Unlock()
}

// diskCreatedAt reads the marker file, falling back to the directory
// modification time.
func diskCreatedAt(dir string) time.Time {
	if data, err := os.ReadFile(filepath.Join(dir, markerFile)); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data))); err == nil {
			return t
		}
	}
	if info, err := os.Stat(dir); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

// validToken accepts canonical UUID strings only, so a token can never
// name a path outside the root.
func validToken(token string) bool {
	parsed, err := uuid.Parse(token)
	return err == nil && parsed.String() == token
}

func validID(id string) bool {
	if id == "" || id == "." || id == ".." || id == markerFile {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}
