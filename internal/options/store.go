package options

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"

	"media-assistant/internal/logging"
)

// Listener is notified after options are saved. prev is nil on the initial
// Apply.
type Listener func(ctx context.Context, prev, next *Options) error

// Store owns the options file and the in-memory snapshot. Readers get an
// immutable snapshot; Save swaps it atomically.
type Store struct {
	path string
	lock *flock.Flock

	current atomic.Pointer[Options]
	catchup atomic.Pointer[CatchupSet]

	mu        sync.Mutex
	listeners []Listener
}

// Open loads the options file at path. A missing file yields defaults.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}

	opts, exists, err := Load(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		logging.Info("Options file %s not found, using defaults", path)
	}
	s.publish(opts)
	return s, nil
}

// NewMemoryStore returns a Store that is never written to disk.
func NewMemoryStore(opts Options) *Store {
	s := &Store{}
	opts.normalize()
	s.publish(&opts)
	return s
}

// Load reads, normalizes and validates the options file. The boolean result
// reports whether the file existed.
func Load(path string) (*Options, bool, error) {
	opts := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &opts, false, nil
		}
		return nil, false, fmt.Errorf("read options: %w", err)
	}

	if err := toml.Unmarshal(data, &opts); err != nil {
		return nil, true, fmt.Errorf("parse options: %w", err)
	}

	opts.normalize()
	if err := opts.Validate(); err != nil {
		return nil, true, err
	}
	return &opts, true, nil
}

// Path returns the options file path.
func (s *Store) Path() string {
	return s.path
}

// Current returns the current snapshot. Callers must not modify it.
func (s *Store) Current() *Options {
	return s.current.Load()
}

// Catchup returns the parsed catch-up task selection.
func (s *Store) Catchup() CatchupSet {
	if set := s.catchup.Load(); set != nil {
		return *set
	}
	return CatchupSet{}
}

// IsCatchupTaskSelected reports whether any of tasks runs on new items.
func (s *Store) IsCatchupTaskSelected(tasks ...CatchupTask) bool {
	return s.Catchup().Selected(tasks...)
}

// Subscribe registers a listener for saved options.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Apply runs every listener against the current snapshot, as after startup.
func (s *Store) Apply(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify(ctx, nil, s.Current())
}

// Save validates next, writes it to disk under the file lock, publishes it
// and notifies listeners. Listener errors are joined and returned after every
// listener ran.
func (s *Store) Save(ctx context.Context, next Options) error {
	next = next.Clone()
	next.normalize()
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if err := s.write(&next); err != nil {
			return err
		}
	}

	prev := s.Current()
	s.publish(&next)
	logging.Info("Options saved (catch-up tasks: %s)", describeOrNone(s.Catchup().Description()))

	if err := s.notify(ctx, prev, &next); err != nil {
		return fmt.Errorf("%w: %w", ErrNotApplied, err)
	}
	return nil
}

func (s *Store) publish(opts *Options) {
	set := ParseCatchupSet(opts.General.CatchupTaskScope)
	s.current.Store(opts)
	s.catchup.Store(&set)
}

func (s *Store) notify(ctx context.Context, prev, next *Options) error {
	var errs []error
	for _, l := range s.listeners {
		if err := l(ctx, prev, next); err != nil {
			logging.Error("Options listener failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) write(opts *Options) error {
	data, err := toml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create options directory: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock options: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			logging.Warn("Failed to release options lock: %v", err)
		}
	}()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write options: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace options: %w", err)
	}
	return nil
}

func describeOrNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
