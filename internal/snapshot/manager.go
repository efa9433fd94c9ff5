package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/msgindex/internal/cache"
	"github.com/tOgg1/msgindex/internal/logging"
)

const defaultDebounce = 1 * time.Second

// History receives a copy of every snapshot the Manager writes.
type History interface {
	Save(ctx context.Context, payload []byte) (string, error)
}

// Manager persists the cache state to a single JSON file. Writes are
// debounced, guarded by an advisory file lock and atomic via rename.
type Manager struct {
	path     string
	lockPath string
	history  History
	logger   zerolog.Logger

	// saveMu serializes writes so the last write carries the newest state.
	saveMu sync.Mutex

	mu        sync.Mutex
	state     cache.State
	dirty     bool
	timer     *time.Timer
	debounce  time.Duration
	lastWrite time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDebounce sets how long SaveSoon waits for further changes.
func WithDebounce(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithHistory mirrors each write into h.
func WithHistory(h History) ManagerOption {
	return func(m *Manager) {
		m.history = h
	}
}

// NewManager creates a Manager for path. An empty path disables writes.
func NewManager(path string, opts ...ManagerOption) *Manager {
	path = strings.TrimSpace(path)
	m := &Manager{
		path:     path,
		lockPath: path + ".lock",
		state:    cache.Empty(),
		debounce: defaultDebounce,
		logger:   logging.Component("snapshot"),
	}
	if path == "" {
		m.lockPath = ""
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Path() string { return m.path }

// LastWrite returns when the file was last written, zero if never.
func (m *Manager) LastWrite() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastWrite
}

// Load reads the file. A missing or empty file yields the empty state.
func (m *Manager) Load() (cache.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return m.state, nil
	}

	var loaded cache.State
	err := withFileLock(m.lockPath, func() error {
		payload, err := os.ReadFile(m.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				loaded = cache.Empty()
				return nil
			}
			return err
		}
		loaded, err = Decode(payload)
		return err
	})
	if err != nil {
		return cache.State{}, fmt.Errorf("load snapshot %s: %w", m.path, err)
	}

	m.state = loaded
	m.dirty = false
	return loaded, nil
}

// SaveSoon records s and schedules a write after the debounce interval.
// It never blocks on I/O.
func (m *Manager) SaveSoon(s cache.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.markDirtyLocked()
}

// Close flushes a pending write.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	// Wait for a write the timer already started.
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	needsSave := m.dirty
	m.mu.Unlock()
	if !needsSave {
		return nil
	}
	return m.saveLocked()
}

// SaveNow writes the latest recorded state immediately.
func (m *Manager) SaveNow() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	return m.saveLocked()
}

// saveLocked writes the state recorded at the time it runs. Callers hold
// saveMu.
func (m *Manager) saveLocked() error {
	m.mu.Lock()
	if m.path == "" {
		m.mu.Unlock()
		return nil
	}
	state := m.state
	m.dirty = false
	m.mu.Unlock()

	payload, err := Encode(state)
	if err != nil {
		return err
	}

	if err := withFileLock(m.lockPath, func() error {
		return writeAtomic(m.path, payload)
	}); err != nil {
		m.mu.Lock()
		m.dirty = true
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.lastWrite = time.Now().UTC()
	m.mu.Unlock()

	if m.history != nil {
		if _, err := m.history.Save(context.Background(), payload); err != nil {
			m.logger.Error().Err(err).Msg("failed to record snapshot history")
		}
	}
	return nil
}

// Write replaces the recorded state and writes it immediately.
func (m *Manager) Write(s cache.State) error {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	return m.SaveNow()
}

func (m *Manager) markDirtyLocked() {
	m.dirty = true
	if m.path == "" {
		return
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.debounce, func() {
			if err := m.SaveNow(); err != nil {
				m.logger.Error().Err(err).Str("path", m.path).Msg("failed to save snapshot")
			}
		})
		return
	}
	_ = m.timer.Reset(m.debounce)
}

func withFileLock(lockPath string, fn func() error) error {
	if strings.TrimSpace(lockPath) == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

func writeAtomic(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
