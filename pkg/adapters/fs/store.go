// Package fs provides a file-backed kv.Storage.
//
// All keys live in one JSON object file. Every mutation re-reads the file,
// applies the change and replaces the file atomically while holding a lock
// file, so several processes can share the same storage the way browser tabs
// share localStorage.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/kv"
)

// DefaultFileName is the storage file name used when Config.Path is a directory.
const DefaultFileName = "storage.json"

// Config holds the configuration for the file storage.
type Config struct {
	Path         string // storage file, or an existing directory to hold DefaultFileName
	Logger       *slog.Logger
	ErrorHandler func(error) // receives watcher errors
	ReadOnly     bool
	LockTimeout  time.Duration
}

// Store implements kv.Storage on top of a single JSON file.
type Store struct {
	Path   string
	config Config
	lock   fileLock
	logger *slog.Logger

	mu            sync.Mutex
	snapshot      map[string]string // last content written or reconciled by this handle
	watcherActive bool
	lastReconcile *time.Time
}

// New creates a Store. The file is created lazily on the first write.
func New(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	path, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Store{
		Path:   path,
		config: config,
		lock:   fileLock{path: path + ".lock", timeout: config.LockTimeout},
		logger: logger,
	}
	s.snapshot = s.readDisk()
	return s, nil
}

// readFile is swapped in tests to simulate I/O failures.
var readFile = os.ReadFile

// loadDisk loads the file. A missing file is empty; a corrupted file is
// treated as empty too and reported as a warning. Any other read failure is
// returned so writers never replace content they could not see.
func (s *Store) loadDisk() (map[string]string, error) {
	data := make(map[string]string)
	raw, err := readFile(s.Path)
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return data, fmt.Errorf("failed to read storage %s: %w", s.Path, err)
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn("corrupted storage, treating as empty", "path", s.Path, "error", err)
		return make(map[string]string), nil
	}
	return data, nil
}

// readDisk is loadDisk for readers: read failures degrade to empty.
func (s *Store) readDisk() map[string]string {
	data, err := s.loadDisk()
	if err != nil {
		s.logger.Warn("failed to read storage, treating as empty", "path", s.Path, "error", err)
	}
	return data
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.readDisk()[key]
	return v, ok, nil
}

func (s *Store) Keys(context.Context) ([]string, error) {
	s.mu.Lock()
	data := s.readDisk()
	s.mu.Unlock()

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.mutate(ctx, func(data map[string]string) bool {
		if old, ok := data[key]; ok && old == value {
			return false
		}
		data[key] = value
		return true
	})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.mutate(ctx, func(data map[string]string) bool {
		if _, ok := data[key]; !ok {
			return false
		}
		delete(data, key)
		return true
	})
}

// mutate runs one locked read-modify-write cycle. fn reports whether it
// changed anything; unchanged data is not written back.
func (s *Store) mutate(ctx context.Context, fn func(map[string]string) bool) error {
	if s.config.ReadOnly {
		return core.ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := s.loadDisk()
	if err != nil {
		return err
	}
	if !fn(data) {
		return nil
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage: %w", err)
	}
	if err := writeFileAtomic(s.Path, raw, 0644); err != nil {
		return err
	}

	// Our own writes are not changes for the watcher. Only the delta is
	// applied so pending external edits still show up on reconcile.
	fn(s.snapshot)
	return nil
}

var (
	_ kv.Storage   = (*Store)(nil)
	_ kv.Lister    = (*Store)(nil)
	_ kv.Watchable = (*Store)(nil)
)
