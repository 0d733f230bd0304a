package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	defaultLockTimeout = 5 * time.Second
	lockPoll           = 10 * time.Millisecond
	// A lock file older than this is left over from a crashed process.
	staleLockAge = 30 * time.Second
)

// fileLock serializes read-modify-write cycles across processes sharing the
// same storage file.
type fileLock struct {
	path    string
	timeout time.Duration
}

// acquire blocks until the lock file could be created exclusively, the
// timeout elapses or ctx is done. The returned func releases the lock.
func (l fileLock) acquire(ctx context.Context) (func(), error) {
	timeout := l.timeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			_ = f.Close()
			return func() { _ = os.Remove(l.path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}

		if info, statErr := os.Stat(l.path); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			_ = os.Remove(l.path)
			continue
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock %s: %w", l.path, ctx.Err())
		case <-time.After(lockPoll):
		}
	}
}
