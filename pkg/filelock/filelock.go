// Package filelock provides a cross-process mutual-exclusion primitive
// built on flock(2). It guards the shared token cache so concurrent
// wavetap invocations serialize their read-modify-write of the cache
// instead of racing to refresh the token twice.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the bounded wait before Acquire falls back to an
// unbounded blocking wait.
const DefaultTimeout = 3 * time.Second

// pollInterval is how often the bounded wait retries the non-blocking
// flock attempt.
const pollInterval = 50 * time.Millisecond

// Lock is a named, file-system-visible mutex. Two independent OS
// processes locking the same path serialize against each other.
//
// Acquisition first attempts a bounded wait; on timeout it emits a
// warning and retries with no timeout, so a stuck holder is observable
// rather than silently hanging the caller. There is no staleness
// detection: a crashed holder that never released blocks others until
// the OS reclaims the lock on process exit.
type Lock struct {
	path    string
	timeout time.Duration
	logger  *zap.Logger

	file *os.File
}

// New creates a Lock on the given path with the default bounded-wait
// timeout.
func New(path string, logger *zap.Logger) *Lock {
	return NewWithTimeout(path, DefaultTimeout, logger)
}

// NewWithTimeout creates a Lock with an explicit bounded-wait timeout.
func NewWithTimeout(path string, timeout time.Duration, logger *zap.Logger) *Lock {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Lock{
		path:    path,
		timeout: timeout,
		logger:  logger,
	}
}

// Acquire takes the lock, creating the lock file if needed. It never
// fails on contention: after the bounded wait expires it logs and blocks
// until the holder releases.
func (l *Lock) Acquire() error {
	if l.file != nil {
		return fmt.Errorf("lock %s already held by this handle", l.path)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}

	deadline := time.Now().Add(l.timeout)
	for {
		err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			l.file = file
			return nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			file.Close()
			return fmt.Errorf("locking %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}

	l.logger.Warn("lock wait exceeded timeout, blocking until released",
		zap.String("path", l.path),
		zap.Duration("timeout", l.timeout),
	)

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return fmt.Errorf("locking %s: %w", l.path, err)
	}

	l.file = file
	return nil
}

// Release drops the lock. Safe to call when the lock was never acquired
// or has already been released.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	file := l.file
	l.file = nil

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_UN); err != nil {
		_ = file.Close()
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}

	return file.Close()
}
