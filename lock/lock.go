// Package lock provides a cross-process global writer lock using flock(2)
// to serialise hardware mutation between tracefabric processes.
//
// The in-process Manager coordinates goroutines with per-device locks,
// but two CLI invocations are separate processes with separate
// Managers. Every command that claims, programs or releases hardware
// runs under Run so that those processes never interleave.
//
// A WriterScope is a non-forgeable token proving the lock is held.
// Functions that must only run under the lock take one as a parameter.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// WriterScope represents the dynamic execution region in which the
// global writer lock is held.
//
// A WriterScope is only obtained by executing code under lock.Run(...).
// The interface cannot be implemented outside this package due to the
// unexported marker method.
type WriterScope interface {
	// Path returns the lock file path.
	Path() string

	// FD returns the raw lock file descriptor (for logging/diagnostics).
	FD() int

	// writerScopeMarker is unexported to prevent external implementations.
	writerScopeMarker()
}

// writerScope is the concrete implementation of WriterScope.
type writerScope struct {
	f *os.File
}

func (*writerScope) writerScopeMarker() {}

func (s *writerScope) Path() string { return s.f.Name() }

func (s *writerScope) FD() int { return int(s.f.Fd()) }

// Backoff bounds used while waiting for the lock.
const (
	initialBackoff = 25 * time.Millisecond
	maxBackoff     = 500 * time.Millisecond
)

// Run acquires the global writer lock, executes fn, then releases.
// The WriterScope proves to callees that the lock is held.
// Uses LOCK_EX|LOCK_NB with exponential backoff, respects ctx cancellation.
func Run(ctx context.Context, lockPath string, fn func(context.Context, WriterScope) error) error {
	f, err := acquireWriter(ctx, lockPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return fn(ctx, &writerScope{f: f})
}

// TryRun is Run without waiting: it fails with ErrLocked if another
// process holds the lock.
func TryRun(ctx context.Context, lockPath string, fn func(context.Context, WriterScope) error) error {
	f, err := open(lockPath)
	if err != nil {
		return err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrLocked
		}
		return fmt.Errorf("flock: %w", err)
	}
	defer f.Close()

	return fn(ctx, &writerScope{f: f})
}

// ErrLocked is returned by TryRun when the lock is held elsewhere.
var ErrLocked = errors.New("writer lock held by another process")

func open(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}

// acquireWriter opens the lock file and acquires exclusive lock.
func acquireWriter(ctx context.Context, path string) (*os.File, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}

	backoff := initialBackoff
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, fmt.Errorf("flock: %w", err)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
