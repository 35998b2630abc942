// Package filelock provides the two serialization primitives the rest of
// the module builds on: a cross-process advisory lock guarding the feature
// file on disk, and an in-process FIFO mutex used for the merge-window and
// git-worktree critical sections.
package filelock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"pipeline/internal/errs"
)

// FileLock wraps a gofrs/flock advisory lock on a sidecar ".lock" file next
// to the protected path, with a bounded exponential-backoff retry loop.
// Every Feature Store read and read-modify-write cycle acquires this lock
// for its duration; the Session Log backends do not use it.
type FileLock struct {
	path     string
	flock    *flock.Flock
	maxTries int
	backoff  time.Duration
}

// New builds a FileLock for the given target path. The lock file itself is
// path+".lock"; it is created on first use and never removed, matching
// gofrs/flock's own recommended usage.
func New(path string) *FileLock {
	return &FileLock{
		path:     path,
		flock:    flock.New(path + ".lock"),
		maxTries: 20,
		backoff:  50 * time.Millisecond,
	}
}

// Acquire blocks until the lock is held, the context is cancelled, or the
// retry budget is exhausted, whichever comes first. onContention, if
// non-nil, is invoked once per failed attempt, letting the caller record a
// lock-contention metric without this package depending on telemetry.
func (l *FileLock) Acquire(ctx context.Context, onContention func()) (func() error, error) {
	wait := l.backoff
	for attempt := 0; attempt < l.maxTries; attempt++ {
		locked, err := l.flock.TryLockContext(ctx, 5*time.Millisecond)
		if err != nil {
			return nil, &errs.LockError{Path: l.path, Attempts: attempt + 1, Err: err}
		}
		if locked {
			return l.flock.Unlock, nil
		}
		if onContention != nil {
			onContention()
		}
		select {
		case <-ctx.Done():
			return nil, &errs.LockError{Path: l.path, Attempts: attempt + 1, Err: ctx.Err()}
		case <-time.After(wait):
		}
		if wait < time.Second {
			wait *= 2
		}
	}
	return nil, &errs.LockError{Path: l.path, Attempts: l.maxTries, Err: fmt.Errorf("retry budget exhausted")}
}

// WithLock acquires the lock, runs fn, and releases the lock regardless of
// whether fn returns an error.
func (l *FileLock) WithLock(ctx context.Context, onContention func(), fn func() error) error {
	unlock, err := l.Acquire(ctx, onContention)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// TrackMutex is a FIFO mutex: goroutines acquire it in the order they call
// Lock, which keeps one track's git operations and merge-window turn from
// being starved by a bursty neighbor. The Git Workspace Manager and the
// Orchestrator each hold one instance, shared by all tracks. sync.Mutex in Go
// makes no FIFO guarantee under contention, which is why this wraps it in
// a ticket queue instead of using it bare.
type TrackMutex struct {
	mu     sync.Mutex
	ticket chan struct{}
}

// NewTrackMutex returns a ready-to-use FIFO mutex.
func NewTrackMutex() *TrackMutex {
	m := &TrackMutex{ticket: make(chan struct{}, 1)}
	m.ticket <- struct{}{}
	return m
}

// Lock blocks until this call's ticket is served or ctx is cancelled.
func (m *TrackMutex) Lock(ctx context.Context) error {
	select {
	case <-m.ticket:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock returns the ticket to the queue.
func (m *TrackMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case m.ticket <- struct{}{}:
	default:
	}
}
