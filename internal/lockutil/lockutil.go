// Package lockutil provides the cross-process advisory lock the Semantic
// Store uses to serialize readers and writers (spec §4.6.3, §5). It wraps
// gofrs/flock with the bounded-timeout/poll semantics the spec requires and
// an in-process mutex so a single process can re-enter without deadlocking
// itself, mirroring the teacher's own sync-lock usage in cmd/bd/sync.go and
// the sibling pack repo's internal/lockfile blocking/non-blocking split.
package lockutil

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/sl4m3/agentmem/internal/types"
)

// DefaultTimeout is the bounded wait before lock acquisition surfaces a
// LockTimeout error (spec §4.6.3).
const DefaultTimeout = 15 * time.Second

// pollInterval is the polling cadence used while waiting for the advisory
// file lock to become available.
const pollInterval = 100 * time.Millisecond

// Lock is a re-entrant, cross-process advisory lock backed by a single file
// within the store. A process already holding the lock may re-acquire it
// (shared or exclusive) without blocking on itself; re-entrant acquisitions
// are reference-counted per mode.
type Lock struct {
	path string

	mu       sync.Mutex // protects the re-entrancy bookkeeping below
	fl       *flock.Flock
	exclDepth int
	sharedDepth int
	timeout  time.Duration
}

// New returns a Lock backed by the advisory lock file at path. The file is
// created lazily on first acquisition.
func New(path string) *Lock {
	return &Lock{path: path, fl: flock.New(path), timeout: DefaultTimeout}
}

// WithTimeout overrides the default bounded-wait timeout.
func (l *Lock) WithTimeout(d time.Duration) *Lock {
	l.timeout = d
	return l
}

// Release represents a held lock; call it to release one level of
// re-entrancy.
type Release func()

// AcquireExclusive blocks (up to the configured timeout, polling every
// 100ms) until an exclusive lock is held, or returns a *types.LockTimeout.
// A process that already holds the exclusive lock re-enters immediately.
func (l *Lock) AcquireExclusive(ctx context.Context) (Release, error) {
	l.mu.Lock()
	if l.exclDepth > 0 {
		l.exclDepth++
		l.mu.Unlock()
		return func() { l.releaseExclusive() }, nil
	}
	l.mu.Unlock()

	deadline := time.Now().Add(l.timeout)
	for {
		ok, err := l.fl.TryLock()
		if err == nil && ok {
			l.mu.Lock()
			l.exclDepth = 1
			l.mu.Unlock()
			return func() { l.releaseExclusive() }, nil
		}
		if time.Now().After(deadline) {
			return nil, l.timeoutErr()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// timeoutErr builds a LockTimeout, probing whether another process is
// genuinely holding the lock so the error is diagnosable rather than a bare
// "it timed out".
func (l *Lock) timeoutErr() error {
	reason := l.timeout.String()
	if probeHeldByOther(l.path) {
		reason += " (held by another process)"
	}
	return &types.LockTimeout{Path: l.path, Timeout: reason}
}

func (l *Lock) releaseExclusive() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.exclDepth == 0 {
		return
	}
	l.exclDepth--
	if l.exclDepth == 0 {
		_ = l.fl.Unlock()
	}
}

// AcquireShared blocks (up to the configured timeout) until a shared (read)
// lock is held. A process holding the exclusive lock may also acquire a
// shared lock re-entrantly (readers never block a writer that already holds
// the lock in the same process).
func (l *Lock) AcquireShared(ctx context.Context) (Release, error) {
	l.mu.Lock()
	if l.exclDepth > 0 || l.sharedDepth > 0 {
		l.sharedDepth++
		l.mu.Unlock()
		return func() { l.releaseShared() }, nil
	}
	l.mu.Unlock()

	deadline := time.Now().Add(l.timeout)
	for {
		ok, err := l.fl.TryRLock()
		if err == nil && ok {
			l.mu.Lock()
			l.sharedDepth = 1
			l.mu.Unlock()
			return func() { l.releaseShared() }, nil
		}
		if time.Now().After(deadline) {
			return nil, l.timeoutErr()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (l *Lock) releaseShared() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sharedDepth == 0 {
		return
	}
	l.sharedDepth--
	if l.sharedDepth == 0 && l.exclDepth == 0 {
		_ = l.fl.Unlock()
	}
}
