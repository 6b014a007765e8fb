package locktable

import (
	"context"
	"errors"
	"time"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// AcquireResult is the outcome of an Acquire call.
type AcquireResult uint8

const (
	// Granted means the lock is now held by the requesting session.
	Granted AcquireResult = iota
	// DeniedTimeout means the wait deadline elapsed before the lock was free.
	DeniedTimeout
)

// String returns the string representation of an AcquireResult.
func (r AcquireResult) String() string {
	switch r {
	case Granted:
		return "granted"
	case DeniedTimeout:
		return "denied_timeout"
	default:
		return "unknown"
	}
}

// ILockTable defines the interface for the lock coordination state machine.
// All implementations must serialize every mutation so that no caller ever
// observes a partially updated table.
type ILockTable interface {
	// Acquire requests the named lock for the given session. If the lock is
	// free it is granted immediately. Otherwise the caller is enqueued in
	// FIFO order and suspends until the lock is handed over or the timeout
	// elapses. A timeout of zero means "fail immediately if not free".
	// The context cancels a pending wait (session teardown, server shutdown).
	Acquire(ctx context.Context, name, sessionID string, timeout time.Duration) (AcquireResult, error)

	// Release releases the named lock if it is held by the given session.
	// Returns ErrNotHeld if the lock is free and ErrNotOwner if it is held
	// by a different session; in both cases no state changes.
	Release(name, sessionID string) error

	// CleanupSession releases every lock the session holds and removes its
	// pending waiter entries, as if each held lock had received a Release.
	// Called when a session terminates for any reason.
	CleanupSession(sessionID string)

	// Stats returns a snapshot of the current table state.
	Stats() *Stats

	// Close shuts the table down: all queued waiters are resolved with
	// ErrShutdown, all records are cleared and all timers stopped. Further
	// operations return ErrShutdown.
	Close()
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrNotHeld is returned by Release when the lock is currently free.
	ErrNotHeld = errors.New("not held")
	// ErrNotOwner is returned by Release when the lock is held by a
	// different session than the caller.
	ErrNotOwner = errors.New("not owner")
	// ErrShutdown is returned for any operation on a closed table and
	// resolves waiters that were still queued when the table closed.
	ErrShutdown = errors.New("server shutting down")
)

// --------------------------------------------------------------------------
// Stats Snapshot
// --------------------------------------------------------------------------

// LockInfo describes one currently held lock.
type LockInfo struct {
	Name       string        `json:"name"`
	Owner      string        `json:"owner"`
	HeldFor    time.Duration `json:"held_for"`
	Waiters    int           `json:"waiters"`
	HoldExpiry time.Duration `json:"hold_expiry,omitempty"` // zero if no hold cap
}

// Stats is a point-in-time snapshot of the table. Expired counts hold
// expiries cumulatively since the table was created.
type Stats struct {
	Held    int        `json:"held"`
	Waiting int        `json:"waiting"`
	Expired uint64     `json:"expired"`
	Locks   []LockInfo `json:"locks"`
}
