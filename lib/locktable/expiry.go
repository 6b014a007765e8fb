package locktable

import (
	"time"
)

// --------------------------------------------------------------------------
// Expiry Manager
// --------------------------------------------------------------------------

// Two independent timer kinds keep the table honest without trusting client
// liveness: a wait timer per queued waiter and an optional hold timer per
// grant. Each fire re-validates its target under the table mutex before
// mutating anything, so a timer that lost the race to a normal grant or
// release is a no-op.

// scheduleWaitExpiry arms the single-use wait timer for a queued waiter.
// Must be called with t.mu held.
func (t *tableImpl) scheduleWaitExpiry(name string, w *waiterEntry, timeout time.Duration) {
	w.waitTimer = time.AfterFunc(timeout, func() {
		t.expireWaiter(name, w)
	})
}

// scheduleHoldExpiry arms the hold timer for a fresh grant. No-op when no
// maximum hold duration is configured. Must be called with t.mu held.
func (t *tableImpl) scheduleHoldExpiry(name string, rec *record) {
	if t.maxHold <= 0 {
		return
	}
	rec.holdTimer = time.AfterFunc(t.maxHold, func() {
		t.expireHold(name, rec)
	})
}

// expireWaiter fires when a waiter's timeout elapses before it was granted.
// If the entry was already granted or cancelled the fire is discarded.
func (t *tableImpl) expireWaiter(name string, w *waiterEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || w.resolved {
		return
	}
	t.resolveLocked(w, outcomeDenied)
	t.removeWaiterLocked(name, w)
}

// expireHold fires when a grant outlives the configured maximum hold
// duration. It performs the release path as if the owner had called Release,
// protecting against holders that stall without their transport closing.
// Staleness is decided by record identity: the name may have been released
// and re-granted, even to the same session, between the fire and the mutex
// acquisition, and a name/owner comparison would mistake such a fresh grant
// for the expired one.
func (t *tableImpl) expireHold(name string, rec *record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.records[name] != rec {
		return
	}
	logger.Warningf("hold expired for %q owned by %s, forcing release", name, rec.owner)
	t.expired++
	t.releaseLocked(name, rec)
}
