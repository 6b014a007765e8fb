package locktable

import (
	"context"
	"sync"
	"time"

	"github.com/distlockd/distlockd/rpc/common"
)

var logger = common.GetLogger("locktable")

// --------------------------------------------------------------------------
// Internal Types
// --------------------------------------------------------------------------

// record exists for a name if and only if that name is currently owned.
type record struct {
	owner      string
	acquiredAt time.Time
	holdTimer  *time.Timer // nil when no max hold duration is configured
}

// waiterOutcome resolves a suspended Acquire call.
type waiterOutcome uint8

const (
	outcomeGranted waiterOutcome = iota
	outcomeDenied
	outcomeShutdown
)

// waiterEntry is one queued acquire. The done channel is buffered so the
// resolver never blocks; resolved guards against double resolution and is
// only touched with the table mutex held.
type waiterEntry struct {
	sessionID  string
	enqueuedAt time.Time
	done       chan waiterOutcome
	resolved   bool
	waitTimer  *time.Timer
}

// --------------------------------------------------------------------------
// Table Implementation
// --------------------------------------------------------------------------

type tableImpl struct {
	mu      sync.Mutex
	maxHold time.Duration

	records map[string]*record
	waiters map[string][]*waiterEntry
	owned   map[string]map[string]struct{} // sessionID -> set of lock names

	expired uint64
	closed  bool
}

// New creates a lock table. maxHold caps how long a single grant may be held
// before it is forcibly released; zero disables the cap.
func New(maxHold time.Duration) ILockTable {
	return &tableImpl{
		maxHold: maxHold,
		records: make(map[string]*record),
		waiters: make(map[string][]*waiterEntry),
		owned:   make(map[string]map[string]struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see interface.go)
// --------------------------------------------------------------------------

func (t *tableImpl) Acquire(ctx context.Context, name, sessionID string, timeout time.Duration) (AcquireResult, error) {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return DeniedTimeout, ErrShutdown
	}

	// Fast path: free and no queue ahead of us.
	if _, held := t.records[name]; !held && len(t.waiters[name]) == 0 {
		t.grantLocked(name, sessionID)
		t.mu.Unlock()
		return Granted, nil
	}

	// Non-blocking acquire fails right here.
	if timeout == 0 {
		t.mu.Unlock()
		return DeniedTimeout, nil
	}

	// Slow path: enqueue and suspend. The wait timer is owned by the expiry
	// manager and resolves the entry at the table, so the select below only
	// has to watch the done channel and the context.
	w := &waiterEntry{
		sessionID:  sessionID,
		enqueuedAt: time.Now(),
		done:       make(chan waiterOutcome, 1),
	}
	t.waiters[name] = append(t.waiters[name], w)
	t.scheduleWaitExpiry(name, w, timeout)
	t.mu.Unlock()

	select {
	case out := <-w.done:
		return t.finishWait(out)

	case <-ctx.Done():
		t.mu.Lock()
		if w.resolved {
			// A resolution won the race. Honor a grant: session teardown
			// will release it through CleanupSession if the caller is gone.
			t.mu.Unlock()
			return t.finishWait(<-w.done)
		}
		t.resolveLocked(w, outcomeShutdown)
		t.removeWaiterLocked(name, w)
		t.mu.Unlock()
		return DeniedTimeout, ctx.Err()
	}
}

func (t *tableImpl) Release(name, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrShutdown
	}

	rec, held := t.records[name]
	if !held {
		return ErrNotHeld
	}
	if rec.owner != sessionID {
		return ErrNotOwner
	}

	t.releaseLocked(name, rec)
	return nil
}

func (t *tableImpl) CleanupSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	// Drop pending waiter entries for this session from every queue.
	for name, queue := range t.waiters {
		for _, w := range queue {
			if w.sessionID == sessionID && !w.resolved {
				t.resolveLocked(w, outcomeShutdown)
			}
		}
		t.compactQueueLocked(name)
	}

	// Release everything the session still owns, handing each lock to the
	// next surviving waiter.
	for name := range t.owned[sessionID] {
		rec, held := t.records[name]
		if !held || rec.owner != sessionID {
			continue
		}
		logger.Debugf("session %s disconnected, releasing %q", sessionID, name)
		t.releaseLocked(name, rec)
	}
	delete(t.owned, sessionID)
}

func (t *tableImpl) Stats() *Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	s := &Stats{Expired: t.expired, Locks: []LockInfo{}}
	for name, rec := range t.records {
		info := LockInfo{
			Name:    name,
			Owner:   rec.owner,
			HeldFor: now.Sub(rec.acquiredAt),
			Waiters: len(t.waiters[name]),
		}
		if t.maxHold > 0 {
			info.HoldExpiry = rec.acquiredAt.Add(t.maxHold).Sub(now)
		}
		s.Held++
		s.Locks = append(s.Locks, info)
	}
	for _, queue := range t.waiters {
		s.Waiting += len(queue)
	}
	return s
}

func (t *tableImpl) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true

	for _, queue := range t.waiters {
		for _, w := range queue {
			if !w.resolved {
				t.resolveLocked(w, outcomeShutdown)
			}
		}
	}
	for _, rec := range t.records {
		if rec.holdTimer != nil {
			rec.holdTimer.Stop()
		}
	}
	t.records = make(map[string]*record)
	t.waiters = make(map[string][]*waiterEntry)
	t.owned = make(map[string]map[string]struct{})
}

// --------------------------------------------------------------------------
// Internal Helpers (must be called with t.mu held)
// --------------------------------------------------------------------------

// grantLocked transitions name to HELD under sessionID and arms the hold
// timer if a maximum hold duration is configured.
func (t *tableImpl) grantLocked(name, sessionID string) {
	rec := &record{
		owner:      sessionID,
		acquiredAt: time.Now(),
	}
	t.records[name] = rec
	t.scheduleHoldExpiry(name, rec)

	owned, ok := t.owned[sessionID]
	if !ok {
		owned = make(map[string]struct{})
		t.owned[sessionID] = owned
	}
	owned[name] = struct{}{}
}

// releaseLocked removes the record for name and synchronously hands the lock
// to the earliest surviving waiter, so the name is never observably free
// while waiters exist.
func (t *tableImpl) releaseLocked(name string, rec *record) {
	if rec.holdTimer != nil {
		rec.holdTimer.Stop()
	}
	if owned, ok := t.owned[rec.owner]; ok {
		delete(owned, name)
		if len(owned) == 0 {
			delete(t.owned, rec.owner)
		}
	}
	delete(t.records, name)
	t.grantNextLocked(name)
}

// grantNextLocked pops the earliest pending waiter for name, if any, and
// grants it the lock.
func (t *tableImpl) grantNextLocked(name string) {
	queue := t.waiters[name]
	for len(queue) > 0 {
		w := queue[0]
		copy(queue, queue[1:])
		queue[len(queue)-1] = nil
		queue = queue[:len(queue)-1]
		if w.resolved {
			continue
		}
		t.grantLocked(name, w.sessionID)
		w.resolved = true
		if w.waitTimer != nil {
			w.waitTimer.Stop()
		}
		w.done <- outcomeGranted
		break
	}
	if len(queue) == 0 {
		delete(t.waiters, name)
	} else {
		t.waiters[name] = queue
	}
}

// resolveLocked marks a waiter as resolved and delivers the outcome exactly
// once, stopping its wait timer.
func (t *tableImpl) resolveLocked(w *waiterEntry, out waiterOutcome) {
	w.resolved = true
	if w.waitTimer != nil {
		w.waitTimer.Stop()
	}
	w.done <- out
}

// removeWaiterLocked removes w from the queue for name, preserving order.
func (t *tableImpl) removeWaiterLocked(name string, w *waiterEntry) {
	queue := t.waiters[name]
	for i, entry := range queue {
		if entry == w {
			copy(queue[i:], queue[i+1:])
			queue[len(queue)-1] = nil
			queue = queue[:len(queue)-1]
			break
		}
	}
	if len(queue) == 0 {
		delete(t.waiters, name)
	} else {
		t.waiters[name] = queue
	}
}

// compactQueueLocked drops resolved entries from the queue for name.
func (t *tableImpl) compactQueueLocked(name string) {
	queue := t.waiters[name]
	n := 0
	for _, w := range queue {
		if !w.resolved {
			queue[n] = w
			n++
		}
	}
	for i := n; i < len(queue); i++ {
		queue[i] = nil
	}
	if n == 0 {
		delete(t.waiters, name)
	} else {
		t.waiters[name] = queue[:n]
	}
}

// finishWait maps a waiter outcome to the Acquire return values.
func (t *tableImpl) finishWait(out waiterOutcome) (AcquireResult, error) {
	switch out {
	case outcomeGranted:
		return Granted, nil
	case outcomeDenied:
		return DeniedTimeout, nil
	default:
		return DeniedTimeout, ErrShutdown
	}
}
