// Package locktable implements the authoritative state machine of the lock
// server: one entry per lock name, each with a single owner and a FIFO queue
// of waiters, plus the expiry machinery that bounds both waiting and holding.
//
// State Model:
//
//	A lock name cycles FREE -> HELD -> FREE. A record exists for a name if and
//	only if the name is currently owned; absence of a record means the name
//	is free. Waiters attach to a name regardless of its current state and
//	are served in strict arrival order; queue position is the sole
//	tie-break for who is granted next.
//
// Concurrency Discipline:
//
//	Every mutation (acquire, release, timer fire, session cleanup, close)
//	runs under one mutex, so state transitions are atomic with respect to
//	each other and no caller observes a partially updated table. The only
//	operation that suspends is an acquire with a non-zero timeout, and it
//	suspends on a per-waiter channel after dropping the mutex; the
//	resolution paths (hand-over on release, wait expiry, cancellation)
//	re-take the mutex briefly to mutate state and deliver the outcome.
//
//	Cancellation is idempotent against a concurrently arriving grant: each
//	waiter carries a resolved flag guarded by the table mutex, whichever
//	resolution reaches the table first wins and the loser is discarded.
//
// Expiry:
//
//   - Wait timers fire exactly once per queued waiter; a fire after the
//     waiter was granted or cancelled is a no-op.
//   - Hold timers (optional, one per grant) forcibly perform the release
//     path when a holder outlives the configured maximum hold duration.
//     This guards against clients that acquired and then stalled without
//     their transport closing, since pooled client connections make relying on
//     disconnect detection alone unsafe.
//
// Fairness:
//
//	Strict FIFO per lock name. No priorities and no reordering by timeout
//	length or session identity; predictability is preferred over throughput
//	for a coordination primitive of this scale.
//
// Usage Example:
//
//	table := locktable.New(30 * time.Second)
//
//	res, err := table.Acquire(ctx, "resource:123", sessionID, 5*time.Second)
//	if err == nil && res == locktable.Granted {
//	    // critical section
//	    _ = table.Release("resource:123", sessionID)
//	}
//
//	// On session teardown:
//	table.CleanupSession(sessionID)
package locktable
