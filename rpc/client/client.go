package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/distlockd/distlockd/rpc/common"
	"github.com/distlockd/distlockd/rpc/protocol"
)

var logger = common.GetLogger("rpc/client")

// ----------------------------------------------------------------------------
// Errors
// ----------------------------------------------------------------------------

var (
	// ErrClientClosed is returned from every operation after Close.
	ErrClientClosed = errors.New("client is closed")

	// ErrNotAcquired is returned by WithLock when the lock was not granted
	// within the timeout.
	ErrNotAcquired = errors.New("lock not acquired")
)

// ReleaseError reports a release the server rejected, such as releasing a
// lock this client never acquired.
type ReleaseError struct {
	Name   string
	Reason string
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("failed to release lock %q: %s", e.Name, e.Reason)
}

// ProtocolError reports an ERROR response where none was expected.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("server error: %s", e.Reason)
}

// ----------------------------------------------------------------------------
// Interface
// ----------------------------------------------------------------------------

// IClient is a pooled client for the lock server.
//
// Lock ownership is scoped to a server session, which is one TCP connection,
// so the client pins the connection a lock was granted on until the matching
// Release. Holding a lock therefore occupies one pool slot.
type IClient interface {
	// Acquire requests the named lock, waiting up to timeout for it to
	// become free. It returns true when the lock was granted and false
	// when the timeout elapsed while waiting. A zero timeout is a
	// non-blocking attempt.
	Acquire(name string, timeout time.Duration) (bool, error)

	// Release releases a lock previously granted to this client. It
	// returns a *ReleaseError when the lock is not held here.
	Release(name string) error

	// WithLock acquires the lock, runs fn and releases the lock again,
	// including when fn panics. It returns ErrNotAcquired when the lock
	// was not granted within the timeout.
	WithLock(name string, timeout time.Duration, fn func() error) error

	// Health checks that the server is reachable and answering.
	Health() error

	// Close releases the pool. Locks still held are freed by the server
	// when their pinned connections close.
	Close()
}

// ----------------------------------------------------------------------------
// Implementation
// ----------------------------------------------------------------------------

type clientImpl struct {
	config common.ClientConfig
	pool   *connPool

	mu     sync.Mutex
	pinned map[string]*pooledConn // lock name -> conn the grant lives on
	closed bool
}

// NewClient creates a client for the given server. Connections are dialed
// lazily, so NewClient itself cannot fail.
//
// Usage:
//
//	c := client.NewClient(cfg)
//	defer c.Close()
//
//	err := c.WithLock("orders", 5*time.Second, func() error {
//	    // critical section
//	    return nil
//	})
func NewClient(config common.ClientConfig) IClient {
	return &clientImpl{
		config: config,
		pool:   newConnPool(config.Addr(), config.PoolSize),
		pinned: make(map[string]*pooledConn),
	}
}

// wireTimeout is the I/O deadline for one round trip. For acquires the
// server-side wait is added on top so a legitimate long wait is not cut off
// by the transport deadline.
func (c *clientImpl) wireTimeout(extra time.Duration) time.Duration {
	if c.config.TimeoutSecond <= 0 {
		return 0
	}
	return time.Duration(c.config.TimeoutSecond)*time.Second + extra
}

// formatSeconds renders a timeout as the decimal seconds the wire expects.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func validateName(name string) error {
	if name == "" {
		return errors.New("lock name must not be empty")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("lock name %q must not contain whitespace", name)
	}
	return nil
}

func (c *clientImpl) Acquire(name string, timeout time.Duration) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	if timeout < 0 {
		return false, errors.New("timeout must not be negative")
	}

	line := fmt.Sprintf("ACQUIRE %s %s\n", name, formatSeconds(timeout))

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		conn, err := c.pool.get()
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrClientClosed) {
				return false, err
			}
			continue
		}

		status, detail, err := conn.roundTrip(line, c.wireTimeout(timeout))
		if err != nil {
			// Connection state is unknown, drop it and retry on a
			// fresh one. No lock is leaked: if the grant happened
			// server side, closing the conn releases it again.
			c.pool.put(conn, true)
			lastErr = err
			logger.Debugf("acquire %q attempt %d failed: %v", name, attempt, err)
			continue
		}

		switch status {
		case protocol.StatusGranted:
			if err := c.pin(name, conn); err != nil {
				return false, err
			}
			return true, nil
		case protocol.StatusDeniedTimeout:
			c.pool.put(conn, false)
			return false, nil
		case protocol.StatusError:
			c.pool.put(conn, false)
			return false, &ProtocolError{Reason: detail}
		default:
			c.pool.put(conn, true)
			return false, fmt.Errorf("unexpected response %q to acquire", status)
		}
	}
	return false, fmt.Errorf("acquire %q failed after %d attempts: %w",
		name, c.config.RetryCount+1, lastErr)
}

func (c *clientImpl) Release(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	conn, ok := c.unpin(name)
	if !ok {
		return &ReleaseError{Name: name, Reason: "not held by this client"}
	}

	// No retry here: the grant lives on this exact connection, and a
	// replacement connection would be a different session without
	// ownership. If the round trip fails the server frees the lock as
	// part of its disconnect cleanup.
	status, detail, err := conn.roundTrip(
		fmt.Sprintf("RELEASE %s\n", name), c.wireTimeout(0))
	if err != nil {
		c.pool.put(conn, true)
		return fmt.Errorf("release %q: %w", name, err)
	}

	switch status {
	case protocol.StatusReleased:
		c.pool.put(conn, false)
		return nil
	case protocol.StatusError:
		c.pool.put(conn, false)
		return &ReleaseError{Name: name, Reason: detail}
	default:
		c.pool.put(conn, true)
		return fmt.Errorf("unexpected response %q to release", status)
	}
}

func (c *clientImpl) WithLock(name string, timeout time.Duration, fn func() error) error {
	ok, err := c.Acquire(name, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q within %v", ErrNotAcquired, name, timeout)
	}

	defer func() {
		if err := c.Release(name); err != nil {
			logger.Errorf("failed to release lock %q: %v", name, err)
		}
	}()
	return fn()
}

func (c *clientImpl) Health() error {
	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		conn, err := c.pool.get()
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrClientClosed) {
				return err
			}
			continue
		}

		status, detail, err := conn.roundTrip("HEALTH\n", c.wireTimeout(0))
		if err != nil {
			c.pool.put(conn, true)
			lastErr = err
			continue
		}
		c.pool.put(conn, false)
		if status != protocol.StatusOK {
			return fmt.Errorf("unexpected health response %q %s", status, detail)
		}
		return nil
	}
	return fmt.Errorf("health check failed after %d attempts: %w",
		c.config.RetryCount+1, lastErr)
}

func (c *clientImpl) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pinned := c.pinned
	c.pinned = nil
	c.mu.Unlock()

	// Closing a pinned conn ends its server session, which releases the
	// lock that was held on it.
	for _, conn := range pinned {
		c.pool.discard(conn)
	}
	c.pool.closeAll()
}

// pin holds the connection out of the pool for the lifetime of the grant.
// When the grant cannot be pinned the connection is dropped, which frees the
// grant server side, and the caller must not report the lock as held.
func (c *clientImpl) pin(name string, conn *pooledConn) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.pool.discard(conn)
		return ErrClientClosed
	}
	if c.pinned[name] != nil {
		c.mu.Unlock()
		// This client already has a grant pinned for the name, so the
		// server must have revoked it (hold expiry) without the client
		// noticing. A second pin cannot represent that honestly.
		c.pool.discard(conn)
		return fmt.Errorf("lock %q is already pinned by this client", name)
	}
	c.pinned[name] = conn
	c.mu.Unlock()
	return nil
}

func (c *clientImpl) unpin(name string) (*pooledConn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, ok := c.pinned[name]
	if ok {
		delete(c.pinned, name)
	}
	return conn, ok
}
