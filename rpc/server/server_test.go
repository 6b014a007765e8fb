package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/distlockd/distlockd/lib/locktable"
	"github.com/distlockd/distlockd/rpc/common"
)

// --------------------------------------------------------------------------
// Test Helpers
// --------------------------------------------------------------------------

// startTestServer runs a server on an ephemeral port and returns its address
// and a stop function
func startTestServer(t *testing.T, maxHold time.Duration) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	cfg := common.ServerConfig{DrainTimeout: time.Second}
	srv := NewServer(cfg, locktable.New(maxHold))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.ServeOnListener(ctx, listener)
		close(done)
	}()

	return listener.Addr().String(), func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	}
}

// testConn is a raw protocol connection for driving the server in tests
type testConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dialTest(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testConn) send(line string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("failed to send %q: %v", line, err)
	}
}

func (c *testConn) recv() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("failed to read response: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func (c *testConn) roundTrip(line string) string {
	c.t.Helper()
	c.send(line)
	return c.recv()
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

// TestAcquireReleaseCycle tests the basic happy path over the wire
func TestAcquireReleaseCycle(t *testing.T) {
	addr, stop := startTestServer(t, 0)
	defer stop()

	c := dialTest(t, addr)
	if resp := c.roundTrip("ACQUIRE mylock 0"); resp != "GRANTED" {
		t.Errorf("expected GRANTED, got %q", resp)
	}
	if resp := c.roundTrip("RELEASE mylock"); resp != "RELEASED" {
		t.Errorf("expected RELEASED, got %q", resp)
	}
}

// TestHealth tests the health probe
func TestHealth(t *testing.T) {
	addr, stop := startTestServer(t, 0)
	defer stop()

	c := dialTest(t, addr)
	if resp := c.roundTrip("HEALTH"); resp != "OK" {
		t.Errorf("expected OK, got %q", resp)
	}
}

// TestContention tests a contended lock across three connections: the holder
// keeps it past a waiter's timeout, then a release frees it for the next
func TestContention(t *testing.T) {
	addr, stop := startTestServer(t, 0)
	defer stop()

	a := dialTest(t, addr)
	b := dialTest(t, addr)
	c := dialTest(t, addr)

	if resp := a.roundTrip("ACQUIRE lockX 5"); resp != "GRANTED" {
		t.Fatalf("a: expected GRANTED, got %q", resp)
	}

	// b waits shorter than a holds
	start := time.Now()
	if resp := b.roundTrip("ACQUIRE lockX 0.2"); resp != "DENIED_TIMEOUT" {
		t.Fatalf("b: expected DENIED_TIMEOUT, got %q", resp)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("b was denied after %v, before its timeout", elapsed)
	}

	if resp := a.roundTrip("RELEASE lockX"); resp != "RELEASED" {
		t.Fatalf("a: expected RELEASED, got %q", resp)
	}

	// the lock is free again, a non-blocking acquire succeeds
	if resp := c.roundTrip("ACQUIRE lockX 0"); resp != "GRANTED" {
		t.Errorf("c: expected GRANTED, got %q", resp)
	}
}

// TestBlockedAcquireHandoff tests that a waiter is granted the lock the
// moment the holder releases it
func TestBlockedAcquireHandoff(t *testing.T) {
	addr, stop := startTestServer(t, 0)
	defer stop()

	a := dialTest(t, addr)
	b := dialTest(t, addr)

	if resp := a.roundTrip("ACQUIRE lockX 0"); resp != "GRANTED" {
		t.Fatalf("a: expected GRANTED, got %q", resp)
	}

	b.send("ACQUIRE lockX 5")
	time.Sleep(100 * time.Millisecond) // let b reach the queue

	if resp := a.roundTrip("RELEASE lockX"); resp != "RELEASED" {
		t.Fatalf("a: expected RELEASED, got %q", resp)
	}
	if resp := b.recv(); resp != "GRANTED" {
		t.Errorf("b: expected GRANTED after handoff, got %q", resp)
	}
}

// TestOwnershipErrors tests the error answers for invalid releases
func TestOwnershipErrors(t *testing.T) {
	addr, stop := startTestServer(t, 0)
	defer stop()

	a := dialTest(t, addr)
	b := dialTest(t, addr)

	if resp := a.roundTrip("RELEASE nothing"); !strings.HasPrefix(resp, "ERROR") {
		t.Errorf("expected ERROR for free lock, got %q", resp)
	}

	if resp := a.roundTrip("ACQUIRE mylock 0"); resp != "GRANTED" {
		t.Fatalf("a: expected GRANTED, got %q", resp)
	}
	if resp := b.roundTrip("RELEASE mylock"); !strings.HasPrefix(resp, "ERROR") {
		t.Errorf("expected ERROR for foreign lock, got %q", resp)
	}

	// the failed release left the lock in place
	if resp := a.roundTrip("RELEASE mylock"); resp != "RELEASED" {
		t.Errorf("a: expected RELEASED, got %q", resp)
	}
}

// TestDisconnectReleasesLocks tests that a dropped connection frees its
// locks for waiting sessions
func TestDisconnectReleasesLocks(t *testing.T) {
	addr, stop := startTestServer(t, 0)
	defer stop()

	a := dialTest(t, addr)
	b := dialTest(t, addr)

	if resp := a.roundTrip("ACQUIRE mylock 0"); resp != "GRANTED" {
		t.Fatalf("a: expected GRANTED, got %q", resp)
	}

	b.send("ACQUIRE mylock 5")
	time.Sleep(100 * time.Millisecond) // let b reach the queue

	a.conn.Close()

	if resp := b.recv(); resp != "GRANTED" {
		t.Errorf("b: expected GRANTED after disconnect, got %q", resp)
	}
}

// TestProtocolErrorKeepsConnection tests that malformed lines are answered
// without closing the session
func TestProtocolErrorKeepsConnection(t *testing.T) {
	addr, stop := startTestServer(t, 0)
	defer stop()

	c := dialTest(t, addr)

	for _, line := range []string{"BOGUS", "ACQUIRE", "ACQUIRE mylock abc", "RELEASE"} {
		if resp := c.roundTrip(line); !strings.HasPrefix(resp, "ERROR") {
			t.Errorf("expected ERROR for %q, got %q", line, resp)
		}
	}

	// the same connection still works
	if resp := c.roundTrip("ACQUIRE mylock 0"); resp != "GRANTED" {
		t.Errorf("expected GRANTED after protocol errors, got %q", resp)
	}
}

// TestSessionIsolation tests that one session's malformed input does not
// disturb another session
func TestSessionIsolation(t *testing.T) {
	addr, stop := startTestServer(t, 0)
	defer stop()

	bad := dialTest(t, addr)
	good := dialTest(t, addr)

	if resp := good.roundTrip("ACQUIRE mylock 0"); resp != "GRANTED" {
		t.Fatalf("expected GRANTED, got %q", resp)
	}
	if resp := bad.roundTrip("garbage input here"); !strings.HasPrefix(resp, "ERROR") {
		t.Fatalf("expected ERROR, got %q", resp)
	}
	bad.conn.Close()

	if resp := good.roundTrip("RELEASE mylock"); resp != "RELEASED" {
		t.Errorf("expected RELEASED, got %q", resp)
	}
}

// TestHoldExpiryOverWire tests that a configured hold cap frees the lock
func TestHoldExpiryOverWire(t *testing.T) {
	addr, stop := startTestServer(t, 200*time.Millisecond)
	defer stop()

	a := dialTest(t, addr)
	b := dialTest(t, addr)

	if resp := a.roundTrip("ACQUIRE mylock 0"); resp != "GRANTED" {
		t.Fatalf("a: expected GRANTED, got %q", resp)
	}

	// b outwaits the hold cap
	if resp := b.roundTrip("ACQUIRE mylock 5"); resp != "GRANTED" {
		t.Errorf("b: expected GRANTED after hold expiry, got %q", resp)
	}
}

// TestShutdownClosesSessions tests that stopping the server terminates open
// connections
func TestShutdownClosesSessions(t *testing.T) {
	addr, stop := startTestServer(t, 0)

	c := dialTest(t, addr)
	if resp := c.roundTrip("HEALTH"); resp != "OK" {
		t.Fatalf("expected OK, got %q", resp)
	}

	stop()

	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.reader.ReadString('\n'); err == nil {
		t.Error("expected the connection to be closed after shutdown")
	}
}
