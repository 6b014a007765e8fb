package client

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/distlockd/distlockd/rpc/protocol"
)

// ----------------------------------------------------------------------------
// Pooled Connection
// ----------------------------------------------------------------------------

// pooledConn is one TCP connection to the server plus its buffered reader.
// Because a connection maps 1:1 to a server session, the conn a lock was
// acquired on is the only conn that can release it.
type pooledConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(addr string) (*pooledConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &pooledConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// roundTrip writes one command line and reads one response line. A zero
// deadline disables the I/O timeout.
func (c *pooledConn) roundTrip(line string, deadline time.Duration) (protocol.Status, string, error) {
	if deadline > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(deadline)); err != nil {
			return "", "", err
		}
	} else {
		if err := c.conn.SetDeadline(time.Time{}); err != nil {
			return "", "", err
		}
	}

	if _, err := c.conn.Write([]byte(line)); err != nil {
		return "", "", err
	}
	resp, err := c.reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	return protocol.ParseResponse(strings.TrimRight(resp, "\r\n"))
}

func (c *pooledConn) close() {
	c.conn.Close()
}

// ----------------------------------------------------------------------------
// Connection Pool
// ----------------------------------------------------------------------------

// connPool is a bounded pool of connections to one server. Get blocks when
// all connections are checked out, so the pool size caps the client's
// concurrency against the server.
type connPool struct {
	addr string
	size int

	mu     sync.Mutex
	cond   *sync.Cond
	idle   []*pooledConn
	open   int
	closed bool
}

func newConnPool(addr string, size int) *connPool {
	if size <= 0 {
		size = 1
	}
	p := &connPool{
		addr: addr,
		size: size,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// get returns an idle connection, dials a new one while under the size
// limit, or blocks until a connection is put back.
func (p *connPool) get() (*pooledConn, error) {
	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClientClosed
		}
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return c, nil
		}
		if p.open < p.size {
			p.open++
			p.mu.Unlock()
			c, err := dial(p.addr)
			if err != nil {
				p.mu.Lock()
				p.open--
				p.cond.Signal()
				p.mu.Unlock()
				return nil, err
			}
			return c, nil
		}
		p.cond.Wait()
	}
}

// put returns a connection to the pool. Broken connections are closed and
// their slot is freed so get can dial a replacement.
func (p *connPool) put(c *pooledConn, broken bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if broken || p.closed {
		c.close()
		p.open--
	} else {
		p.idle = append(p.idle, c)
	}
	p.cond.Signal()
}

// discard frees the slot of a connection that will never come back, such as
// one pinned to a lock and closed by the client.
func (p *connPool) discard(c *pooledConn) {
	c.close()
	p.mu.Lock()
	p.open--
	p.cond.Signal()
	p.mu.Unlock()
}

// closeAll closes idle connections and rejects future gets. Connections
// currently checked out are closed by their holder via put or discard.
func (p *connPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for _, c := range p.idle {
		c.close()
		p.open--
	}
	p.idle = nil
	p.cond.Broadcast()
}
