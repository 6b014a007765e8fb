package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/distlockd/distlockd/lib/locktable"
	"github.com/distlockd/distlockd/rpc/protocol"
)

// session is one accepted connection. The session ID is generated server
// side at accept time and is the identity locks are owned by; nothing about
// the socket (remote address, fd) participates in ownership.
type session struct {
	id   string
	conn net.Conn
	srv  *Server
}

// run executes the request loop until the peer disconnects or shutdown
// interrupts it. All cleanup is funneled through the deferred block so every
// exit path releases the session's locks exactly once.
func (s *session) run(ctx context.Context) {
	activeSessions.Inc()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("session %s panicked: %v", s.id, r)
		}
		s.srv.sessions.Delete(s.id)
		s.srv.table.CleanupSession(s.id)
		s.conn.Close()
		activeSessions.Dec()
		logger.Debugf("session %s closed", s.id)
	}()

	logger.Debugf("session %s connected from %s", s.id, s.conn.RemoteAddr())

	reader := protocol.NewRequestReader(s.conn)
	for {
		req, err := reader.Next()
		if err != nil {
			var perr *protocol.Error
			if errors.As(err, &perr) {
				// Malformed input is answered, not fatal. The
				// connection stays usable for the next line.
				protocolErrors.Inc()
				if werr := s.write(protocol.ErrorResponse(perr.Reason)); werr != nil {
					return
				}
				continue
			}
			if err != io.EOF {
				logger.Debugf("session %s read error: %v", s.id, err)
			}
			return
		}

		resp, fatal := s.dispatch(ctx, req)
		if fatal {
			return
		}
		if err := s.write(resp); err != nil {
			logger.Debugf("session %s write error: %v", s.id, err)
			return
		}
	}
}

// dispatch maps a parsed request to a response line. The fatal flag is set
// when the session must end without answering, i.e. on shutdown.
func (s *session) dispatch(ctx context.Context, req *protocol.Request) ([]byte, bool) {
	switch req.Cmd {
	case protocol.CmdAcquire:
		result, err := s.srv.table.Acquire(ctx, req.Name, s.id, req.Timeout)
		switch {
		case errors.Is(err, locktable.ErrShutdown):
			return nil, true
		case err != nil:
			// Context cancellation during a wait means the server
			// is going down; the peer gets no answer.
			return nil, true
		case result == locktable.Granted:
			acquireGranted.Inc()
			return protocol.Granted(), false
		default:
			acquireDenied.Inc()
			return protocol.DeniedTimeout(), false
		}

	case protocol.CmdRelease:
		err := s.srv.table.Release(req.Name, s.id)
		switch {
		case err == nil:
			releases.Inc()
			return protocol.Released(), false
		case errors.Is(err, locktable.ErrNotHeld):
			ownershipErrors.Inc()
			return protocol.ErrorResponse("lock not held"), false
		case errors.Is(err, locktable.ErrNotOwner):
			ownershipErrors.Inc()
			return protocol.ErrorResponse("lock held by another session"), false
		default:
			return nil, true
		}

	case protocol.CmdHealth:
		return protocol.OK(), false

	default:
		protocolErrors.Inc()
		return protocol.ErrorResponse("unknown command"), false
	}
}

// write sends one response line under the write deadline.
func (s *session) write(line []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return err
	}
	_, err := s.conn.Write(line)
	return err
}
