package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/distlockd/distlockd/lib/locktable"
	"github.com/distlockd/distlockd/rpc/common"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

var logger = common.GetLogger("rpc/server")

// defaultWriteTimeout bounds a single response write. A client that stops
// reading must not be able to park a session goroutine forever.
const defaultWriteTimeout = 10 * time.Second

// Server owns the accept loop, the shared lock table and the lifetime of all
// sessions. One Server instance is one authoritative lock domain.
type Server struct {
	config   common.ServerConfig
	table    locktable.ILockTable
	sessions *xsync.MapOf[string, *session]
	wg       sync.WaitGroup
}

// NewServer creates a lock server around the given table.
//
// Usage:
//
//	table := locktable.New(cfg.MaxHold)
//	srv := server.NewServer(cfg, table)
//	if err := srv.Serve(ctx); err != nil {
//	    // startup failure
//	}
func NewServer(config common.ServerConfig, table locktable.ILockTable) *Server {
	return &Server{
		config:   config,
		table:    table,
		sessions: xsync.NewMapOf[string, *session](),
	}
}

// Serve binds the configured address and runs until the context is
// cancelled. A bind failure is returned to the caller; everything after a
// successful bind is handled internally and logged.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Addr(), err)
	}
	return s.ServeOnListener(ctx, listener)
}

// ServeOnListener runs the server on a pre-existing listener. Used by Serve
// and by tests that want an ephemeral port.
func (s *Server) ServeOnListener(ctx context.Context, listener net.Listener) error {
	logger.Infof("listening on %s", listener.Addr())
	logger.Infof("%s", s.config.String())

	// Per-session contexts hang off this one so shutdown interrupts
	// in-flight lock waits.
	sessCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	metricsSrv := s.startMetrics()

	// Close the listener when shutdown is signaled; Accept then fails and
	// the loop below falls into the drain path.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.shutdown(cancelSessions, metricsSrv)
				return nil
			default:
				logger.Errorf("accept error: %v", err)
				continue
			}
		}

		sess := &session{
			id:   uuid.NewString(),
			conn: conn,
			srv:  s,
		}
		s.sessions.Store(sess.id, sess)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run(sessCtx)
		}()
	}
}

// shutdown stops all sessions, waits for them bounded by the drain timeout
// and tears down the lock table. After this no lock state survives.
func (s *Server) shutdown(cancelSessions context.CancelFunc, metricsSrv *http.Server) {
	logger.Infof("shutting down, draining %d sessions", s.sessions.Size())

	cancelSessions()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if s.config.DrainTimeout > 0 {
		select {
		case <-done:
		case <-time.After(s.config.DrainTimeout):
			logger.Warningf("drain timeout reached, force-closing sessions")
			s.sessions.Range(func(_ string, sess *session) bool {
				sess.conn.Close()
				return true
			})
			<-done
		}
	} else {
		<-done
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	s.table.Close()
	logger.Infof("shutdown complete")
}
