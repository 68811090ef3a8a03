package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/xid"

	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/logger"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server is the generic TCP accept loop.
// Connections are independent; there is no admission control here.
type Server struct {
	Listener          net.Listener
	ConnectionHandler ConnectionHandler

	mu      sync.Mutex // guards closed and active.Add
	closed  bool
	active  sync.WaitGroup
	serving atomic.Bool
}

// Serve accepts connections until the listener fails permanently or the
// server is closed. Resource exhaustion (EMFILE and friends) is retried
// with backoff. It returns nil after Close or Shutdown.
func (s *Server) Serve() error {
	s.serving.Store(true)
	defer s.serving.Store(false)

	var delay time.Duration
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				logger.Info("Listener closed, server shutting down")
				return nil
			}
			if !isTemporary(err) {
				return err
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			logger.Warn("Accept failed, retrying", "error", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.active.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(clientConn net.Conn) {
	defer s.active.Done()

	id := xid.New()
	ctx := WithConnID(context.Background(), id)
	ctx = logger.NewContext(ctx, "conn_id", id.String())
	logger.DebugContext(ctx, "Connection accepted", "remote_addr", clientConn.RemoteAddr())

	// Delegate the entire lifecycle to the handler
	s.ConnectionHandler.HandleConnection(ctx, clientConn)
}

// Serving reports whether Serve is running and the server is not closed.
func (s *Server) Serving() bool {
	return s.serving.Load() && !s.isClosed()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting new connections. In-flight connections keep running.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Listener.Close()
}

// Shutdown closes the listener and waits for in-flight connections to
// finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Close()

	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isTemporary reports accept errors caused by transient resource
// exhaustion or an aborted handshake.
func isTemporary(err error) bool {
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
