package core

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/xid"
)

type errListener struct {
	net.Listener
	err error
}

func (l errListener) Accept() (net.Conn, error) { return nil, l.err }
func (l errListener) Close() error              { return nil }

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return ln
}

func TestServeReturnsNilAfterClose(t *testing.T) {
	srv := &Server{
		Listener:          listen(t),
		ConnectionHandler: ConnectionHandlerFunc(func(ctx context.Context, conn net.Conn) { conn.Close() }),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after Close")
	}
}

func TestServeReturnsAcceptError(t *testing.T) {
	want := errors.New("accept failed")
	srv := &Server{Listener: errListener{err: want}}

	if err := srv.Serve(); !errors.Is(err, want) {
		t.Errorf("Serve() error = %v, want %v", err, want)
	}
}

// flakyListener fails the first failures Accept calls with err, then hands
// out conns, then blocks until closed.
type flakyListener struct {
	mu       sync.Mutex
	failures int
	err      error
	conns    []net.Conn
	calls    int
	done     chan struct{}
	once     sync.Once
}

func newFlakyListener(failures int, err error, conns ...net.Conn) *flakyListener {
	return &flakyListener{failures: failures, err: err, conns: conns, done: make(chan struct{})}
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	l.calls++
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, l.err
	}
	if len(l.conns) > 0 {
		c := l.conns[0]
		l.conns = l.conns[1:]
		l.mu.Unlock()
		return c, nil
	}
	l.mu.Unlock()

	<-l.done
	return nil, net.ErrClosed
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *flakyListener) Addr() net.Addr { return &net.TCPAddr{} }

func TestServeRetriesTemporaryAcceptErrors(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	emfile := &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	ln := newFlakyListener(3, emfile, server)

	handled := make(chan struct{})
	srv := &Server{
		Listener: ln,
		ConnectionHandler: ConnectionHandlerFunc(func(ctx context.Context, conn net.Conn) {
			conn.Close()
			close(handled)
		}),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case <-handled:
	case err := <-errCh:
		t.Fatalf("Serve() returned %v before accepting", err)
	case <-time.After(2 * time.Second):
		t.Fatal("connection not handled after temporary errors")
	}

	srv.Close()
	if err := <-errCh; err != nil {
		t.Errorf("Serve() error = %v, want nil", err)
	}
	ln.mu.Lock()
	defer ln.mu.Unlock()
	if ln.calls < 4 {
		t.Errorf("Accept called %d times, want at least 4", ln.calls)
	}
}

// closingListener reports a connection only after the server was closed.
type closingListener struct {
	conn    net.Conn
	release chan struct{}
}

func (l *closingListener) Accept() (net.Conn, error) {
	<-l.release
	return l.conn, nil
}

func (l *closingListener) Close() error   { return nil }
func (l *closingListener) Addr() net.Addr { return &net.TCPAddr{} }

func TestConnectionAcceptedDuringCloseIsDropped(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	ln := &closingListener{conn: server, release: make(chan struct{})}
	srv := &Server{
		Listener: ln,
		ConnectionHandler: ConnectionHandlerFunc(func(ctx context.Context, conn net.Conn) {
			t.Error("handler called for a connection accepted after Close")
			conn.Close()
		}),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	srv.Close()
	close(ln.release)

	if err := <-errCh; err != nil {
		t.Errorf("Serve() error = %v, want nil", err)
	}

	// the dropped conn is closed, so the peer sees EOF
	client.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := client.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("client read error = %v, want EOF", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServing(t *testing.T) {
	ln := newFlakyListener(0, nil)
	srv := &Server{Listener: ln}

	if srv.Serving() {
		t.Error("Serving() = true before Serve")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	deadline := time.Now().Add(2 * time.Second)
	for !srv.Serving() {
		if time.Now().After(deadline) {
			t.Fatal("Serving() never became true")
		}
		time.Sleep(time.Millisecond)
	}

	srv.Close()
	if srv.Serving() {
		t.Error("Serving() = true after Close")
	}
	<-errCh
}

func TestEachConnectionGetsAnID(t *testing.T) {
	ln := listen(t)

	var mu sync.Mutex
	ids := map[xid.ID]bool{}
	var wg sync.WaitGroup
	wg.Add(3)

	srv := &Server{
		Listener: ln,
		ConnectionHandler: ConnectionHandlerFunc(func(ctx context.Context, conn net.Conn) {
			defer wg.Done()
			defer conn.Close()
			id, ok := ConnID(ctx)
			if !ok {
				t.Error("context has no connection id")
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}),
	}
	go srv.Serve()
	defer srv.Close()

	for i := 0; i < 3; i++ {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
	}
	wg.Wait()

	if len(ids) != 3 {
		t.Errorf("got %d distinct ids, want 3", len(ids))
	}
}

func TestShutdownWaitsForInFlight(t *testing.T) {
	ln := listen(t)

	started := make(chan struct{})
	release := make(chan struct{})
	srv := &Server{
		Listener: ln,
		ConnectionHandler: ConnectionHandlerFunc(func(ctx context.Context, conn net.Conn) {
			defer conn.Close()
			close(started)
			<-release
		}),
	}
	go srv.Serve()

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	<-started

	// still busy: shutdown gives up when its context expires
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}

	close(release)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestConnIDMissing(t *testing.T) {
	if _, ok := ConnID(context.Background()); ok {
		t.Error("ConnID() ok on empty context")
	}
	id := xid.New()
	if got, ok := ConnID(WithConnID(context.Background(), id)); !ok || got != id {
		t.Errorf("ConnID() = %v, %v", got, ok)
	}
}
