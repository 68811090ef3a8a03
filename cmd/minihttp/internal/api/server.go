package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/logger"
)

// ReadinessCheck reports whether the component behind /ready can take
// traffic right now.
type ReadinessCheck func() bool

// HealthServer reports liveness and readiness of the listener on a
// separate port. It never touches the main protocol.
type HealthServer struct {
	server *http.Server
	ready  atomic.Bool
	check  atomic.Pointer[ReadinessCheck]
}

func NewHealthServer(addr string) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)

	return hs
}

// Handler exposes the routes, mostly for tests.
func (s *HealthServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HealthServer) Start() {
	go func() {
		logger.Info("Health server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", "error", err)
		}
	}()
}

func (s *HealthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// SetReady flips the manual readiness flag, e.g. to drain before shutdown.
func (s *HealthServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

// SetReadinessCheck makes /ready also depend on check, typically the
// accept loop's Serving state.
func (s *HealthServer) SetReadinessCheck(check ReadinessCheck) {
	s.check.Store(&check)
}

// Ready is true when the flag is set and the check, if any, passes.
func (s *HealthServer) Ready() bool {
	if !s.ready.Load() {
		return false
	}
	if check := s.check.Load(); check != nil && *check != nil {
		return (*check)()
	}
	return true
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Ready() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready"))
}
