package factory

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/netutil"

	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/config"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/logger"
)

// ListenerFactory creates the TCP listener for the main server
type ListenerFactory struct {
	cfg *config.Config
}

// NewListenerFactory creates a new listener factory
func NewListenerFactory(cfg *config.Config) *ListenerFactory {
	return &ListenerFactory{cfg: cfg}
}

// Create binds the configured address. With MaxConnections > 0, Accept
// blocks once that many connections are open.
func (f *ListenerFactory) Create(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", f.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", f.cfg.Addr(), err)
	}

	if f.cfg.MaxConnections > 0 {
		logger.Info("Connection limit enabled", "max_connections", f.cfg.MaxConnections)
		return netutil.LimitListener(listener, f.cfg.MaxConnections), nil
	}

	logger.Warn("No connection limit - every accepted connection gets its own goroutine")
	return listener, nil
}
