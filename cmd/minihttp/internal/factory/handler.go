package factory

import (
	"io"
	"os"

	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/config"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/core"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/handler"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/logger"
)

// HandlerFactory creates the per-connection handler
type HandlerFactory struct {
	cfg    *config.Config
	access io.Writer
}

// NewHandlerFactory creates a handler factory that writes access lines to stdout
func NewHandlerFactory(cfg *config.Config) *HandlerFactory {
	return &HandlerFactory{cfg: cfg, access: os.Stdout}
}

// WithAccessLog redirects access lines to w
func (f *HandlerFactory) WithAccessLog(w io.Writer) *HandlerFactory {
	f.access = w
	return f
}

// Create creates a connection handler based on configuration
func (f *HandlerFactory) Create() core.ConnectionHandler {
	if f.cfg.ReadTimeout > 0 {
		logger.Info("Read timeout enabled", "read_timeout", f.cfg.ReadTimeout)
	} else {
		logger.Warn("No read timeout - stalled clients hold their connection indefinitely")
	}

	return &handler.ConnHandler{
		Access:      f.access,
		ReadTimeout: f.cfg.ReadTimeout,
	}
}
