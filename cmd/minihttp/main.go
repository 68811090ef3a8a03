package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/api"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/config"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/core"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/factory"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// Load configuration from file, environment and flags
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger.Init(cfg.Debug, os.Stdout)
	logger.Info("Starting minihttp...",
		"addr", cfg.Addr(),
		"max_connections", cfg.MaxConnections,
		"read_timeout", cfg.ReadTimeout)

	var healthServer *api.HealthServer
	if cfg.HealthServerPort != "" {
		healthServer = api.NewHealthServer(":" + cfg.HealthServerPort)
		healthServer.Start()
		logger.Info("Health server started", "port", cfg.HealthServerPort)
	}

	listener, err := factory.NewListenerFactory(cfg).Create(ctx)
	if err != nil {
		logger.Error("Failed to start listener", "addr", cfg.Addr(), "error", err)
		return 1
	}
	logger.Info("Listening", "addr", listener.Addr().String())

	server := &core.Server{
		Listener:          listener,
		ConnectionHandler: factory.NewHandlerFactory(cfg).Create(),
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	if healthServer != nil {
		healthServer.SetReadinessCheck(server.Serving)
		healthServer.SetReady(true)
	}
	logger.Info("Ready to accept connections")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	code := 0
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		logger.Error("Server error", "error", err)
		code = 1
	}

	if healthServer != nil {
		healthServer.SetReady(false)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Warn("Shutdown incomplete", "error", err)
	}
	if healthServer != nil {
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Warn("Health server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
	return code
}
