package handler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/logger"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/request"
	"github.com/hasirciogluhq/minihttp/cmd/minihttp/internal/response"
)

// ConnHandler serves exactly one request per connection and then closes it.
// Any parse or write error only aborts the exchange; nothing is sent back
// to the client to report it.
type ConnHandler struct {
	// Access receives one "METHOD URI" line per parsed request.
	Access io.Writer
	// ReadTimeout bounds reading the whole request head. Zero means no
	// deadline, so a stalled client holds its goroutine indefinitely.
	ReadTimeout time.Duration
}

// HandleConnection implements core.ConnectionHandler.
// It takes full ownership of the connection lifecycle.
func (h *ConnHandler) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if h.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.ReadTimeout)); err != nil {
			logger.DebugContext(ctx, "Failed to set read deadline", "error", err)
			return
		}
	}

	if err := h.exchange(conn); err != nil {
		logger.DebugContext(ctx, "Exchange aborted", "remote_addr", conn.RemoteAddr(), "error", err)
	}
}

// exchange reads one request from rw and writes its response.
func (h *ConnHandler) exchange(rw io.ReadWriter) error {
	req, err := request.Read(bufio.NewReader(rw))
	if err != nil {
		return err
	}

	if h.Access != nil {
		fmt.Fprintln(h.Access, req.LogLine())
	}

	bw := bufio.NewWriter(rw)
	if err := response.Write(bw, req); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", response.ErrWriteFailure, err)
	}
	return nil
}
