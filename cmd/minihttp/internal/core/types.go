package core

import (
	"context"
	"net"

	"github.com/rs/xid"
)

// ConnectionHandler takes full ownership of one accepted connection,
// including closing it.
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, conn net.Conn)
}

// ConnectionHandlerFunc adapts a function to ConnectionHandler.
type ConnectionHandlerFunc func(ctx context.Context, conn net.Conn)

func (f ConnectionHandlerFunc) HandleConnection(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

type connIDKey struct{}

// WithConnID returns a copy of ctx carrying the connection id.
func WithConnID(ctx context.Context, id xid.ID) context.Context {
	return context.WithValue(ctx, connIDKey{}, id)
}

// ConnID returns the connection id stored in ctx, if any.
func ConnID(ctx context.Context) (xid.ID, bool) {
	id, ok := ctx.Value(connIDKey{}).(xid.ID)
	return id, ok
}
