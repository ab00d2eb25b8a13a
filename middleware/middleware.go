// Package middleware wraps the server's RPC handler. Middlewares compose as
// an onion: Chain(A, B)(h) runs A, then B, then h, and unwinds in reverse.
package middleware

import (
	"context"
	"mini-jsonrpc/message"
)

// HandlerFunc answers one RPC request. It never returns nil; failures are
// expressed through the response rcode.
type HandlerFunc func(ctx context.Context, req *message.RPCRequest) *message.RPCResponse

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one listed is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
