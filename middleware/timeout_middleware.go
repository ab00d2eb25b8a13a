package middleware

import (
	"context"
	"mini-jsonrpc/message"
	"time"
)

// TimeoutMiddleware answers TIMEOUT when next does not return within timeout.
// The handler keeps running in the background with a cancelled context.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.RPCResponse, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case rsp := <-done:
				return rsp
			case <-ctx.Done():
				return message.NewRPCResponse(message.CodeTimeout, nil)
			}
		}
	}
}
