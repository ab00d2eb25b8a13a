package middleware

import (
	"context"
	"mini-jsonrpc/message"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware admits r requests per second with the given burst and
// answers RATE_LIMITED beyond that. The bucket is shared by every method.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
			if !limiter.Allow() {
				return message.NewRPCResponse(message.CodeRateLimited, nil)
			}
			return next(ctx, req)
		}
	}
}
