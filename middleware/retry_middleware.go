package middleware

import (
	"context"
	"mini-jsonrpc/message"
	"time"

	"go.uber.org/zap"
)

func retryable(code message.RCode) bool {
	return code == message.CodeInternalError || code == message.CodeTimeout
}

// RetryMiddleware re-runs next while it answers INTERNAL_ERROR or TIMEOUT,
// up to maxRetries extra attempts, doubling baseDelay between them.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.L().Named("rpc")
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
			rsp := next(ctx, req)
			for i := 0; i < maxRetries && retryable(rsp.RCode()); i++ {
				logger.Info("retrying rpc",
					zap.String("method", req.Method()), zap.Int("attempt", i+1), zap.Stringer("rcode", rsp.RCode()))
				select {
				case <-time.After(baseDelay << i):
				case <-ctx.Done():
					return rsp
				}
				rsp = next(ctx, req)
			}
			return rsp
		}
	}
}
