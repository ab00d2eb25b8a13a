package middleware

import (
	"context"
	"mini-jsonrpc/message"
	"time"

	"go.uber.org/zap"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.L().Named("rpc")
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
			start := time.Now()
			rsp := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.Method()),
				zap.String("id", req.ID()),
				zap.Duration("duration", time.Since(start)),
			}
			if code := rsp.RCode(); code != message.CodeOK {
				logger.Warn("rpc failed", append(fields, zap.Stringer("rcode", code))...)
				return rsp
			}
			logger.Debug("rpc served", fields...)
			return rsp
		}
	}
}
