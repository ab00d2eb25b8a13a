package middleware

import (
	"context"
	"mini-jsonrpc/message"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func echoHandler(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
	return message.NewRPCResponse(message.CodeOK, "ok")
}

func slowHandler(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
	time.Sleep(200 * time.Millisecond)
	return message.NewRPCResponse(message.CodeOK, "ok")
}

func addRequest() *message.RPCRequest {
	return message.NewRPCRequest("Add", map[string]any{"a": 1, "b": 2})
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(zap.NewNop())(echoHandler)

	rsp := handler(context.Background(), addRequest())
	if rsp == nil {
		t.Fatal("expect non-nil response")
	}
	if rsp.Result() != "ok" {
		t.Fatalf("expect result 'ok', got '%v'", rsp.Result())
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeoutMiddleware(500 * time.Millisecond)(echoHandler)

	rsp := handler(context.Background(), addRequest())
	if rsp.RCode() != message.CodeOK {
		t.Fatalf("expect OK, got %s", rsp.RCode())
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeoutMiddleware(50 * time.Millisecond)(slowHandler)

	rsp := handler(context.Background(), addRequest())
	if rsp.RCode() != message.CodeTimeout {
		t.Fatalf("expect TIMEOUT, got %s", rsp.RCode())
	}
}

func TestRateLimit(t *testing.T) {
	// burst 2: two pass immediately, the third is refused
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		if rsp := handler(context.Background(), addRequest()); rsp.RCode() != message.CodeOK {
			t.Fatalf("request %d should pass, got %s", i, rsp.RCode())
		}
	}
	if rsp := handler(context.Background(), addRequest()); rsp.RCode() != message.CodeRateLimited {
		t.Fatalf("request 3 should be rate limited, got %s", rsp.RCode())
	}
}

func TestRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
		if calls.Add(1) < 3 {
			return message.NewRPCResponse(message.CodeInternalError, nil)
		}
		return message.NewRPCResponse(message.CodeOK, 3)
	}
	handler := RetryMiddleware(3, time.Millisecond, zap.NewNop())(flaky)

	rsp := handler(context.Background(), addRequest())
	if rsp.RCode() != message.CodeOK {
		t.Fatalf("expect OK after retries, got %s", rsp.RCode())
	}
	if calls.Load() != 3 {
		t.Fatalf("expect 3 calls, got %d", calls.Load())
	}
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	missing := func(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
		calls.Add(1)
		return message.NewRPCResponse(message.CodeNotFoundService, nil)
	}
	handler := RetryMiddleware(3, time.Millisecond, zap.NewNop())(missing)

	if rsp := handler(context.Background(), addRequest()); rsp.RCode() != message.CodeNotFoundService {
		t.Fatalf("expect NOT_FOUND_SERVICE, got %s", rsp.RCode())
	}
	if calls.Load() != 1 {
		t.Fatalf("expect a single call, got %d", calls.Load())
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	handler := Chain(mark("outer"), LoggingMiddleware(zap.NewNop()), mark("inner"))(echoHandler)

	rsp := handler(context.Background(), addRequest())
	if rsp.RCode() != message.CodeOK {
		t.Fatalf("expect OK, got %s", rsp.RCode())
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("unexpected order %v", order)
	}
}
