package server

import (
	"context"
	"errors"
	"mini-jsonrpc/message"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Multiply(ctx context.Context, args *Args, reply *Reply) error {
	reply.Result = args.A * args.B
	return nil
}

func (a *Arith) Divide(args *Args, reply *Reply) error {
	if args.B == 0 {
		return errors.New("divide by zero")
	}
	reply.Result = args.A / args.B
	return nil
}

// Not RPC-shaped, must be skipped.
func (a *Arith) Helper(x int) int { return x }

type Lister struct{}

func (l *Lister) Names(args *Args, reply *[]string) error { return nil }

func (l *Lister) Index(args *Args, reply *map[string]int) error { return nil }

func asInt(v any) (int64, bool) { return message.AsInt(v) }

func handle(r *Router, method string, params map[string]any) *message.RPCResponse {
	return r.Handle(context.Background(), message.NewRPCRequest(method, params))
}

func TestRouterDescribe(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.RegisterMethod(addDescribe(t))

	rsp := handle(r, "Add", map[string]any{"a": 1, "b": 2})
	require.Equal(t, message.CodeOK, rsp.RCode())
	n, ok := message.AsInt(rsp.Result())
	require.True(t, ok)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, rsp.Check())

	assert.Equal(t, message.CodeNotFoundService, handle(r, "Sub", map[string]any{}).RCode())
	assert.Equal(t, message.CodeInvalidParams, handle(r, "Add", map[string]any{"a": 1}).RCode())
	assert.Equal(t, message.CodeInvalidParams, handle(r, "Add", map[string]any{"a": 1, "b": "x"}).RCode())
}

func TestRouterCallbackFailures(t *testing.T) {
	r := NewRouter(zap.NewNop())
	register := func(name string, cb ServiceCallback) {
		desc, err := NewDescribeBuilder().SetMethodName(name).SetReturnType(Integral).SetCallback(cb).Build()
		require.NoError(t, err)
		r.RegisterMethod(desc)
	}
	register("Fail", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	register("Panic", func(ctx context.Context, params map[string]any) (any, error) {
		panic("boom")
	})
	register("WrongType", func(ctx context.Context, params map[string]any) (any, error) {
		return "three", nil
	})
	register("Coded", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, &message.CodeError{Code: message.CodeInvalidParams}
	})

	assert.Equal(t, message.CodeInternalError, handle(r, "Fail", map[string]any{}).RCode())
	assert.Equal(t, message.CodeInternalError, handle(r, "Panic", map[string]any{}).RCode())
	assert.Equal(t, message.CodeInternalError, handle(r, "WrongType", map[string]any{}).RCode())
	assert.Equal(t, message.CodeInvalidParams, handle(r, "Coded", map[string]any{}).RCode())
}

func TestRouterReflective(t *testing.T) {
	r := NewRouter(zap.NewNop())
	names, err := r.Register(&Arith{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Arith.Add", "Arith.Divide", "Arith.Multiply"}, names)

	rsp := handle(r, "Arith.Add", map[string]any{"A": 1, "B": 2})
	require.Equal(t, message.CodeOK, rsp.RCode())
	obj, ok := message.AsObject(rsp.Result())
	require.True(t, ok)
	n, _ := message.AsInt(obj["Result"])
	assert.EqualValues(t, 3, n)

	rsp = handle(r, "Arith.Multiply", map[string]any{"A": 4, "B": 6})
	require.Equal(t, message.CodeOK, rsp.RCode())
	obj, _ = message.AsObject(rsp.Result())
	n, _ = message.AsInt(obj["Result"])
	assert.EqualValues(t, 24, n)

	assert.Equal(t, message.CodeInternalError, handle(r, "Arith.Divide", map[string]any{"A": 1, "B": 0}).RCode())
	assert.Equal(t, message.CodeInvalidParams, handle(r, "Arith.Add", map[string]any{"A": "one"}).RCode())
	assert.Equal(t, message.CodeNotFoundService, handle(r, "Arith.Helper", map[string]any{}).RCode())
}

func TestReflectiveNilReply(t *testing.T) {
	r := NewRouter(zap.NewNop())
	_, err := r.Register(&Lister{})
	require.NoError(t, err)

	rsp := handle(r, "Lister.Names", map[string]any{})
	require.Equal(t, message.CodeOK, rsp.RCode())
	assert.Equal(t, []any{}, rsp.Result())

	rsp = handle(r, "Lister.Index", map[string]any{})
	require.Equal(t, message.CodeOK, rsp.RCode())
	assert.Equal(t, map[string]any{}, rsp.Result())
}

func TestRegisterRejectsBadReceivers(t *testing.T) {
	r := NewRouter(zap.NewNop())
	_, err := r.Register(Arith{})
	assert.Error(t, err)
	_, err = r.Register(new(int))
	assert.Error(t, err)
	_, err = r.Register(&struct{}{})
	assert.Error(t, err)
}
