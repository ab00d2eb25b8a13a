package client

import (
	"context"
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Caller issues RPC requests. A non-OK result code comes back as a
// *message.CodeError.
type Caller struct {
	requestor *Requestor
}

func NewCaller(r *Requestor) *Caller {
	return &Caller{requestor: r}
}

// Call blocks until method returns.
func (c *Caller) Call(ctx context.Context, conn transport.Conn, method string, params map[string]any) (any, error) {
	rsp, err := c.requestor.Send(ctx, conn, message.NewRPCRequest(method, params))
	if err != nil {
		return nil, err
	}
	return resultOf(rsp)
}

// AsyncResult is the pending outcome of CallAsync.
type AsyncResult struct {
	future *Future
}

func (a *AsyncResult) Done() <-chan struct{} {
	return a.future.Done()
}

func (a *AsyncResult) Wait(ctx context.Context) (any, error) {
	rsp, err := a.future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resultOf(rsp)
}

// CallAsync sends the request and returns at once.
func (c *Caller) CallAsync(conn transport.Conn, method string, params map[string]any) (*AsyncResult, error) {
	f, err := c.requestor.SendAsync(conn, message.NewRPCRequest(method, params))
	if err != nil {
		return nil, err
	}
	return &AsyncResult{future: f}, nil
}

// CallWithCallback sends the request; cb receives the outcome on the reader
// goroutine.
func (c *Caller) CallWithCallback(conn transport.Conn, method string, params map[string]any, cb func(result any, err error)) error {
	return c.requestor.SendCallback(conn, message.NewRPCRequest(method, params), func(rsp message.Message) {
		cb(resultOf(rsp))
	})
}

func resultOf(rsp message.Message) (any, error) {
	r, ok := rsp.(*message.RPCResponse)
	if !ok {
		return nil, ErrUnexpectedResponse
	}
	if r.RCode() != message.CodeOK {
		return nil, &message.CodeError{Code: r.RCode()}
	}
	return r.Result(), nil
}

// DecodeResult converts a generic result into out, typically a pointer to
// the reply struct of a reflective service.
func DecodeResult(result any, out any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Params converts a struct into a params object.
func Params(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}
