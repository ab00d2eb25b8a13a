// Package client implements the calling side: request/response correlation,
// RPC calls in three styles, method registration, discovery with a local
// host cache, and topic operations.
//
// Every outbound request goes through a Requestor, which parks it in a pending
// table keyed by message id until the dispatcher delivers the matching
// response:
//
//	Send(req) ──→ pending[id] = {future | callback} ──→ conn.Send
//	reader goroutine: response(id) ──→ Dispatcher ──→ OnResponse
//	                  ──→ remove pending[id] ──→ resolve future / run callback
package client

import (
	"context"
	"errors"
	"fmt"
	"mini-jsonrpc/message"
	"mini-jsonrpc/metrics"
	"mini-jsonrpc/transport"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrUnexpectedResponse = errors.New("client: unexpected response type")
	ErrDuplicateID        = errors.New("client: request id already pending")
)

// Callback receives the response to a SendCallback request. It runs on the
// connection's reader goroutine and must not block for long.
type Callback func(rsp message.Message)

// Future is a write-once slot for one response.
type Future struct {
	once sync.Once
	done chan struct{}
	rsp  message.Message
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(rsp message.Message) {
	f.once.Do(func() {
		f.rsp = rsp
		close(f.done)
	})
}

// Done is closed once the response is in.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the response arrives or ctx ends. Giving up on ctx does
// not cancel the request; a late response still completes the future.
func (f *Future) Wait(ctx context.Context) (message.Message, error) {
	select {
	case <-f.done:
		return f.rsp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pendingCall struct {
	req      message.Message
	conn     transport.Conn
	future   *Future
	callback Callback
}

func (p *pendingCall) complete(rsp message.Message) {
	if p.future != nil {
		p.future.complete(rsp)
		return
	}
	p.callback(rsp)
}

type Requestor struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
	logger  *zap.Logger
}

func NewRequestor(logger *zap.Logger) *Requestor {
	if logger == nil {
		logger = zap.L().Named("requestor")
	}
	return &Requestor{
		pending: make(map[string]*pendingCall),
		logger:  logger,
	}
}

// Send issues req and blocks until its response arrives.
func (r *Requestor) Send(ctx context.Context, conn transport.Conn, req message.Message) (message.Message, error) {
	f, err := r.SendAsync(conn, req)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// SendAsync issues req and returns a handle to its response.
func (r *Requestor) SendAsync(conn transport.Conn, req message.Message) (*Future, error) {
	f := newFuture()
	if err := r.send(&pendingCall{req: req, conn: conn, future: f}); err != nil {
		return nil, err
	}
	return f, nil
}

// SendCallback issues req; cb runs when the response arrives.
func (r *Requestor) SendCallback(conn transport.Conn, req message.Message, cb Callback) error {
	if cb == nil {
		return errors.New("client: nil callback")
	}
	return r.send(&pendingCall{req: req, conn: conn, callback: cb})
}

func (r *Requestor) send(pc *pendingCall) error {
	id := pc.req.ID()
	if id == "" {
		id = message.NewID()
		pc.req.SetID(id)
	}

	r.mu.Lock()
	if _, dup := r.pending[id]; dup {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	r.pending[id] = pc
	r.mu.Unlock()
	metrics.PendingCalls.Inc()

	if err := pc.conn.Send(pc.req); err != nil {
		if _, ok := r.take(id); ok {
			return err
		}
		// FailConn already completed the call; reporting err too would
		// deliver the failure twice.
		r.logger.Debug("send failed after call was completed", zap.String("id", id), zap.Error(err))
	}
	return nil
}

func (r *Requestor) take(id string) (*pendingCall, bool) {
	r.mu.Lock()
	pc, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if ok {
		metrics.PendingCalls.Dec()
	}
	return pc, ok
}

// OnResponse completes the pending call matching rsp's id. A response nobody
// is waiting for is logged and dropped.
func (r *Requestor) OnResponse(conn transport.Conn, rsp message.Message) {
	pc, ok := r.take(rsp.ID())
	if !ok {
		r.logger.Warn("no pending call for response",
			zap.String("id", rsp.ID()), zap.Stringer("kind", rsp.Kind()))
		return
	}
	pc.complete(rsp)
}

// FailConn completes every call pending on conn with a DISCONNECTED
// response. Install it as the connection's close handler.
func (r *Requestor) FailConn(conn transport.Conn) {
	r.mu.Lock()
	var failed []*pendingCall
	for id, pc := range r.pending {
		if pc.conn == conn {
			failed = append(failed, pc)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, pc := range failed {
		metrics.PendingCalls.Dec()
		pc.complete(message.FailureResponse(pc.req, message.CodeDisconnected))
	}
	if len(failed) > 0 {
		r.logger.Info("failed pending calls on closed connection",
			zap.Int("count", len(failed)), zap.String("remote", conn.RemoteAddr()))
	}
}

// Pending reports how many calls are waiting for a response.
func (r *Requestor) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
