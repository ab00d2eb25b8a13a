// Package dispatcher routes inbound messages to typed handlers by kind.
//
// Handlers are registered once at startup; OnMessage is installed as the
// transport's message callback and runs on the connection's reader goroutine.
package dispatcher

import (
	"fmt"
	"mini-jsonrpc/message"
	"mini-jsonrpc/metrics"
	"mini-jsonrpc/transport"
	"sync"

	"go.uber.org/zap"
)

type handler func(conn transport.Conn, msg message.Message)

type Dispatcher struct {
	mu       sync.Mutex
	handlers map[message.Kind]handler
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.L().Named("dispatcher")
	}
	return &Dispatcher{
		handlers: make(map[message.Kind]handler),
		logger:   logger,
	}
}

// RegisterHandler binds kind to fn. The message handed to fn is already of
// its concrete type; a kind registered with the wrong T is a programming
// error and panics on first delivery.
func RegisterHandler[T message.Message](d *Dispatcher, kind message.Kind, fn func(transport.Conn, T)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = func(conn transport.Conn, msg message.Message) {
		typed, ok := msg.(T)
		if !ok {
			panic(fmt.Sprintf("dispatcher: handler for %s cannot accept %T", kind, msg))
		}
		fn(conn, typed)
	}
}

// OnMessage validates msg and hands it to the handler for its kind. A kind
// nobody handles is a protocol violation and the connection is shut down.
// An invalid request is answered with CodeInvalidMsg; an invalid response
// is dropped.
func (d *Dispatcher) OnMessage(conn transport.Conn, msg message.Message) {
	d.mu.Lock()
	h, ok := d.handlers[msg.Kind()]
	d.mu.Unlock()

	if !ok {
		d.logger.Error("no handler for message kind, shutting connection down",
			zap.Stringer("kind", msg.Kind()), zap.String("remote", conn.RemoteAddr()))
		metrics.UnhandledMessages.WithLabelValues(msg.Kind().String(), "no_handler").Inc()
		conn.Shutdown()
		return
	}

	if err := msg.Check(); err != nil {
		metrics.UnhandledMessages.WithLabelValues(msg.Kind().String(), "invalid").Inc()
		if rsp := message.FailureResponse(msg, message.CodeInvalidMsg); rsp != nil {
			d.logger.Warn("rejecting invalid request", zap.String("id", msg.ID()), zap.Error(err))
			if err := conn.Send(rsp); err != nil {
				d.logger.Warn("failed to send rejection", zap.String("id", msg.ID()), zap.Error(err))
			}
			return
		}
		d.logger.Warn("dropping invalid response", zap.String("id", msg.ID()), zap.Error(err))
		return
	}

	h(conn, msg)
}
