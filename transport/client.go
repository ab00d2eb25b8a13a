package transport

import (
	"context"
	"mini-jsonrpc/protocol"
	"net"

	"go.uber.org/zap"
)

// Dial connects to addr and starts the connection's reader. OnConnect runs
// before Dial returns.
func Dial(ctx context.Context, addr string, proto *protocol.Protocol, h Handlers, logger *zap.Logger) (Conn, error) {
	if logger == nil {
		logger = zap.L().Named("transport")
	}
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := newConn(raw, proto, h, logger)
	if h.OnConnect != nil {
		h.OnConnect(c)
	}
	go c.readLoop()
	return c, nil
}
