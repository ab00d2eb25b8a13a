package client

import (
	"context"
	"mini-jsonrpc/dispatcher"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/transport"

	"go.uber.org/zap"
)

// RpcClient calls remote methods either over one fixed connection or, with
// discovery enabled, over pooled connections to whichever provider the
// registry resolves each method to.
//
//	direct:    Call ──→ conn(addr) ──→ server
//	discovery: Call ──→ DiscoveryClient.ServiceDiscovery(method) ──→ host
//	                ──→ Pool.GetOrCreate(host) ──→ provider
type RpcClient struct {
	requestor  *Requestor
	caller     *Caller
	dispatcher *dispatcher.Dispatcher
	proto      *protocol.Protocol
	logger     *zap.Logger

	direct    transport.Conn   // nil in discovery mode
	discovery *DiscoveryClient // nil in direct mode
	pool      *transport.Pool
}

// NewRpcClient connects to addr. With enableDiscovery, addr is the registry
// server; otherwise it is the RPC server itself.
func NewRpcClient(ctx context.Context, addr string, enableDiscovery bool, opts ...Option) (*RpcClient, error) {
	o := newOptions(opts)
	c := &RpcClient{
		requestor:  NewRequestor(o.logger.Named("requestor")),
		dispatcher: dispatcher.New(o.logger.Named("dispatcher")),
		proto:      o.protocol(),
		logger:     o.logger,
	}
	c.caller = NewCaller(c.requestor)
	dispatcher.RegisterHandler(c.dispatcher, message.KindRPCResponse, func(conn transport.Conn, m *message.RPCResponse) {
		c.requestor.OnResponse(conn, m)
	})

	if !enableDiscovery {
		conn, err := transport.Dial(ctx, addr, c.proto, c.handlers(nil), o.logger)
		if err != nil {
			return nil, err
		}
		c.direct = conn
		return c, nil
	}

	c.pool = transport.NewPool(c.dialProvider, o.logger.Named("pool"))
	disc, err := NewDiscoveryClient(ctx, addr, c.pool.Evict, opts...)
	if err != nil {
		return nil, err
	}
	c.discovery = disc
	return c, nil
}

func (c *RpcClient) handlers(onClose func(transport.Conn)) transport.Handlers {
	return transport.Handlers{
		OnMessage: c.dispatcher.OnMessage,
		OnClose: func(conn transport.Conn) {
			c.requestor.FailConn(conn)
			if onClose != nil {
				onClose(conn)
			}
		},
	}
}

func (c *RpcClient) dialProvider(ctx context.Context, host message.Address) (transport.Conn, error) {
	return transport.Dial(ctx, host.String(), c.proto, c.handlers(func(conn transport.Conn) {
		c.pool.Forget(host, conn)
	}), c.logger)
}

func (c *RpcClient) conn(ctx context.Context, method string) (transport.Conn, error) {
	if c.direct != nil {
		return c.direct, nil
	}
	host, err := c.discovery.ServiceDiscovery(ctx, method)
	if err != nil {
		return nil, err
	}
	return c.pool.GetOrCreate(ctx, host)
}

// Call invokes method and waits for its result.
func (c *RpcClient) Call(ctx context.Context, method string, params map[string]any) (any, error) {
	conn, err := c.conn(ctx, method)
	if err != nil {
		return nil, err
	}
	return c.caller.Call(ctx, conn, method, params)
}

// CallAsync invokes method without waiting. ctx bounds discovery and dialing
// only.
func (c *RpcClient) CallAsync(ctx context.Context, method string, params map[string]any) (*AsyncResult, error) {
	conn, err := c.conn(ctx, method)
	if err != nil {
		return nil, err
	}
	return c.caller.CallAsync(conn, method, params)
}

// CallWithCallback invokes method; cb receives the outcome.
func (c *RpcClient) CallWithCallback(ctx context.Context, method string, params map[string]any, cb func(result any, err error)) error {
	conn, err := c.conn(ctx, method)
	if err != nil {
		return err
	}
	return c.caller.CallWithCallback(conn, method, params, cb)
}

// Pending reports calls still waiting for a response.
func (c *RpcClient) Pending() int {
	return c.requestor.Pending()
}

func (c *RpcClient) Close() {
	if c.direct != nil {
		c.direct.Shutdown()
	}
	if c.discovery != nil {
		c.discovery.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
