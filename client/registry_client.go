package client

import (
	"context"
	"mini-jsonrpc/dispatcher"
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"
)

// RegistryClient is a provider's connection to the registry server. The
// registry treats the provider as alive for as long as this connection is.
type RegistryClient struct {
	conn     transport.Conn
	provider *Provider
}

func NewRegistryClient(ctx context.Context, addr string, opts ...Option) (*RegistryClient, error) {
	o := newOptions(opts)
	r := NewRequestor(o.logger.Named("requestor"))
	d := dispatcher.New(o.logger.Named("dispatcher"))
	dispatcher.RegisterHandler(d, message.KindServiceResponse, func(c transport.Conn, m *message.ServiceResponse) {
		r.OnResponse(c, m)
	})

	conn, err := transport.Dial(ctx, addr, o.protocol(), transport.Handlers{
		OnMessage: d.OnMessage,
		OnClose:   r.FailConn,
	}, o.logger)
	if err != nil {
		return nil, err
	}
	return &RegistryClient{conn: conn, provider: NewProvider(r)}, nil
}

func (c *RegistryClient) RegistryMethod(ctx context.Context, method string, host message.Address) error {
	return c.provider.RegistryMethod(ctx, c.conn, method, host)
}

func (c *RegistryClient) Connected() bool {
	return c.conn.Connected()
}

func (c *RegistryClient) Close() {
	c.conn.Shutdown()
}

// DiscoveryClient resolves methods through the registry server and keeps the
// local cache current from its pushes.
type DiscoveryClient struct {
	conn       transport.Conn
	discoverer *Discoverer
}

// NewDiscoveryClient connects to the registry; offline, if set, is called for
// every provider the registry reports gone.
func NewDiscoveryClient(ctx context.Context, addr string, offline OfflineFunc, opts ...Option) (*DiscoveryClient, error) {
	o := newOptions(opts)
	r := NewRequestor(o.logger.Named("requestor"))
	disc := NewDiscoverer(r, o.balancer, offline, o.logger.Named("discoverer"))
	d := dispatcher.New(o.logger.Named("dispatcher"))
	dispatcher.RegisterHandler(d, message.KindServiceResponse, func(c transport.Conn, m *message.ServiceResponse) {
		r.OnResponse(c, m)
	})
	dispatcher.RegisterHandler(d, message.KindServiceRequest, disc.OnServiceRequest)

	conn, err := transport.Dial(ctx, addr, o.protocol(), transport.Handlers{
		OnMessage: d.OnMessage,
		OnClose:   r.FailConn,
	}, o.logger)
	if err != nil {
		return nil, err
	}
	return &DiscoveryClient{conn: conn, discoverer: disc}, nil
}

func (c *DiscoveryClient) ServiceDiscovery(ctx context.Context, method string) (message.Address, error) {
	return c.discoverer.ServiceDiscovery(ctx, c.conn, method)
}

// CachedHosts returns the providers currently cached for method.
func (c *DiscoveryClient) CachedHosts(method string) []message.Address {
	return c.discoverer.Hosts(method)
}

func (c *DiscoveryClient) Close() {
	c.conn.Shutdown()
}
