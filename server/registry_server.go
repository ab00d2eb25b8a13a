package server

import (
	"mini-jsonrpc/dispatcher"
	"mini-jsonrpc/message"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/transport"
	"net"

	"go.uber.org/zap"
)

// RegistryServer serves service requests. A connection that closes is
// dropped from the registry: its provided methods go offline and its
// discovery interests are forgotten.
type RegistryServer struct {
	manager *registry.Manager
	srv     *transport.Server
	logger  *zap.Logger
}

func NewRegistryServer(addr string, opts ...Option) (*RegistryServer, error) {
	o := newOptions(opts)
	s := &RegistryServer{
		manager: registry.NewManager(o.mirror, o.logger.Named("registry")),
		logger:  o.logger,
	}
	d := dispatcher.New(o.logger.Named("dispatcher"))
	dispatcher.RegisterHandler(d, message.KindServiceRequest, s.manager.OnServiceRequest)

	srv, err := transport.Listen(addr, o.protocol(), transport.Handlers{
		OnMessage: d.OnMessage,
		OnClose:   s.manager.OnConnShutdown,
	}, o.logger)
	if err != nil {
		return nil, err
	}
	s.srv = srv
	s.logger.Info("registry server started", zap.Stringer("listen", srv.Addr()))
	return s, nil
}

func (s *RegistryServer) Addr() net.Addr { return s.srv.Addr() }

func (s *RegistryServer) Manager() *registry.Manager { return s.manager }

func (s *RegistryServer) Close() error {
	err := s.srv.Close()
	s.logger.Info("registry server stopped")
	return err
}
