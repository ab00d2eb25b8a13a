package server

import (
	"mini-jsonrpc/dispatcher"
	"mini-jsonrpc/message"
	"mini-jsonrpc/pubsub"
	"mini-jsonrpc/transport"
	"net"

	"go.uber.org/zap"
)

// TopicServer serves topic requests. A closing connection is unsubscribed
// from every topic.
type TopicServer struct {
	engine *pubsub.Engine
	srv    *transport.Server
	logger *zap.Logger
}

func NewTopicServer(addr string, opts ...Option) (*TopicServer, error) {
	o := newOptions(opts)
	s := &TopicServer{
		engine: pubsub.NewEngine(o.logger.Named("pubsub")),
		logger: o.logger,
	}
	d := dispatcher.New(o.logger.Named("dispatcher"))
	dispatcher.RegisterHandler(d, message.KindTopicRequest, s.engine.OnTopicRequest)

	srv, err := transport.Listen(addr, o.protocol(), transport.Handlers{
		OnMessage: d.OnMessage,
		OnClose:   s.engine.OnShutdown,
	}, o.logger)
	if err != nil {
		return nil, err
	}
	s.srv = srv
	s.logger.Info("topic server started", zap.Stringer("listen", srv.Addr()))
	return s, nil
}

func (s *TopicServer) Addr() net.Addr { return s.srv.Addr() }

func (s *TopicServer) Engine() *pubsub.Engine { return s.engine }

func (s *TopicServer) Close() error {
	err := s.srv.Close()
	s.logger.Info("topic server stopped")
	return err
}
