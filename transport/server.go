package transport

import (
	"mini-jsonrpc/protocol"
	"net"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/tomb.v2"
)

// Server accepts connections and runs one reader per connection. The accept
// loop and every reader live in a tomb, so Close can wait for all of them.
type Server struct {
	listener net.Listener
	proto    *protocol.Protocol
	handlers Handlers
	logger   *zap.Logger

	t       tomb.Tomb
	mu      sync.Mutex
	closing bool
	conns   map[*tcpConn]struct{}
}

// Listen binds addr and starts accepting immediately.
func Listen(addr string, proto *protocol.Protocol, h Handlers, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.L().Named("transport")
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: l,
		proto:    proto,
		handlers: h,
		logger:   logger.With(zap.String("listen", l.Addr().String())),
		conns:    make(map[*tcpConn]struct{}),
	}
	s.t.Go(s.acceptLoop)
	return s, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() error {
	s.t.Go(func() error {
		<-s.t.Dying()
		s.listener.Close()
		return nil
	})
	s.logger.Info("accepting connections")

	for {
		raw, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.t.Dying():
				return nil
			default:
				s.logger.Error("accept failed, closing connections", zap.Error(err))
				s.shutdownConns()
				return err
			}
		}

		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			raw.Close()
			return nil
		}
		c := newConn(raw, s.proto, s.wrapHandlers(), s.logger)
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		if s.handlers.OnConnect != nil {
			s.handlers.OnConnect(c)
		}
		s.t.Go(func() error {
			c.readLoop()
			return nil
		})
	}
}

func (s *Server) wrapHandlers() Handlers {
	h := s.handlers
	onClose := h.OnClose
	h.OnClose = func(c Conn) {
		s.mu.Lock()
		delete(s.conns, c.(*tcpConn))
		s.mu.Unlock()
		if onClose != nil {
			onClose(c)
		}
	}
	return h
}

// ConnCount reports the number of open inbound connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close stops accepting, shuts every connection down and waits until every
// reader has run its OnClose.
func (s *Server) Close() error {
	s.t.Kill(nil)
	s.shutdownConns()
	return s.t.Wait()
}

func (s *Server) shutdownConns() {
	s.mu.Lock()
	s.closing = true
	conns := make([]*tcpConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Shutdown()
	}
}

// Wait blocks until the server stops, returning the accept error if any.
func (s *Server) Wait() error {
	return s.t.Wait()
}
