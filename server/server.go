// Package server hosts the three server roles: RpcServer answers RPC
// requests, RegistryServer tracks providers and discoverers, TopicServer runs
// the topic engine.
//
// Request pipeline of the RpcServer:
//
//	transport reader → dispatcher → onRPCRequest
//	  → go handleRequest (one goroutine per request)
//	    → middleware chain → Router.Handle → conn.Send(response)
package server

import (
	"context"
	"errors"
	"fmt"
	"mini-jsonrpc/client"
	"mini-jsonrpc/dispatcher"
	"mini-jsonrpc/message"
	"mini-jsonrpc/metrics"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/transport"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrServerStarted = errors.New("server: already started")

// RpcServer answers RPC requests with the methods registered on its router.
type RpcServer struct {
	opts   *options
	router *Router
	logger *zap.Logger

	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // Built once by Start

	mu        sync.Mutex
	started   bool
	closing   bool
	wg        sync.WaitGroup // In-flight requests
	srv       *transport.Server
	reg       *client.RegistryClient
	advertise message.Address

	ctx    context.Context // Parent of every request context
	cancel context.CancelFunc
}

func NewRpcServer(opts ...Option) *RpcServer {
	o := newOptions(opts)
	return &RpcServer{
		opts:   o,
		router: NewRouter(o.logger.Named("router")),
		logger: o.logger,
	}
}

// Use appends a middleware; the first one added is the outermost. It has no
// effect after Start.
func (s *RpcServer) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

func (s *RpcServer) Router() *Router { return s.router }

// RegisterMethod adds desc. Once the server is started with a registry, the
// method is announced immediately.
func (s *RpcServer) RegisterMethod(desc *ServiceDescribe) error {
	s.router.RegisterMethod(desc)
	return s.announce(desc.Method())
}

// Register exposes the RPC-shaped methods of rcvr as "Type.Method".
func (s *RpcServer) Register(rcvr any) error {
	names, err := s.router.Register(rcvr)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.announce(name); err != nil {
			return err
		}
	}
	return nil
}

// Start listens on addr and, when configured with a registry, announces
// every method registered so far.
func (s *RpcServer) Start(ctx context.Context, addr string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrServerStarted
	}
	s.started = true
	s.mu.Unlock()

	s.handler = middleware.Chain(s.middlewares...)(s.router.Handle)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	d := dispatcher.New(s.logger.Named("dispatcher"))
	dispatcher.RegisterHandler(d, message.KindRPCRequest, s.onRPCRequest)

	srv, err := transport.Listen(addr, s.opts.protocol(), transport.Handlers{OnMessage: d.OnMessage}, s.logger)
	if err != nil {
		s.cancel()
		return err
	}
	advertise, err := advertiseAddr(s.opts.advertise, srv.Addr())
	if err != nil {
		srv.Close()
		s.cancel()
		return err
	}

	var reg *client.RegistryClient
	if s.opts.registryAddr != "" {
		reg, err = client.NewRegistryClient(ctx, s.opts.registryAddr,
			client.WithCodec(s.opts.codec),
			client.WithMaxFrameSize(s.opts.maxFrameSize),
			client.WithLogger(s.logger.Named("registry")))
		if err != nil {
			srv.Close()
			s.cancel()
			return fmt.Errorf("server: connect registry %s: %w", s.opts.registryAddr, err)
		}
	}

	s.mu.Lock()
	s.srv = srv
	s.reg = reg
	s.advertise = advertise
	s.mu.Unlock()

	for _, method := range s.router.Methods() {
		if err := s.announce(method); err != nil {
			s.abortStart()
			return err
		}
	}
	s.logger.Info("rpc server started",
		zap.Stringer("listen", srv.Addr()), zap.Stringer("advertise", advertise), zap.Strings("methods", s.router.Methods()))
	return nil
}

// abortStart undoes a Start that got as far as listening, so a failed
// Start leaves nothing bound and the server may be started again.
func (s *RpcServer) abortStart() {
	s.mu.Lock()
	reg, srv := s.reg, s.srv
	s.reg, s.srv, s.advertise = nil, nil, message.Address{}
	s.started = false
	s.mu.Unlock()

	if reg != nil {
		reg.Close()
	}
	srv.Close()
	s.cancel()
}

func (s *RpcServer) announce(method string) error {
	s.mu.Lock()
	reg, host := s.reg, s.advertise
	s.mu.Unlock()
	if reg == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.announceTimeout)
	defer cancel()
	if err := reg.RegistryMethod(ctx, method, host); err != nil {
		return fmt.Errorf("server: announce %s: %w", method, err)
	}
	return nil
}

// Addr is the bound listen address, nil before Start.
func (s *RpcServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	return s.srv.Addr()
}

// Advertised is the address announced to the registry.
func (s *RpcServer) Advertised() message.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertise
}

// onRPCRequest runs on the connection reader; the request itself is handled
// on its own goroutine so a slow method never stalls the connection.
func (s *RpcServer) onRPCRequest(conn transport.Conn, req *message.RPCRequest) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.logger.Debug("dropping request during shutdown", zap.String("method", req.Method()))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.handleRequest(conn, req)
}

func (s *RpcServer) handleRequest(conn transport.Conn, req *message.RPCRequest) {
	defer s.wg.Done()

	start := time.Now()
	rsp := s.handler(s.ctx, req)
	if rsp == nil {
		rsp = message.NewRPCResponse(message.CodeInternalError, nil)
	}
	rsp.SetID(req.ID())

	method := req.Method()
	if rsp.RCode() == message.CodeNotFoundService {
		method = "unknown"
	}
	metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	err := conn.Send(rsp)
	if err != nil && !errors.Is(err, transport.ErrDisconnected) {
		// The result could not be framed; the caller still gets an answer.
		s.logger.Warn("failed to send rpc response, answering internal error",
			zap.String("method", req.Method()), zap.String("id", req.ID()), zap.Error(err))
		rsp = message.NewRPCResponse(message.CodeInternalError, nil)
		rsp.SetID(req.ID())
		err = conn.Send(rsp)
	}
	metrics.RPCRequests.WithLabelValues(method, rsp.RCode().String()).Inc()
	if err != nil {
		s.logger.Warn("failed to send rpc response",
			zap.String("method", req.Method()), zap.String("id", req.ID()), zap.Error(err))
	}
}

// Shutdown leaves the registry first so clients stop routing here, then
// stops taking requests and waits up to timeout for in-flight ones before
// closing every connection.
func (s *RpcServer) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	reg, srv := s.reg, s.srv
	s.mu.Unlock()

	if reg != nil {
		reg.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("server: timeout waiting for in-flight requests")
	}
	s.cancel()
	if srv != nil {
		srv.Close()
	}
	s.logger.Info("rpc server stopped")
	return err
}

func advertiseAddr(configured *message.Address, bound net.Addr) (message.Address, error) {
	if configured != nil {
		return *configured, nil
	}
	addr, err := message.ParseAddress(bound.String())
	if err != nil {
		return message.Address{}, err
	}
	if ip := net.ParseIP(addr.IP); ip == nil || ip.IsUnspecified() {
		addr.IP = "127.0.0.1"
	}
	return addr, nil
}
