package server

import (
	"context"
	"fmt"
	"mini-jsonrpc/message"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Router maps method names to their describes and answers RPC requests.
type Router struct {
	mu       sync.RWMutex
	services map[string]*ServiceDescribe
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.L().Named("router")
	}
	return &Router{services: make(map[string]*ServiceDescribe), logger: logger}
}

// RegisterMethod adds desc, replacing any describe with the same method.
func (r *Router) RegisterMethod(desc *ServiceDescribe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[desc.method] = desc
}

// Register exposes the RPC-shaped methods of rcvr as "Type.Method" and
// returns their names.
func (r *Router) Register(rcvr any) ([]string, error) {
	svc, err := newService(rcvr)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, desc := range svc.describes() {
		r.RegisterMethod(desc)
		names = append(names, desc.method)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Router) Remove(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, method)
}

func (r *Router) Lookup(method string) (*ServiceDescribe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.services[method]
	return desc, ok
}

// Methods lists registered method names, sorted.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle runs the request against its describe. It is the innermost
// handler of the server's middleware chain.
func (r *Router) Handle(ctx context.Context, req *message.RPCRequest) *message.RPCResponse {
	desc, ok := r.Lookup(req.Method())
	if !ok {
		r.logger.Debug("service not found", zap.String("method", req.Method()))
		return message.NewRPCResponse(message.CodeNotFoundService, nil)
	}
	if err := desc.ParamCheck(req.Params()); err != nil {
		r.logger.Debug("parameter check failed", zap.Error(err))
		return message.NewRPCResponse(message.CodeInvalidParams, nil)
	}

	result, err := r.call(ctx, desc, req.Params())
	if err != nil {
		code := message.CodeOf(err)
		if code == message.CodeOK {
			code = message.CodeInternalError
		}
		r.logger.Debug("service call failed", zap.String("method", desc.method), zap.Error(err))
		return message.NewRPCResponse(code, nil)
	}
	return message.NewRPCResponse(message.CodeOK, result)
}

func (r *Router) call(ctx context.Context, desc *ServiceDescribe, params map[string]any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("service panicked", zap.String("method", desc.method), zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("server: %s panicked: %v", desc.method, p)
		}
	}()
	return desc.Call(ctx, params)
}
