package client

import (
	"context"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"
	"sync"

	"go.uber.org/zap"
)

// OfflineFunc is told when the registry reports a provider gone.
type OfflineFunc func(host message.Address)

// Discoverer resolves methods to provider addresses. Answers are cached per
// method and kept current by the registry's ONLINE and OFFLINE pushes; the
// registry is only asked again when a method has no cached host left.
type Discoverer struct {
	requestor   *Requestor
	newBalancer loadbalance.Factory
	offline     OfflineFunc
	logger      *zap.Logger

	mu    sync.Mutex
	hosts map[string]*MethodHost
}

func NewDiscoverer(r *Requestor, newBalancer loadbalance.Factory, offline OfflineFunc, logger *zap.Logger) *Discoverer {
	if newBalancer == nil {
		newBalancer = func() loadbalance.Balancer { return &loadbalance.RoundRobinBalancer{} }
	}
	if logger == nil {
		logger = zap.L().Named("discoverer")
	}
	return &Discoverer{
		requestor:   r,
		newBalancer: newBalancer,
		offline:     offline,
		logger:      logger,
		hosts:       make(map[string]*MethodHost),
	}
}

func (d *Discoverer) methodHost(method string, create bool) *MethodHost {
	d.mu.Lock()
	defer d.mu.Unlock()
	mh, ok := d.hosts[method]
	if !ok && create {
		mh = NewMethodHost(nil, d.newBalancer())
		d.hosts[method] = mh
	}
	return mh
}

// ServiceDiscovery returns one provider of method, asking the registry over
// conn only when nothing usable is cached.
func (d *Discoverer) ServiceDiscovery(ctx context.Context, conn transport.Conn, method string) (message.Address, error) {
	if mh := d.methodHost(method, false); mh != nil && !mh.Empty() {
		return mh.Choose()
	}

	rsp, err := d.requestor.Send(ctx, conn, message.NewServiceRequest(method, message.OptypeDiscovery, nil))
	if err != nil {
		return message.Address{}, err
	}
	sr, ok := rsp.(*message.ServiceResponse)
	if !ok {
		return message.Address{}, ErrUnexpectedResponse
	}
	if sr.RCode() != message.CodeOK {
		return message.Address{}, &message.CodeError{Code: sr.RCode()}
	}
	hosts := sr.Hosts()
	if len(hosts) == 0 {
		return message.Address{}, &message.CodeError{Code: message.CodeNotFoundService}
	}

	// Merge rather than replace: an ONLINE push may have landed while the
	// request was in flight.
	mh := d.methodHost(method, true)
	for _, h := range hosts {
		mh.Append(h)
	}
	d.logger.Debug("discovered providers", zap.String("method", method), zap.Int("hosts", len(hosts)))
	return mh.Choose()
}

// OnServiceRequest applies the registry's ONLINE and OFFLINE pushes.
func (d *Discoverer) OnServiceRequest(conn transport.Conn, req *message.ServiceRequest) {
	method, host := req.Method(), req.Host()
	switch req.Optype() {
	case message.OptypeOnline:
		d.methodHost(method, true).Append(host)
		d.logger.Info("provider online", zap.String("method", method), zap.Stringer("host", host))
	case message.OptypeOffline:
		if mh := d.methodHost(method, false); mh != nil {
			mh.Remove(host)
		}
		d.logger.Info("provider offline", zap.String("method", method), zap.Stringer("host", host))
		if d.offline != nil {
			d.offline(host)
		}
	default:
		d.logger.Warn("ignoring service push", zap.Stringer("optype", req.Optype()), zap.String("method", method))
	}
}

// Hosts returns the cached providers of method.
func (d *Discoverer) Hosts(method string) []message.Address {
	if mh := d.methodHost(method, false); mh != nil {
		return mh.Hosts()
	}
	return nil
}
