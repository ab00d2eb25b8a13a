// Package registry is the server side of service registration and discovery.
//
// The Manager keeps two indices keyed by method name, plus a reverse index
// by connection so a disconnect can be cleaned up in one step:
//
//	providers:   conn ──→ {host, methods}      method ──→ [provider...]
//	discoverers: conn ──→ {methods}            method ──→ [discoverer...]
//
//	REGISTRY(conn, host, m)  → index provider, push ONLINE(m, host) to m's discoverers, reply OK
//	DISCOVERY(conn, m)       → index discoverer, reply hosts of m or NOT_FOUND_SERVICE
//	close(conn)              → push OFFLINE(m, host) per provided m, drop conn from both indices
//
// A provider's liveness is its connection: there is no explicit deregister.
package registry

import (
	"mini-jsonrpc/message"
	"mini-jsonrpc/metrics"
	"mini-jsonrpc/transport"
	"slices"
	"sync"

	"go.uber.org/zap"
)

type provider struct {
	conn    transport.Conn
	host    message.Address
	methods []string
}

type discoverer struct {
	conn    transport.Conn
	methods []string
}

// Mirror receives a copy of every provider change, for outside observers.
// Calls are made without the index lock held and must not block for long.
type Mirror interface {
	Put(method string, host message.Address)
	Delete(method string, host message.Address)
}

type Manager struct {
	mu          sync.Mutex
	providers   map[transport.Conn]*provider
	byMethod    map[string][]*provider
	discoverers map[transport.Conn]*discoverer
	watchers    map[string][]*discoverer

	mirror Mirror
	logger *zap.Logger
}

// NewManager returns an empty registry. mirror may be nil.
func NewManager(mirror Mirror, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.L().Named("registry")
	}
	return &Manager{
		providers:   make(map[transport.Conn]*provider),
		byMethod:    make(map[string][]*provider),
		discoverers: make(map[transport.Conn]*discoverer),
		watchers:    make(map[string][]*discoverer),
		mirror:      mirror,
		logger:      logger,
	}
}

// OnServiceRequest handles one service request from conn.
func (m *Manager) OnServiceRequest(conn transport.Conn, req *message.ServiceRequest) {
	method := req.Method()
	switch req.Optype() {
	case message.OptypeRegistry:
		host := req.Host()
		m.logger.Info("provider registered", zap.String("method", method), zap.Stringer("host", host))
		metrics.RegistryEvents.WithLabelValues("register").Inc()
		if added, watchers := m.addProvider(conn, host, method); added {
			m.notify(watchers, message.OptypeOnline, method, host)
			if m.mirror != nil {
				m.mirror.Put(method, host)
			}
		}
		m.reply(conn, req, message.NewServiceResponse(message.CodeOK, message.OptypeRegistry))

	case message.OptypeDiscovery:
		metrics.RegistryEvents.WithLabelValues("discover").Inc()
		hosts := m.addDiscoverer(conn, method)
		var rsp *message.ServiceResponse
		if len(hosts) == 0 {
			rsp = message.NewServiceResponse(message.CodeNotFoundService, message.OptypeDiscovery)
		} else {
			rsp = message.NewServiceResponse(message.CodeOK, message.OptypeDiscovery)
			rsp.SetHosts(hosts)
		}
		rsp.SetMethod(method)
		m.logger.Debug("discovery", zap.String("method", method), zap.Int("hosts", len(hosts)))
		m.reply(conn, req, rsp)

	default:
		m.logger.Warn("invalid service optype", zap.Stringer("optype", req.Optype()), zap.String("method", method))
		metrics.RegistryEvents.WithLabelValues("invalid").Inc()
		m.reply(conn, req, message.NewServiceResponse(message.CodeInvalidOptype, message.OptypeUnknown))
	}
}

// addProvider indexes (conn, method). It reports whether the method is new
// for this provider and, if so, the connections to notify.
func (m *Manager) addProvider(conn transport.Conn, host message.Address, method string) (bool, []transport.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.providers[conn]
	if !ok {
		p = &provider{conn: conn, host: host}
		m.providers[conn] = p
		metrics.Providers.Inc()
	} else if p.host != host {
		m.logger.Warn("provider re-registered with a different host, keeping the first",
			zap.Stringer("host", p.host), zap.Stringer("ignored", host))
	}
	if slices.Contains(p.methods, method) {
		return false, nil
	}
	p.methods = append(p.methods, method)
	m.byMethod[method] = append(m.byMethod[method], p)
	return true, m.watcherConnsLocked(method, conn)
}

func (m *Manager) addDiscoverer(conn transport.Conn, method string) []message.Address {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.discoverers[conn]
	if !ok {
		d = &discoverer{conn: conn}
		m.discoverers[conn] = d
	}
	if !slices.Contains(d.methods, method) {
		d.methods = append(d.methods, method)
		m.watchers[method] = append(m.watchers[method], d)
	}
	return m.hostsLocked(method)
}

func (m *Manager) watcherConnsLocked(method string, except transport.Conn) []transport.Conn {
	ws := m.watchers[method]
	conns := make([]transport.Conn, 0, len(ws))
	for _, d := range ws {
		if d.conn != except {
			conns = append(conns, d.conn)
		}
	}
	return conns
}

func (m *Manager) hostsLocked(method string) []message.Address {
	ps := m.byMethod[method]
	hosts := make([]message.Address, 0, len(ps))
	for _, p := range ps {
		if !slices.Contains(hosts, p.host) {
			hosts = append(hosts, p.host)
		}
	}
	return hosts
}

// Providers returns the hosts currently serving method.
func (m *Manager) Providers(method string) []message.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hostsLocked(method)
}

type offlineNotice struct {
	method   string
	watchers []transport.Conn
}

// OnConnShutdown forgets conn as provider and discoverer, telling the
// discoverers of every method it provided that its host is gone.
func (m *Manager) OnConnShutdown(conn transport.Conn) {
	m.mu.Lock()
	var (
		host    message.Address
		notices []offlineNotice
	)
	if p, ok := m.providers[conn]; ok {
		host = p.host
		for _, method := range p.methods {
			m.byMethod[method] = slices.DeleteFunc(m.byMethod[method], func(q *provider) bool { return q == p })
			if len(m.byMethod[method]) == 0 {
				delete(m.byMethod, method)
			}
			// Another connection still serves method from the same host.
			if slices.Contains(m.hostsLocked(method), host) {
				continue
			}
			notices = append(notices, offlineNotice{method: method, watchers: m.watcherConnsLocked(method, conn)})
		}
		delete(m.providers, conn)
		metrics.Providers.Dec()
	}
	if d, ok := m.discoverers[conn]; ok {
		for _, method := range d.methods {
			m.watchers[method] = slices.DeleteFunc(m.watchers[method], func(q *discoverer) bool { return q == d })
			if len(m.watchers[method]) == 0 {
				delete(m.watchers, method)
			}
		}
		delete(m.discoverers, conn)
	}
	m.mu.Unlock()

	for _, n := range notices {
		m.logger.Info("provider offline", zap.String("method", n.method), zap.Stringer("host", host))
		m.notify(n.watchers, message.OptypeOffline, n.method, host)
		if m.mirror != nil {
			m.mirror.Delete(n.method, host)
		}
	}
}

func (m *Manager) notify(conns []transport.Conn, op message.ServiceOptype, method string, host message.Address) {
	for _, c := range conns {
		metrics.RegistryEvents.WithLabelValues(op.String()).Inc()
		if err := c.Send(message.NewServiceRequest(method, op, &host)); err != nil {
			m.logger.Warn("failed to push service notice",
				zap.Stringer("optype", op), zap.String("method", method),
				zap.String("remote", c.RemoteAddr()), zap.Error(err))
		}
	}
}

func (m *Manager) reply(conn transport.Conn, req *message.ServiceRequest, rsp *message.ServiceResponse) {
	rsp.SetID(req.ID())
	if err := conn.Send(rsp); err != nil {
		m.logger.Warn("failed to answer service request", zap.String("id", req.ID()), zap.Error(err))
	}
}
