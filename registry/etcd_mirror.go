package registry

import (
	"context"
	"mini-jsonrpc/message"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"gopkg.in/tomb.v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPrefix is where EtcdMirror writes provider entries:
//
//	Key:   /mini-jsonrpc/{method}/{ip:port}
//	Value: JSON-encoded message.Address
//
// Entries ride on one TTL lease per host, so a crashed registry leaves no
// stale providers behind once the lease runs out.
const DefaultPrefix = "/mini-jsonrpc/"

const (
	mirrorQueueSize = 1024
	etcdOpTimeout   = 3 * time.Second
)

type mirrorOp struct {
	put    bool
	method string
	host   message.Address
}

type hostLease struct {
	id     clientv3.LeaseID
	keys   int
	cancel context.CancelFunc // Stops KeepAlive
}

// EtcdMirror copies the registry's provider index into etcd. Updates are
// queued and applied in order by one goroutine, so registry handlers never
// wait on etcd.
type EtcdMirror struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
	prefix string
	ttl    int64
	logger *zap.Logger

	ops    chan mirrorOp
	t      tomb.Tomb
	refs   map[string]int                 // Owned by run
	leases map[message.Address]*hostLease // Owned by run
}

// NewEtcdMirror connects to etcd; ttl is the lease TTL in seconds.
func NewEtcdMirror(endpoints []string, ttl int64, logger *zap.Logger) (*EtcdMirror, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.L().Named("etcd-mirror")
	}
	if ttl <= 0 {
		ttl = 10
	}
	m := &EtcdMirror{
		client: c,
		prefix: DefaultPrefix,
		ttl:    ttl,
		logger: logger,
		ops:    make(chan mirrorOp, mirrorQueueSize),
		refs:   make(map[string]int),
		leases: make(map[message.Address]*hostLease),
	}
	m.t.Go(m.run)
	return m, nil
}

func (m *EtcdMirror) Put(method string, host message.Address) {
	m.enqueue(mirrorOp{put: true, method: method, host: host})
}

func (m *EtcdMirror) Delete(method string, host message.Address) {
	m.enqueue(mirrorOp{method: method, host: host})
}

func (m *EtcdMirror) enqueue(op mirrorOp) {
	select {
	case m.ops <- op:
	default:
		m.logger.Warn("etcd mirror queue full, dropping update",
			zap.String("method", op.method), zap.Stringer("host", op.host), zap.Bool("put", op.put))
	}
}

func (m *EtcdMirror) key(method string, host message.Address) string {
	return m.prefix + method + "/" + host.String()
}

func (m *EtcdMirror) run() error {
	for {
		select {
		case <-m.t.Dying():
			m.revokeAll()
			return nil
		case op := <-m.ops:
			var err error
			if op.put {
				err = m.put(op.method, op.host)
			} else {
				err = m.delete(op.method, op.host)
			}
			if err != nil {
				m.logger.Warn("etcd mirror update failed",
					zap.String("method", op.method), zap.Stringer("host", op.host), zap.Error(err))
			}
		}
	}
}

func (m *EtcdMirror) put(method string, host message.Address) error {
	key := m.key(method, host)
	m.refs[key]++
	if m.refs[key] > 1 {
		return nil
	}

	lease, err := m.lease(host)
	if err != nil {
		m.refs[key]--
		return err
	}
	val, err := json.Marshal(host)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), etcdOpTimeout)
	defer cancel()
	if _, err := m.client.Put(ctx, key, string(val), clientv3.WithLease(lease.id)); err != nil {
		m.refs[key]--
		return err
	}
	lease.keys++
	return nil
}

// lease returns the host's lease, granting it and starting KeepAlive on
// first use.
func (m *EtcdMirror) lease(host message.Address) (*hostLease, error) {
	if l, ok := m.leases[host]; ok {
		return l, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), etcdOpTimeout)
	defer cancel()
	grant, err := m.client.Grant(ctx, m.ttl)
	if err != nil {
		return nil, err
	}

	kaCtx, kaCancel := context.WithCancel(context.Background())
	ch, err := m.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		kaCancel()
		return nil, err
	}
	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()

	l := &hostLease{id: grant.ID, cancel: kaCancel}
	m.leases[host] = l
	return l, nil
}

func (m *EtcdMirror) delete(method string, host message.Address) error {
	key := m.key(method, host)
	if m.refs[key] == 0 {
		return nil
	}
	m.refs[key]--
	if m.refs[key] > 0 {
		return nil
	}
	delete(m.refs, key)

	ctx, cancel := context.WithTimeout(context.Background(), etcdOpTimeout)
	defer cancel()
	if _, err := m.client.Delete(ctx, key); err != nil {
		return err
	}
	if l, ok := m.leases[host]; ok {
		l.keys--
		if l.keys <= 0 {
			m.release(ctx, host, l)
		}
	}
	return nil
}

func (m *EtcdMirror) release(ctx context.Context, host message.Address, l *hostLease) {
	l.cancel()
	delete(m.leases, host)
	if _, err := m.client.Revoke(ctx, l.id); err != nil {
		m.logger.Debug("lease revoke failed", zap.Stringer("host", host), zap.Error(err))
	}
}

func (m *EtcdMirror) revokeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), etcdOpTimeout)
	defer cancel()
	for host, l := range m.leases {
		m.release(ctx, host, l)
	}
}

// List returns the hosts mirrored for method.
func (m *EtcdMirror) List(ctx context.Context, method string) ([]message.Address, error) {
	resp, err := m.client.Get(ctx, m.prefix+method+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	hosts := make([]message.Address, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var host message.Address
		if err := json.Unmarshal(kv.Value, &host); err != nil {
			m.logger.Debug("skipping malformed entry", zap.String("key", strings.TrimPrefix(string(kv.Key), m.prefix)))
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

// Close revokes every lease, so mirrored entries disappear at once, and
// disconnects from etcd.
func (m *EtcdMirror) Close() error {
	m.t.Kill(nil)
	err := m.t.Wait()
	if cerr := m.client.Close(); err == nil {
		err = cerr
	}
	return err
}
