package transport

import (
	"context"
	"mini-jsonrpc/message"
	"sync"

	"go.uber.org/zap"
)

// DialFunc opens a connection to addr.
type DialFunc func(ctx context.Context, addr message.Address) (Conn, error)

// Pool caches one connection per provider address.
//
// Lookups share a read lock. A miss dials with no lock held, then re-checks
// under the write lock: if another goroutine won the race its connection is
// kept and the one just dialed is shut down, so every caller for an address
// observes the same connection.
type Pool struct {
	mu     sync.RWMutex
	conns  map[message.Address]Conn
	dial   DialFunc
	logger *zap.Logger
}

func NewPool(dial DialFunc, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.L().Named("pool")
	}
	return &Pool{
		conns:  make(map[message.Address]Conn),
		dial:   dial,
		logger: logger,
	}
}

func (p *Pool) GetOrCreate(ctx context.Context, addr message.Address) (Conn, error) {
	p.mu.RLock()
	c, ok := p.conns[addr]
	p.mu.RUnlock()
	if ok && c.Connected() {
		return c, nil
	}

	fresh, err := p.dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.conns[addr]; ok && existing.Connected() {
		p.mu.Unlock()
		fresh.Shutdown()
		return existing, nil
	}
	p.conns[addr] = fresh
	p.mu.Unlock()

	p.logger.Debug("pooled new connection", zap.Stringer("host", addr))
	return fresh, nil
}

// Get returns the cached connection for addr without dialing.
func (p *Pool) Get(addr message.Address) (Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[addr]
	return c, ok
}

// Evict drops and shuts down the connection for addr, if any.
func (p *Pool) Evict(addr message.Address) {
	p.mu.Lock()
	c, ok := p.conns[addr]
	delete(p.conns, addr)
	p.mu.Unlock()
	if ok {
		p.logger.Debug("evicted connection", zap.Stringer("host", addr))
		c.Shutdown()
	}
}

// Forget drops the entry for addr only if it still holds c. Used from close
// callbacks, where a newer connection may already have replaced c.
func (p *Pool) Forget(addr message.Address, c Conn) {
	p.mu.Lock()
	if cur, ok := p.conns[addr]; ok && cur == c {
		delete(p.conns, addr)
	}
	p.mu.Unlock()
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Close shuts every pooled connection down.
func (p *Pool) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[message.Address]Conn)
	p.mu.Unlock()
	for _, c := range conns {
		c.Shutdown()
	}
}
