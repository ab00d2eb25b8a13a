package client

import (
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"slices"
	"sync"
)

// MethodHost is the cached, ordered provider list for one method.
type MethodHost struct {
	mu       sync.Mutex
	hosts    []message.Address
	balancer loadbalance.Balancer
}

func NewMethodHost(hosts []message.Address, b loadbalance.Balancer) *MethodHost {
	if b == nil {
		b = &loadbalance.RoundRobinBalancer{}
	}
	mh := &MethodHost{balancer: b}
	for _, h := range hosts {
		mh.appendLocked(h)
	}
	return mh
}

// Append adds host unless it is already cached.
func (m *MethodHost) Append(host message.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(host)
}

func (m *MethodHost) appendLocked(host message.Address) bool {
	if slices.Contains(m.hosts, host) {
		return false
	}
	m.hosts = append(m.hosts, host)
	return true
}

func (m *MethodHost) Remove(host message.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.Index(m.hosts, host)
	if i < 0 {
		return false
	}
	m.hosts = slices.Delete(m.hosts, i, i+1)
	return true
}

// Choose picks one host with the method's balancer.
func (m *MethodHost) Choose() (message.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balancer.Pick(m.hosts)
}

func (m *MethodHost) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hosts) == 0
}

func (m *MethodHost) Hosts() []message.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.hosts)
}
