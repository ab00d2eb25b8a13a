// Package loadbalance selects one provider address out of the hosts cached
// for a method.
//
// Three strategies are implemented:
//   - RoundRobin:      default; each host once per rotation, in cache order
//   - Random:          uniform choice, no shared cursor
//   - ConsistentHash:  the same client identity keeps landing on the same host
package loadbalance

import (
	"errors"
	"fmt"
	"mini-jsonrpc/message"
)

var ErrNoHosts = errors.New("loadbalance: no hosts available")

// Balancer is the interface for load balancing strategies. Each cached
// method owns its own Balancer, so state such as a cursor is per method.
type Balancer interface {
	// Pick selects one address from hosts. Must be goroutine-safe.
	Pick(hosts []message.Address) (message.Address, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// Factory builds a fresh Balancer for a newly cached method.
type Factory func() Balancer

const (
	RoundRobin     = "round_robin"
	Random         = "random"
	ConsistentHash = "consistent_hash"
)

// NewFactory resolves a strategy name. key is only used by ConsistentHash.
func NewFactory(name, key string) (Factory, error) {
	switch name {
	case "", RoundRobin:
		return func() Balancer { return &RoundRobinBalancer{} }, nil
	case Random:
		return func() Balancer { return &RandomBalancer{} }, nil
	case ConsistentHash:
		return func() Balancer { return NewConsistentHashBalancer(key) }, nil
	}
	return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
}
