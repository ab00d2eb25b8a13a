package loadbalance

import (
	"mini-jsonrpc/message"
	"sync/atomic"
)

// RoundRobinBalancer walks the host list with a shared cursor: with N hosts
// and no changes in between, N picks return every host exactly once.
type RoundRobinBalancer struct {
	cursor atomic.Uint64 // Index of the next pick, before the modulo
}

func (b *RoundRobinBalancer) Pick(hosts []message.Address) (message.Address, error) {
	if len(hosts) == 0 {
		return message.Address{}, ErrNoHosts
	}
	index := (b.cursor.Add(1) - 1) % uint64(len(hosts))
	return hosts[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
