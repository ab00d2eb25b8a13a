package loadbalance

import (
	"math/rand"
	"mini-jsonrpc/message"
)

type RandomBalancer struct{}

func (b *RandomBalancer) Pick(hosts []message.Address) (message.Address, error) {
	if len(hosts) == 0 {
		return message.Address{}, ErrNoHosts
	}
	return hosts[rand.Intn(len(hosts))], nil
}

func (b *RandomBalancer) Name() string {
	return "Random"
}
