package loadbalance

import (
	"fmt"
	"hash/crc32"
	"mini-jsonrpc/message"
	"sort"
	"strings"
	"sync"
)

// ConsistentHashBalancer maps a fixed client key onto a hash ring of the
// current hosts. The ring is rebuilt only when the host set changes, and a
// change only moves the keys that hashed next to the added or removed host.
//
// Each host is placed on the ring as 100 virtual nodes so that a handful of
// hosts still spreads evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A'
//	                ╲   ╱
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu    sync.Mutex
	sig   string                     // Host set the ring was built from
	ring  []uint32                   // Sorted virtual node hashes
	nodes map[uint32]message.Address // Virtual node → host
}

func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		key:      key,
		replicas: 100,
		nodes:    make(map[uint32]message.Address),
	}
}

func (b *ConsistentHashBalancer) Pick(hosts []message.Address) (message.Address, error) {
	if len(hosts) == 0 {
		return message.Address{}, ErrNoHosts
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuild(hosts)

	hash := crc32.ChecksumIEEE([]byte(b.key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) rebuild(hosts []message.Address) {
	keys := make([]string, len(hosts))
	for i, h := range hosts {
		keys[i] = h.String()
	}
	sort.Strings(keys)
	sig := strings.Join(keys, ",")
	if sig == b.sig {
		return
	}

	b.sig = sig
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]message.Address, len(hosts)*b.replicas)
	for _, h := range hosts {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", h, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = h
		}
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
