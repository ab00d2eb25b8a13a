package registry

import (
	"context"
	"testing"
	"time"

	"mini-jsonrpc/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMirror needs an etcd at localhost:2379 and skips without one.
func newTestMirror(t *testing.T) *EtcdMirror {
	t.Helper()
	m, err := NewEtcdMirror([]string{"localhost:2379"}, 10, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := m.client.Get(ctx, "health"); err != nil {
		m.Close()
		t.Skipf("etcd not reachable: %v", err)
	}
	m.prefix = "/mini-jsonrpc-test/" + t.Name() + "/"
	return m
}

func TestEtcdMirrorPutDelete(t *testing.T) {
	m := newTestMirror(t)
	defer m.Close()

	a := message.Address{IP: "127.0.0.1", Port: 8001}
	b := message.Address{IP: "127.0.0.1", Port: 8002}
	m.Put("Arith.Add", a)
	m.Put("Arith.Add", b)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		hosts, err := m.List(ctx, "Arith.Add")
		return err == nil && len(hosts) == 2
	}, 3*time.Second, 20*time.Millisecond)

	m.Delete("Arith.Add", a)
	require.Eventually(t, func() bool {
		hosts, err := m.List(ctx, "Arith.Add")
		return err == nil && len(hosts) == 1 && hosts[0] == b
	}, 3*time.Second, 20*time.Millisecond)
}

func TestEtcdMirrorCloseRevokes(t *testing.T) {
	m := newTestMirror(t)
	a := message.Address{IP: "127.0.0.1", Port: 8003}
	m.Put("Arith.Mul", a)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		hosts, err := m.List(ctx, "Arith.Mul")
		return err == nil && len(hosts) == 1
	}, 3*time.Second, 20*time.Millisecond)

	prefix := m.prefix
	require.NoError(t, m.Close())

	probe, err := NewEtcdMirror([]string{"localhost:2379"}, 10, nil)
	require.NoError(t, err)
	defer probe.Close()
	probe.prefix = prefix
	hosts, err := probe.List(ctx, "Arith.Mul")
	require.NoError(t, err)
	assert.Empty(t, hosts)
}
