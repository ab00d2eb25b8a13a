package server

import (
	"context"
	"mini-jsonrpc/client"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startRegistry(t *testing.T) *RegistryServer {
	t.Helper()
	reg, err := NewRegistryServer("127.0.0.1:0", WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestDiscoveryMissThenHit(t *testing.T) {
	reg := startRegistry(t)
	ctx := testCtx(t)

	disc, err := client.NewDiscoveryClient(ctx, reg.Addr().String(), nil, client.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer disc.Close()

	_, err = disc.ServiceDiscovery(ctx, "Add")
	assert.Equal(t, message.CodeNotFoundService, message.CodeOf(err))

	provider := startRpcServer(t, WithRegistry(reg.Addr().String()))
	host, err := disc.ServiceDiscovery(ctx, "Add")
	require.NoError(t, err)
	assert.Equal(t, provider.Advertised(), host)
	assert.Contains(t, reg.Manager().Providers("Arith.Add"), provider.Advertised())
}

func TestOnlinePushReachesCache(t *testing.T) {
	reg := startRegistry(t)
	ctx := testCtx(t)
	first := startRpcServer(t, WithRegistry(reg.Addr().String()))

	disc, err := client.NewDiscoveryClient(ctx, reg.Addr().String(), nil, client.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer disc.Close()
	_, err = disc.ServiceDiscovery(ctx, "Add")
	require.NoError(t, err)

	second := startRpcServer(t, WithRegistry(reg.Addr().String()), WithAdvertiseAddr(message.Address{IP: "127.0.0.1", Port: 1}))
	require.Eventually(t, func() bool {
		return len(disc.CachedHosts("Add")) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []message.Address{first.Advertised(), second.Advertised()}, disc.CachedHosts("Add"))
}

func TestDiscoveryModeFailsOver(t *testing.T) {
	reg := startRegistry(t)
	ctx := testCtx(t)
	a := startRpcServer(t, WithRegistry(reg.Addr().String()))
	b := startRpcServer(t, WithRegistry(reg.Addr().String()))

	cli, err := client.NewRpcClient(ctx, reg.Addr().String(), true, client.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer cli.Close()

	for i := 0; i < 4; i++ {
		result, err := cli.Call(ctx, "Add", map[string]any{"a": i, "b": 1})
		require.NoError(t, err)
		requireInt(t, int64(i+1), result)
	}

	require.NoError(t, a.Shutdown(time.Second))
	require.Eventually(t, func() bool {
		return len(reg.Manager().Providers("Add")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []message.Address{b.Advertised()}, reg.Manager().Providers("Add"))

	// Calls may still race the OFFLINE push; once it lands every call
	// reaches the remaining provider.
	require.Eventually(t, func() bool {
		for i := 0; i < 4; i++ {
			if _, err := cli.Call(ctx, "Add", map[string]any{"a": 1, "b": 1}); err != nil {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func registerWho(t *testing.T, s *RpcServer, name string) {
	t.Helper()
	desc, err := NewDescribeBuilder().
		SetMethodName("Who").
		SetReturnType(String).
		SetCallback(func(ctx context.Context, params map[string]any) (any, error) { return name, nil }).
		Build()
	require.NoError(t, err)
	require.NoError(t, s.RegisterMethod(desc))
}

func TestBalancerStrategies(t *testing.T) {
	reg := startRegistry(t)
	ctx := testCtx(t)
	registerWho(t, startRpcServer(t, WithRegistry(reg.Addr().String())), "a")
	registerWho(t, startRpcServer(t, WithRegistry(reg.Addr().String())), "b")

	calls := func(strategy string) map[any]int {
		factory, err := loadbalance.NewFactory(strategy, "client-1")
		require.NoError(t, err)
		cli, err := client.NewRpcClient(ctx, reg.Addr().String(), true,
			client.WithBalancer(factory), client.WithLogger(zap.NewNop()))
		require.NoError(t, err)
		defer cli.Close()

		seen := map[any]int{}
		for i := 0; i < 6; i++ {
			who, err := cli.Call(ctx, "Who", map[string]any{})
			require.NoError(t, err)
			seen[who]++
		}
		return seen
	}

	assert.Equal(t, map[any]int{"a": 3, "b": 3}, calls(loadbalance.RoundRobin))
	assert.Len(t, calls(loadbalance.ConsistentHash), 1)
}
