package server

import (
	"context"
	"mini-jsonrpc/client"
	"testing"
	"time"

	"go.uber.org/zap"
)

func setupServerAndClient(b *testing.B) (*RpcServer, *client.RpcClient) {
	svr := NewRpcServer(WithLogger(zap.NewNop()))
	if err := svr.Register(&Arith{}); err != nil {
		b.Fatal(err)
	}
	if err := svr.Start(context.Background(), "127.0.0.1:0"); err != nil {
		b.Fatal(err)
	}
	cli, err := client.NewRpcClient(context.Background(), svr.Addr().String(), false, client.WithLogger(zap.NewNop()))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		cli.Close()
		svr.Shutdown(3 * time.Second)
	})
	return svr, cli
}

func BenchmarkSerialCall(b *testing.B) {
	_, cli := setupServerAndClient(b)
	params := map[string]any{"A": 1, "B": 2}
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := cli.Call(ctx, "Arith.Add", params); err != nil {
			b.Fatal(err)
		}
	}
}

// Many goroutines share one connection; responses are matched by id.
func BenchmarkConcurrentCall(b *testing.B) {
	_, cli := setupServerAndClient(b)
	ctx := context.Background()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		params := map[string]any{"A": 1, "B": 2}
		for pb.Next() {
			if _, err := cli.Call(ctx, "Arith.Add", params); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
