package server

import (
	"mini-jsonrpc/client"
	"mini-jsonrpc/message"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTopicFanOut(t *testing.T) {
	srv, err := NewTopicServer("127.0.0.1:0", WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer srv.Close()
	ctx := testCtx(t)

	dial := func() *client.TopicClient {
		c, err := client.NewTopicClient(ctx, srv.Addr().String(), client.WithLogger(zap.NewNop()))
		require.NoError(t, err)
		t.Cleanup(c.Close)
		return c
	}
	pub, subA, subB := dial(), dial(), dial()
	gotA := make(chan any, 4)
	gotB := make(chan any, 4)

	err = subA.Subscribe(ctx, "news", func(topic string, msg any) { gotA <- msg })
	assert.Equal(t, message.CodeNotFoundTopic, message.CodeOf(err))

	require.NoError(t, pub.Create(ctx, "news"))
	require.NoError(t, subA.Subscribe(ctx, "news", func(topic string, msg any) { gotA <- msg }))
	require.NoError(t, subB.Subscribe(ctx, "news", func(topic string, msg any) { gotB <- msg }))
	assert.Equal(t, 2, srv.Engine().Subscribers("news"))

	require.NoError(t, pub.Publish(ctx, "news", "hello"))
	for _, ch := range []chan any{gotA, gotB} {
		select {
		case msg := <-ch:
			assert.Equal(t, "hello", msg)
		case <-ctx.Done():
			t.Fatal("publish not delivered")
		}
	}

	require.NoError(t, subA.Cancel(ctx, "news"))
	require.NoError(t, pub.Publish(ctx, "news", "again"))
	select {
	case msg := <-gotB:
		assert.Equal(t, "again", msg)
	case <-ctx.Done():
		t.Fatal("publish not delivered")
	}
	select {
	case msg := <-gotA:
		t.Fatalf("cancelled subscriber got %v", msg)
	case <-time.After(100 * time.Millisecond):
	}

	subB.Close()
	require.Eventually(t, func() bool {
		return srv.Engine().Subscribers("news") == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, pub.Remove(ctx, "news"))
	err = pub.Publish(ctx, "news", "gone")
	assert.Equal(t, message.CodeNotFoundTopic, message.CodeOf(err))
}
