package client

import (
	"context"
	"mini-jsonrpc/dispatcher"
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"
)

// TopicClient talks to a topic server over one connection, both as
// publisher and as subscriber.
type TopicClient struct {
	conn   transport.Conn
	topics *TopicManager
}

func NewTopicClient(ctx context.Context, addr string, opts ...Option) (*TopicClient, error) {
	o := newOptions(opts)
	r := NewRequestor(o.logger.Named("requestor"))
	m := NewTopicManager(r, o.logger.Named("topic"))
	d := dispatcher.New(o.logger.Named("dispatcher"))
	dispatcher.RegisterHandler(d, message.KindTopicResponse, func(c transport.Conn, rsp *message.TopicResponse) {
		r.OnResponse(c, rsp)
	})
	dispatcher.RegisterHandler(d, message.KindTopicRequest, m.OnPublish)

	conn, err := transport.Dial(ctx, addr, o.protocol(), transport.Handlers{
		OnMessage: d.OnMessage,
		OnClose:   r.FailConn,
	}, o.logger)
	if err != nil {
		return nil, err
	}
	return &TopicClient{conn: conn, topics: m}, nil
}

func (c *TopicClient) Create(ctx context.Context, key string) error {
	return c.topics.Create(ctx, c.conn, key)
}

func (c *TopicClient) Remove(ctx context.Context, key string) error {
	return c.topics.Remove(ctx, c.conn, key)
}

func (c *TopicClient) Subscribe(ctx context.Context, key string, cb SubscribeCallback) error {
	return c.topics.Subscribe(ctx, c.conn, key, cb)
}

func (c *TopicClient) Cancel(ctx context.Context, key string) error {
	return c.topics.Cancel(ctx, c.conn, key)
}

func (c *TopicClient) Publish(ctx context.Context, key string, msg any) error {
	return c.topics.Publish(ctx, c.conn, key, msg)
}

func (c *TopicClient) Close() {
	c.conn.Shutdown()
}
