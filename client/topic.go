package client

import (
	"context"
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"
	"sync"

	"go.uber.org/zap"
)

// SubscribeCallback receives messages published to a subscribed topic. It
// runs on the connection's reader goroutine.
type SubscribeCallback func(topic string, msg any)

// TopicManager issues topic operations and routes inbound publishes to the
// callback registered for their topic.
type TopicManager struct {
	requestor *Requestor
	logger    *zap.Logger

	mu        sync.Mutex
	callbacks map[string]SubscribeCallback
}

func NewTopicManager(r *Requestor, logger *zap.Logger) *TopicManager {
	if logger == nil {
		logger = zap.L().Named("topic")
	}
	return &TopicManager{
		requestor: r,
		logger:    logger,
		callbacks: make(map[string]SubscribeCallback),
	}
}

func (m *TopicManager) Create(ctx context.Context, conn transport.Conn, key string) error {
	return m.request(ctx, conn, message.NewTopicRequest(key, message.TopicCreate, nil))
}

func (m *TopicManager) Remove(ctx context.Context, conn transport.Conn, key string) error {
	return m.request(ctx, conn, message.NewTopicRequest(key, message.TopicRemove, nil))
}

// Subscribe installs cb before asking the server, so a publish racing the
// acknowledgement is not lost. The callback is removed again on failure.
func (m *TopicManager) Subscribe(ctx context.Context, conn transport.Conn, key string, cb SubscribeCallback) error {
	m.mu.Lock()
	m.callbacks[key] = cb
	m.mu.Unlock()

	if err := m.request(ctx, conn, message.NewTopicRequest(key, message.TopicSubscribe, nil)); err != nil {
		m.mu.Lock()
		delete(m.callbacks, key)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *TopicManager) Cancel(ctx context.Context, conn transport.Conn, key string) error {
	m.mu.Lock()
	delete(m.callbacks, key)
	m.mu.Unlock()
	return m.request(ctx, conn, message.NewTopicRequest(key, message.TopicCancel, nil))
}

func (m *TopicManager) Publish(ctx context.Context, conn transport.Conn, key string, msg any) error {
	return m.request(ctx, conn, message.NewTopicRequest(key, message.TopicPublish, msg))
}

func (m *TopicManager) request(ctx context.Context, conn transport.Conn, req *message.TopicRequest) error {
	rsp, err := m.requestor.Send(ctx, conn, req)
	if err != nil {
		return err
	}
	tr, ok := rsp.(*message.TopicResponse)
	if !ok {
		return ErrUnexpectedResponse
	}
	if tr.RCode() != message.CodeOK {
		return &message.CodeError{Code: tr.RCode()}
	}
	return nil
}

// OnPublish delivers a forwarded publish to its topic's callback.
func (m *TopicManager) OnPublish(conn transport.Conn, req *message.TopicRequest) {
	if req.Optype() != message.TopicPublish {
		m.logger.Warn("ignoring non-publish topic request", zap.Stringer("optype", req.Optype()))
		return
	}
	key := req.TopicKey()
	m.mu.Lock()
	cb, ok := m.callbacks[key]
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("publish for topic without subscription", zap.String("topic", key))
		return
	}
	cb(key, req.TopicMsg())
}
