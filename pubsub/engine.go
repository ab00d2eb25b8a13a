// Package pubsub is the topic engine of the topic server.
//
// Topics and subscribers reference each other by key, never by pointer:
//
//	topics:      name ──→ {subscriber conns}
//	subscribers: conn ──→ {topic names}
//
// Both sides change together under one lock, so removing a topic or a
// connection never leaves a dangling reference on the other side.
//
// A name identifies at most one topic. Creating a topic that already exists
// keeps the existing topic and its subscribers and still succeeds.
package pubsub

import (
	"errors"
	"mini-jsonrpc/message"
	"mini-jsonrpc/metrics"
	"mini-jsonrpc/transport"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var ErrTopicNotFound = errors.New("pubsub: topic not found")

type topic struct {
	name        string
	subscribers map[transport.Conn]struct{}
}

type subscriber struct {
	conn   transport.Conn
	topics map[string]struct{}
}

type Engine struct {
	mu          sync.Mutex
	topics      map[string]*topic
	subscribers map[transport.Conn]*subscriber
	logger      *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L().Named("pubsub")
	}
	return &Engine{
		topics:      make(map[string]*topic),
		subscribers: make(map[transport.Conn]*subscriber),
		logger:      logger,
	}
}

// Create adds the topic and reports whether it is new.
func (e *Engine) Create(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.topics[name]; ok {
		return false
	}
	e.topics[name] = &topic{name: name, subscribers: make(map[transport.Conn]struct{})}
	metrics.Topics.Inc()
	return true
}

// Remove detaches the topic from all its subscribers, then deletes it.
func (e *Engine) Remove(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.topics[name]
	if !ok {
		return false
	}
	for conn := range t.subscribers {
		if s, ok := e.subscribers[conn]; ok {
			delete(s.topics, name)
		}
	}
	delete(e.topics, name)
	metrics.Topics.Dec()
	return true
}

// Subscribe links conn and the topic in both directions.
func (e *Engine) Subscribe(conn transport.Conn, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.topics[name]
	if !ok {
		return ErrTopicNotFound
	}
	s, ok := e.subscribers[conn]
	if !ok {
		s = &subscriber{conn: conn, topics: make(map[string]struct{})}
		e.subscribers[conn] = s
	}
	s.topics[name] = struct{}{}
	t.subscribers[conn] = struct{}{}
	return nil
}

// Unsubscribe unlinks conn and the topic; missing either side is a no-op.
func (e *Engine) Unsubscribe(conn transport.Conn, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.topics[name]; ok {
		delete(t.subscribers, conn)
	}
	if s, ok := e.subscribers[conn]; ok {
		delete(s.topics, name)
	}
}

// Publish forwards msg to every current subscriber of the topic. Delivery
// is best effort: a failed send is logged and the rest still get the message.
func (e *Engine) Publish(name string, msg *message.TopicRequest) (int, error) {
	e.mu.Lock()
	t, ok := e.topics[name]
	if !ok {
		e.mu.Unlock()
		metrics.TopicPublishes.WithLabelValues("not_found").Inc()
		return 0, ErrTopicNotFound
	}
	conns := make([]transport.Conn, 0, len(t.subscribers))
	for conn := range t.subscribers {
		conns = append(conns, conn)
	}
	e.mu.Unlock()
	metrics.TopicPublishes.WithLabelValues("ok").Inc()

	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(msg); err != nil {
			metrics.TopicDeliveries.WithLabelValues("failed").Inc()
			e.logger.Warn("publish delivery failed",
				zap.String("topic", name), zap.String("remote", conn.RemoteAddr()), zap.Error(err))
			continue
		}
		metrics.TopicDeliveries.WithLabelValues("ok").Inc()
		delivered++
	}
	return delivered, nil
}

// OnShutdown removes conn from every topic it subscribed to.
func (e *Engine) OnShutdown(conn transport.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.subscribers[conn]
	if !ok {
		return
	}
	for name := range s.topics {
		if t, ok := e.topics[name]; ok {
			delete(t.subscribers, conn)
		}
	}
	delete(e.subscribers, conn)
}

// OnTopicRequest executes req and answers conn.
func (e *Engine) OnTopicRequest(conn transport.Conn, req *message.TopicRequest) {
	name := req.TopicKey()
	code := message.CodeOK
	switch req.Optype() {
	case message.TopicCreate:
		if !e.Create(name) {
			e.logger.Debug("topic already exists", zap.String("topic", name))
		}
	case message.TopicRemove:
		e.Remove(name)
	case message.TopicSubscribe:
		if err := e.Subscribe(conn, name); err != nil {
			code = message.CodeNotFoundTopic
		}
	case message.TopicCancel:
		e.Unsubscribe(conn, name)
	case message.TopicPublish:
		n, err := e.Publish(name, req)
		if err != nil {
			code = message.CodeNotFoundTopic
		} else {
			e.logger.Debug("published", zap.String("topic", name), zap.Int("delivered", n))
		}
	default:
		code = message.CodeInvalidOptype
	}

	rsp := message.NewTopicResponse(code)
	rsp.SetID(req.ID())
	if err := conn.Send(rsp); err != nil {
		e.logger.Warn("failed to answer topic request", zap.String("id", req.ID()), zap.Error(err))
	}
}

// Topics lists topic names in sorted order.
func (e *Engine) Topics() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.topics))
	for name := range e.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscribers reports how many connections subscribe to name.
func (e *Engine) Subscribers(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.topics[name]; ok {
		return len(t.subscribers)
	}
	return 0
}

// SubscribedTo lists the topics conn subscribes to, sorted.
func (e *Engine) SubscribedTo(conn transport.Conn) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.subscribers[conn]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(s.topics))
	for name := range s.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
