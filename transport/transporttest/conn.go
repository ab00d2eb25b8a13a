// Package transporttest provides an in-memory transport.Conn that records
// what is sent to it.
package transporttest

import (
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"
	"sync"
)

type Conn struct {
	name string

	mu        sync.Mutex
	sent      []message.Message
	closed    bool
	failSend  bool
	shutdowns int
	onSend    func(message.Message)
}

func NewConn(name string) *Conn {
	return &Conn{name: name}
}

func (c *Conn) Send(msg message.Message) error {
	c.mu.Lock()
	if c.closed || c.failSend {
		c.mu.Unlock()
		return transport.ErrDisconnected
	}
	c.sent = append(c.sent, msg)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return nil
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Conn) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.shutdowns++
}

func (c *Conn) RemoteAddr() string { return c.name }

// OnSend installs a hook run after each successful Send, outside the lock.
func (c *Conn) OnSend(fn func(message.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = fn
}

// FailSends makes every following Send return transport.ErrDisconnected.
func (c *Conn) FailSends(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSend = fail
}

func (c *Conn) Sent() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]message.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// Last returns the most recently sent message, or nil.
func (c *Conn) Last() message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

func (c *Conn) Shutdowns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdowns
}
