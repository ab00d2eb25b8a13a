// Package transport moves framed messages over TCP.
//
// Every connection, inbound or outbound, owns one reader goroutine. The reader
// accumulates bytes, cuts complete frames with the protocol and hands each
// decoded message to OnMessage on that same goroutine. Writes from any number
// of goroutines are serialized by a per-connection mutex so frames never
// interleave.
//
//	caller-1 ──Send──┐
//	caller-2 ──Send──┼──writeMu──→ net.Conn ──→ peer
//	caller-3 ──Send──┘
//
//	readLoop: net.Conn → buffer → Processable? → Decode → OnMessage(conn, msg)
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"mini-jsonrpc/message"
	"mini-jsonrpc/metrics"
	"mini-jsonrpc/protocol"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var ErrDisconnected = errors.New("transport: connection is not connected")

const readChunkSize = 4096

// Conn is one live connection. All methods are safe for concurrent use.
type Conn interface {
	Send(msg message.Message) error
	Connected() bool
	Shutdown()
	RemoteAddr() string
}

// Handlers are the connection event callbacks. OnMessage and OnClose run on
// the connection's reader goroutine.
type Handlers struct {
	OnConnect func(Conn)
	OnMessage func(Conn, message.Message)
	OnClose   func(Conn)
}

type tcpConn struct {
	raw      net.Conn
	proto    *protocol.Protocol
	handlers Handlers
	logger   *zap.Logger

	writeMu  sync.Mutex  // One frame at a time on the wire
	closed   atomic.Bool // Set by the first Shutdown
	shutOnce sync.Once
	done     chan struct{} // Closed after OnClose returns
}

func newConn(raw net.Conn, proto *protocol.Protocol, h Handlers, logger *zap.Logger) *tcpConn {
	metrics.Connections.Inc()
	return &tcpConn{
		raw:      raw,
		proto:    proto,
		handlers: h,
		logger:   logger.With(zap.String("remote", raw.RemoteAddr().String())),
		done:     make(chan struct{}),
	}
}

func (c *tcpConn) Send(msg message.Message) error {
	if c.closed.Load() {
		return ErrDisconnected
	}
	data, err := c.proto.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.raw.Write(data); err != nil {
		c.Shutdown()
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (c *tcpConn) Connected() bool {
	return !c.closed.Load()
}

// Shutdown closes the socket. The reader goroutine notices, runs OnClose and
// exits; Shutdown itself never calls back into user code.
func (c *tcpConn) Shutdown() {
	c.shutOnce.Do(func() {
		c.closed.Store(true)
		c.raw.Close()
	})
}

func (c *tcpConn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}

// Done is closed once the connection is fully torn down.
func (c *tcpConn) Done() <-chan struct{} {
	return c.done
}

func (c *tcpConn) readLoop() {
	defer func() {
		c.Shutdown()
		metrics.Connections.Dec()
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(c)
		}
		close(c.done)
	}()

	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)
	for {
		n, err := c.raw.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if !c.drain(&buf) {
				return
			}
		}
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("connection read ended", zap.Error(err))
			}
			return
		}
	}
}

// drain delivers every complete frame in buf. It returns false when the
// stream violated the protocol.
func (c *tcpConn) drain(buf *bytes.Buffer) bool {
	for {
		if c.proto.Oversized(buf.Bytes()) {
			c.logger.Warn("oversized frame, shutting connection down",
				zap.Int("buffered", buf.Len()), zap.Int("max", c.proto.MaxFrameSize()))
			metrics.FramesRejected.WithLabelValues("oversized").Inc()
			return false
		}
		if !c.proto.Processable(buf.Bytes()) {
			return true
		}
		msg, err := c.proto.Decode(buf)
		if err != nil {
			c.logger.Warn("undecodable frame, shutting connection down", zap.Error(err))
			reason := "malformed"
			if errors.Is(err, protocol.ErrUnknownKind) {
				reason = "unknown_kind"
			}
			metrics.FramesRejected.WithLabelValues(reason).Inc()
			return false
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(c, msg)
		}
	}
}
