package transport

import (
	"context"
	"encoding/binary"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu   sync.Mutex
	msgs []message.Message
	ch   chan message.Message
}

func newInbox() *inbox {
	return &inbox{ch: make(chan message.Message, 64)}
}

func (b *inbox) onMessage(_ Conn, m message.Message) {
	b.mu.Lock()
	b.msgs = append(b.msgs, m)
	b.mu.Unlock()
	b.ch <- m
}

func (b *inbox) next(t *testing.T) message.Message {
	t.Helper()
	select {
	case m := <-b.ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func startEcho(t *testing.T, proto *protocol.Protocol, closed chan Conn) *Server {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", proto, Handlers{
		OnMessage: func(c Conn, m message.Message) {
			if req, ok := m.(*message.RPCRequest); ok {
				rsp := message.NewRPCResponse(message.CodeOK, req.Method())
				rsp.SetID(req.ID())
				c.Send(rsp)
			}
		},
		OnClose: func(c Conn) {
			if closed != nil {
				closed <- c
			}
		},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestSendAndReceive(t *testing.T) {
	proto := protocol.New(nil, 0)
	srv := startEcho(t, proto, nil)

	in := newInbox()
	c, err := Dial(context.Background(), srv.Addr().String(), proto, Handlers{OnMessage: in.onMessage}, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	var wg sync.WaitGroup
	ids := make(map[string]string)
	var idsMu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := message.NewRPCRequest("m"+string(rune('a'+i)), nil)
			idsMu.Lock()
			ids[req.ID()] = req.Method()
			idsMu.Unlock()
			assert.NoError(t, c.Send(req))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		rsp := in.next(t).(*message.RPCResponse)
		idsMu.Lock()
		assert.Equal(t, ids[rsp.ID()], rsp.Result())
		idsMu.Unlock()
	}
}

func TestSendAfterShutdown(t *testing.T) {
	proto := protocol.New(nil, 0)
	srv := startEcho(t, proto, nil)

	c, err := Dial(context.Background(), srv.Addr().String(), proto, Handlers{}, nil)
	require.NoError(t, err)
	c.Shutdown()
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Send(message.NewTopicResponse(message.CodeOK)), ErrDisconnected)
}

func rawDial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	raw, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return raw
}

func expectClosed(t *testing.T, closed chan Conn) {
	t.Helper()
	select {
	case c := <-closed:
		assert.False(t, c.Connected())
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut the connection down")
	}
}

func TestUnknownKindShutsConnectionDown(t *testing.T) {
	closed := make(chan Conn, 1)
	srv := startEcho(t, protocol.New(nil, 0), closed)
	raw := rawDial(t, srv)

	frame := make([]byte, 14)
	binary.BigEndian.PutUint32(frame[0:4], 10)
	binary.BigEndian.PutUint32(frame[4:8], 99)
	binary.BigEndian.PutUint32(frame[8:12], 0)
	copy(frame[12:], "{}")
	_, err := raw.Write(frame)
	require.NoError(t, err)

	expectClosed(t, closed)
}

func TestOversizedFrameShutsConnectionDown(t *testing.T) {
	closed := make(chan Conn, 1)
	srv := startEcho(t, protocol.New(nil, 128), closed)
	raw := rawDial(t, srv)

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 4096)
	_, err := raw.Write(header)
	require.NoError(t, err)

	expectClosed(t, closed)
}

func TestServerCloseRunsOnClose(t *testing.T) {
	closed := make(chan Conn, 4)
	proto := protocol.New(nil, 0)
	srv, err := Listen("127.0.0.1:0", proto, Handlers{
		OnClose: func(c Conn) { closed <- c },
	}, nil)
	require.NoError(t, err)

	c, err := Dial(context.Background(), srv.Addr().String(), proto, Handlers{}, nil)
	require.NoError(t, err)
	defer c.Shutdown()

	require.Eventually(t, func() bool { return srv.ConnCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, srv.Close())
	expectClosed(t, closed)
	assert.Equal(t, 0, srv.ConnCount())
}

func TestAcceptFailureClosesConnections(t *testing.T) {
	closed := make(chan Conn, 4)
	proto := protocol.New(nil, 0)
	srv, err := Listen("127.0.0.1:0", proto, Handlers{
		OnClose: func(c Conn) { closed <- c },
	}, nil)
	require.NoError(t, err)

	clientClosed := make(chan Conn, 1)
	c, err := Dial(context.Background(), srv.Addr().String(), proto, Handlers{
		OnClose: func(c Conn) { clientClosed <- c },
	}, nil)
	require.NoError(t, err)
	defer c.Shutdown()
	require.Eventually(t, func() bool { return srv.ConnCount() == 1 }, time.Second, 10*time.Millisecond)

	// Accept fails while the server is not stopping.
	srv.listener.Close()

	expectClosed(t, closed)
	expectClosed(t, clientClosed)
	assert.ErrorIs(t, srv.Wait(), net.ErrClosed)
	assert.Equal(t, 0, srv.ConnCount())
}
