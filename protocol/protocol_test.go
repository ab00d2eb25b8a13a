package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protocols() map[string]*Protocol {
	return map[string]*Protocol{
		"json":    New(&codec.JSONCodec{}, 0),
		"msgpack": New(&codec.MsgpackCodec{}, 0),
	}
}

func TestEncodeDecode(t *testing.T) {
	host := message.Address{IP: "127.0.0.1", Port: 9090}
	msgs := []message.Message{
		message.NewRPCRequest("Add", map[string]any{"a": 1, "b": 2}),
		message.NewRPCResponse(message.CodeOK, 3),
		message.NewTopicRequest("news", message.TopicPublish, "hello"),
		message.NewTopicResponse(message.CodeNotFoundTopic),
		message.NewServiceRequest("Add", message.OptypeRegistry, &host),
		message.NewServiceResponse(message.CodeOK, message.OptypeRegistry),
	}

	for name, p := range protocols() {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			for _, m := range msgs {
				m.SetID("id-" + m.Kind().String())
				data, err := p.Encode(m)
				require.NoError(t, err)
				buf.Write(data)
			}
			for _, want := range msgs {
				require.True(t, p.Processable(buf.Bytes()))
				got, err := p.Decode(&buf)
				require.NoError(t, err)
				assert.Equal(t, want.Kind(), got.Kind())
				assert.Equal(t, want.ID(), got.ID())
				assert.NoError(t, got.Check())
				assert.Equal(t, len(want.Body()), len(got.Body()))
			}
			assert.Zero(t, buf.Len())
		})
	}
}

func TestDecodeFieldsSurvive(t *testing.T) {
	p := New(nil, 0)
	req := message.NewRPCRequest("Add", map[string]any{"a": 1, "b": 2})
	data, err := p.Encode(req)
	require.NoError(t, err)

	got, err := p.Decode(bytes.NewBuffer(data))
	require.NoError(t, err)
	rpc := got.(*message.RPCRequest)
	assert.Equal(t, req.ID(), rpc.ID())
	assert.Equal(t, "Add", rpc.Method())
	b, _ := message.AsInt(rpc.Params()["b"])
	assert.EqualValues(t, 2, b)
}

func TestProcessablePartial(t *testing.T) {
	p := New(nil, 0)
	data, err := p.Encode(message.NewTopicResponse(message.CodeOK))
	require.NoError(t, err)

	for i := 0; i < len(data); i++ {
		assert.False(t, p.Processable(data[:i]), "prefix of %d bytes", i)
	}
	assert.True(t, p.Processable(data))

	_, err = p.Decode(bytes.NewBuffer(data[:len(data)-1]))
	assert.ErrorIs(t, err, ErrIncomplete)
}

func frame(kind int32, id string, body []byte) []byte {
	out := make([]byte, 12)
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(id)+len(body)))
	binary.BigEndian.PutUint32(out[4:8], uint32(kind))
	binary.BigEndian.PutUint32(out[8:12], uint32(len(id)))
	out = append(out, id...)
	return append(out, body...)
}

func TestDecodeUnknownKind(t *testing.T) {
	p := New(nil, 0)
	_, err := p.Decode(bytes.NewBuffer(frame(17, "x", []byte(`{}`))))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeBadBody(t *testing.T) {
	p := New(nil, 0)
	_, err := p.Decode(bytes.NewBuffer(frame(int32(message.KindRPCRequest), "x", []byte(`{broken`))))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeBadIDLength(t *testing.T) {
	p := New(nil, 0)
	data := frame(int32(message.KindRPCRequest), "abc", []byte(`{}`))
	binary.BigEndian.PutUint32(data[8:12], 500)
	_, err := p.Decode(bytes.NewBuffer(data))
	assert.True(t, errors.Is(err, ErrMalformedFrame))
}

func TestOversized(t *testing.T) {
	p := New(nil, 64)

	big := message.NewRPCRequest("Add", map[string]any{"blob": string(make([]byte, 100))})
	_, err := p.Encode(big)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 1000)
	assert.True(t, p.Oversized(header))

	small := frame(int32(message.KindTopicResponse), "", []byte(`{"rcode":0}`))
	assert.False(t, p.Oversized(small))
}
