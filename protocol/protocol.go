// Package protocol implements the length-value frame used on every connection.
//
// A frame carries one message. All integers are big-endian int32 and
// total_length counts every byte after itself:
//
//	0               4               8               12
//	┌───────────────┬───────────────┬───────────────┬──────────┬────────────┐
//	│ total_length  │     kind      │   id_length   │ id bytes │ body bytes │
//	└───────────────┴───────────────┴───────────────┴──────────┴────────────┘
//
// The reader accumulates bytes until Processable reports a whole frame, then
// Decode consumes exactly that frame. A buffer that grows past the configured
// maximum without completing a frame is a protocol violation.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
)

const (
	lengthFieldSize   = 4
	kindFieldSize     = 4
	idLengthFieldSize = 4
	headerSize        = lengthFieldSize + kindFieldSize + idLengthFieldSize

	// DefaultMaxFrameSize bounds a single frame including its length prefix.
	DefaultMaxFrameSize = 1 << 16
)

var (
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	ErrUnknownKind    = errors.New("protocol: unknown message kind")
	ErrFrameTooLarge  = errors.New("protocol: frame too large")
	ErrIncomplete     = errors.New("protocol: incomplete frame")
)

// Protocol frames messages with a body codec.
type Protocol struct {
	codec        codec.Codec
	maxFrameSize int
}

// New returns a Protocol; a non-positive maxFrameSize selects the default.
func New(c codec.Codec, maxFrameSize int) *Protocol {
	if c == nil {
		c = &codec.JSONCodec{}
	}
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Protocol{codec: c, maxFrameSize: maxFrameSize}
}

func (p *Protocol) Codec() codec.Codec { return p.codec }
func (p *Protocol) MaxFrameSize() int  { return p.maxFrameSize }

// Processable reports whether buf starts with a complete frame.
func (p *Protocol) Processable(buf []byte) bool {
	if len(buf) < lengthFieldSize {
		return false
	}
	total := int64(int32(binary.BigEndian.Uint32(buf)))
	return int64(len(buf)) >= total+lengthFieldSize
}

// Oversized reports whether buf can no longer yield an acceptable frame:
// either the announced frame exceeds the maximum, or more than the maximum is
// buffered without a complete frame.
func (p *Protocol) Oversized(buf []byte) bool {
	if len(buf) >= lengthFieldSize {
		total := int64(int32(binary.BigEndian.Uint32(buf)))
		if total+lengthFieldSize > int64(p.maxFrameSize) {
			return true
		}
	}
	return len(buf) > p.maxFrameSize && !p.Processable(buf)
}

// Decode consumes one frame from buf. Any error other than ErrIncomplete
// means the stream is unusable.
func (p *Protocol) Decode(buf *bytes.Buffer) (message.Message, error) {
	if !p.Processable(buf.Bytes()) {
		return nil, ErrIncomplete
	}
	total := int(int32(binary.BigEndian.Uint32(buf.Bytes())))
	if total < kindFieldSize+idLengthFieldSize {
		return nil, fmt.Errorf("%w: total length %d", ErrMalformedFrame, total)
	}
	frame := buf.Next(lengthFieldSize + total)[lengthFieldSize:]

	kind := message.Kind(int32(binary.BigEndian.Uint32(frame[0:4])))
	idLen := int(int32(binary.BigEndian.Uint32(frame[4:8])))
	if idLen < 0 || idLen > total-kindFieldSize-idLengthFieldSize {
		return nil, fmt.Errorf("%w: id length %d in frame of %d", ErrMalformedFrame, idLen, total)
	}
	msg, err := message.New(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int32(kind))
	}
	id := string(frame[8 : 8+idLen])
	payload := frame[8+idLen:]

	body := message.Body{}
	if len(payload) > 0 {
		if err := p.codec.Decode(payload, &body); err != nil {
			return nil, fmt.Errorf("%w: body of %s: %v", ErrMalformedFrame, kind, err)
		}
	}
	msg.SetBody(body)
	msg.SetID(id)
	return msg, nil
}

// Encode serializes msg into a single frame.
func (p *Protocol) Encode(msg message.Message) ([]byte, error) {
	if !msg.Kind().Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int32(msg.Kind()))
	}
	payload, err := p.codec.Encode(map[string]any(msg.Body()))
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s body: %w", msg.Kind(), err)
	}
	id := msg.ID()
	total := kindFieldSize + idLengthFieldSize + len(id) + len(payload)
	if total+lengthFieldSize > p.maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, total+lengthFieldSize)
	}

	out := make([]byte, headerSize, lengthFieldSize+total)
	binary.BigEndian.PutUint32(out[0:4], uint32(total))
	binary.BigEndian.PutUint32(out[4:8], uint32(msg.Kind()))
	binary.BigEndian.PutUint32(out[8:12], uint32(len(id)))
	out = append(out, id...)
	out = append(out, payload...)
	return out, nil
}
