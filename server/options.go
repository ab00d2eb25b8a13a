package server

import (
	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
	"mini-jsonrpc/registry"
	"time"

	"go.uber.org/zap"
)

type Option func(*options)

type options struct {
	codec           codec.CodecType
	maxFrameSize    int
	logger          *zap.Logger
	registryAddr    string
	advertise       *message.Address
	announceTimeout time.Duration
	mirror          registry.Mirror
}

// WithCodec selects the body codec; clients must use the same one.
func WithCodec(ct codec.CodecType) Option {
	return func(o *options) { o.codec = ct }
}

func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry makes an RpcServer announce its methods to the registry
// server at addr.
func WithRegistry(addr string) Option {
	return func(o *options) { o.registryAddr = addr }
}

// WithAdvertiseAddr is the address announced to the registry. By default it
// is derived from the listener, with an unspecified IP replaced by loopback.
func WithAdvertiseAddr(addr message.Address) Option {
	return func(o *options) { o.advertise = &addr }
}

// WithAnnounceTimeout bounds each registration round trip.
func WithAnnounceTimeout(d time.Duration) Option {
	return func(o *options) { o.announceTimeout = d }
}

// WithMirror makes a RegistryServer copy provider changes to m.
func WithMirror(m registry.Mirror) Option {
	return func(o *options) { o.mirror = m }
}

func newOptions(opts []Option) *options {
	o := &options{codec: codec.CodecTypeJSON, announceTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.L().Named("server")
	}
	return o
}

func (o *options) protocol() *protocol.Protocol {
	return protocol.New(codec.GetCodec(o.codec), o.maxFrameSize)
}
