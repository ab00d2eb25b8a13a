package client

import (
	"mini-jsonrpc/codec"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/protocol"

	"go.uber.org/zap"
)

type Option func(*options)

type options struct {
	codec        codec.CodecType
	maxFrameSize int
	logger       *zap.Logger
	balancer     loadbalance.Factory
}

// WithCodec selects the body codec; the peer must use the same one.
func WithCodec(ct codec.CodecType) Option {
	return func(o *options) { o.codec = ct }
}

func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBalancer sets the selection strategy for discovered providers.
func WithBalancer(f loadbalance.Factory) Option {
	return func(o *options) { o.balancer = f }
}

func newOptions(opts []Option) *options {
	o := &options{codec: codec.CodecTypeJSON}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.L().Named("client")
	}
	return o
}

func (o *options) protocol() *protocol.Protocol {
	return protocol.New(codec.GetCodec(o.codec), o.maxFrameSize)
}
