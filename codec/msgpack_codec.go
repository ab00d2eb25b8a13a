package codec

import (
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec is the compact binary alternative. Integers keep their integer
// type on decode, which is why body accessors accept every numeric kind.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgPack
}
