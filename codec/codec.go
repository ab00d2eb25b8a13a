// Package codec encodes message bodies. The frame layer is codec-agnostic:
// both peers of a connection must agree on the codec out of band.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON    CodecType = 0
	CodecTypeMsgPack CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=MessagePack
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeMsgPack:
		return "msgpack"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeMsgPack {
		return &MsgpackCodec{}
	}
	return &JSONCodec{}
}

// ParseCodecType maps a configuration name to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "msgpack":
		return CodecTypeMsgPack, nil
	}
	return 0, fmt.Errorf("codec: unknown codec %q", name)
}
