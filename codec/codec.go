// Package codec serializes message.Envelope values for the RPC transport.
//
// The codec in use is announced per frame in the protocol header, so one
// listener serves clients using any of them.
package codec

import (
	"fmt"

	"session-gateway/message"
	"session-gateway/protocol"
)

type CodecType byte

const (
	CodecTypeJSON   = CodecType(protocol.CodecTypeJSON)
	CodecTypeBinary = CodecType(protocol.CodecTypeBinary)
	CodecTypeCBOR   = CodecType(protocol.CodecTypeCBOR)
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	case CodecTypeCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}

// ParseCodecType maps a CLI/config name to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "binary":
		return CodecTypeBinary, nil
	case "cbor":
		return CodecTypeCBOR, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}

type Codec interface {
	Encode(env *message.Envelope) ([]byte, error)
	Decode(data []byte, env *message.Envelope) error
	Type() CodecType
}

// GetCodec returns the codec for codecType, or an error for unknown identifiers.
func GetCodec(codecType CodecType) (Codec, error) {
	switch codecType {
	case CodecTypeJSON:
		return JSONCodec{}, nil
	case CodecTypeBinary:
		return BinaryCodec{}, nil
	case CodecTypeCBOR:
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("codec: unsupported type %d", byte(codecType))
	}
}
