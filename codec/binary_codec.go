package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"session-gateway/message"
)

var errTruncated = errors.New("codec: truncated binary envelope")

// BinaryCodec lays an envelope out as length-prefixed fields, big-endian:
//
//	method len u16 | method | error len u16 | error | payload len u32 | payload
type BinaryCodec struct{}

func (BinaryCodec) Encode(env *message.Envelope) ([]byte, error) {
	if len(env.Method) > math.MaxUint16 || len(env.Error) > math.MaxUint16 {
		return nil, fmt.Errorf("codec: method or error text exceeds %d bytes", math.MaxUint16)
	}
	if uint64(len(env.Payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("codec: payload exceeds %d bytes", uint64(math.MaxUint32))
	}

	buf := make([]byte, 0, 2+len(env.Method)+2+len(env.Error)+4+len(env.Payload))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(env.Method)))
	buf = append(buf, env.Method...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(env.Error)))
	buf = append(buf, env.Error...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(env.Payload)))
	buf = append(buf, env.Payload...)
	return buf, nil
}

func (BinaryCodec) Decode(data []byte, env *message.Envelope) error {
	method, rest, err := readField(data, 2)
	if err != nil {
		return err
	}
	errText, rest, err := readField(rest, 2)
	if err != nil {
		return err
	}
	payload, rest, err := readField(rest, 4)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("codec: %d trailing bytes after binary envelope", len(rest))
	}

	env.Method = string(method)
	env.Error = string(errText)
	env.Payload = nil
	if len(payload) > 0 {
		env.Payload = append([]byte(nil), payload...)
	}
	return nil
}

func (BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// readField splits a prefixWidth-byte length prefix and its value off data.
func readField(data []byte, prefixWidth int) (field, rest []byte, err error) {
	if len(data) < prefixWidth {
		return nil, nil, errTruncated
	}
	var n int
	if prefixWidth == 2 {
		n = int(binary.BigEndian.Uint16(data))
	} else {
		n = int(binary.BigEndian.Uint32(data))
	}
	data = data[prefixWidth:]
	if n < 0 || len(data) < n {
		return nil, nil, errTruncated
	}
	return data[:n], data[n:], nil
}
