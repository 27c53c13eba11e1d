// Package protocol implements the stream framing used by the gateway's RPC listener.
//
// Each frame is a fixed 14-byte header followed by bodyLen bytes of codec-encoded
// envelope. The reader consumes the header first, then exactly bodyLen bytes, so
// frames never bleed into each other on the TCP stream.
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ sgw  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
//
// Header integers are big-endian. The outbound UDP frame is a different,
// little-endian layout; see package frame.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Version    byte   = 0x01
	HeaderSize int    = 14
	MaxBodyLen uint32 = 1 << 20
)

// Magic identifies a gateway RPC stream ("sgw").
var Magic = [3]byte{0x73, 0x67, 0x77}

// MsgType distinguishes request, response and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0
	MsgTypeResponse  MsgType = 1
	MsgTypeHeartbeat MsgType = 2 // no body
)

func (t MsgType) valid() bool {
	return t <= MsgTypeHeartbeat
}

// Codec identifiers, mirrored by package codec.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
	CodecTypeCBOR   byte = 2
)

var (
	ErrBadMagic       = errors.New("protocol: bad magic")
	ErrVersion        = errors.New("protocol: unsupported version")
	ErrCodec          = errors.New("protocol: unsupported codec")
	ErrMsgType        = errors.New("protocol: unsupported message type")
	ErrBodyTooLarge   = errors.New("protocol: body too large")
	ErrLengthMismatch = errors.New("protocol: header length does not match body")
)

// Header is the fixed frame header.
type Header struct {
	CodecType byte
	MsgType   MsgType
	Seq       uint32 // echoed in the response so the client can match it
	BodyLen   uint32
}

// Encode writes header and body to w as a single buffer. Callers sharing w between
// goroutines must serialize calls.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) != h.BodyLen {
		return fmt.Errorf("%w: header=%d body=%d", ErrLengthMismatch, h.BodyLen, len(body))
	}
	if h.BodyLen > MaxBodyLen {
		return fmt.Errorf("%w: %d", ErrBodyTooLarge, h.BodyLen)
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(buf[0:3], Magic[:])
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)
	buf = append(buf, body...)

	_, err := w.Write(buf)
	return err
}

// Decode reads one complete frame from r and validates its header.
func Decode(r io.Reader) (*Header, []byte, error) {
	var hb [HeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return nil, nil, err
	}

	if [3]byte(hb[0:3]) != Magic {
		return nil, nil, fmt.Errorf("%w: %x", ErrBadMagic, hb[0:3])
	}
	if hb[3] != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrVersion, hb[3])
	}
	if hb[4] > CodecTypeCBOR {
		return nil, nil, fmt.Errorf("%w: %d", ErrCodec, hb[4])
	}
	mt := MsgType(hb[5])
	if !mt.valid() {
		return nil, nil, fmt.Errorf("%w: %d", ErrMsgType, hb[5])
	}

	h := &Header{
		CodecType: hb[4],
		MsgType:   mt,
		Seq:       binary.BigEndian.Uint32(hb[6:10]),
		BodyLen:   binary.BigEndian.Uint32(hb[10:14]),
	}
	if h.BodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("%w: %d", ErrBodyTooLarge, h.BodyLen)
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return h, body, nil
}
