// Package frame implements the fixed binary layout of the outbound session datagram.
//
// All integers are little-endian. Player identifiers occupy fixed 16-byte slots:
//
//	0   1                 9         13     15              31
//	┌───┬─────────────────┬─────────┬──────┬───────────────┬─────
//	│hdr│ client_id u64   │ sess u32│ n u16│ slot[0] 16B   │ ... slot[n-1]
//	└───┴─────────────────┴─────────┴──────┴───────────────┴─────
//
// A slot holds the identifier's UTF-8 bytes, zero-filled when shorter than 16
// bytes and cut to the first 16 bytes when longer. The count field is the
// low 16 bits of the identifier count.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"session-gateway/message"
)

const (
	HeaderLen  = 15 // 1 (header) + 8 (client id) + 4 (session id) + 2 (count)
	SlotLen    = 16
	MaxPlayers = math.MaxUint16

	offClientID = 1
	offSession  = 9
	offCount    = 13
)

var (
	ErrTooManyPlayers  = errors.New("frame: too many player ids")
	ErrPlayerIDTooLong = errors.New("frame: player id exceeds slot size")
	ErrShortFrame      = errors.New("frame: shorter than fixed header")
	ErrSlotAlignment   = errors.New("frame: trailing bytes do not fill whole slots")
	ErrCountMismatch   = errors.New("frame: player count does not match slot count")
)

// Len returns the encoded length of a frame carrying n identifiers.
func Len(n int) int {
	return HeaderLen + SlotLen*n
}

// Encode packs req into a newly allocated frame. It never fails: counts above
// MaxPlayers wrap and long identifiers are cut, see Validate for the strict check.
func Encode(req *message.SessionRequest) []byte {
	return AppendEncode(make([]byte, 0, Len(len(req.PlayerIDs))), req)
}

// AppendEncode appends the frame for req to dst and returns the extended slice.
func AppendEncode(dst []byte, req *message.SessionRequest) []byte {
	dst = append(dst, req.Header)
	dst = binary.LittleEndian.AppendUint64(dst, req.ClientIdentifier)
	dst = binary.LittleEndian.AppendUint32(dst, req.SessionID)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(req.PlayerIDs)))

	for _, id := range req.PlayerIDs {
		var slot [SlotLen]byte
		copy(slot[:], id)
		dst = append(dst, slot[:]...)
	}
	return dst
}

// Validate reports whether req can be encoded without losing data.
func Validate(req *message.SessionRequest) error {
	if n := len(req.PlayerIDs); n > MaxPlayers {
		return fmt.Errorf("%w: %d > %d", ErrTooManyPlayers, n, MaxPlayers)
	}
	for i, id := range req.PlayerIDs {
		if len(id) > SlotLen {
			return fmt.Errorf("%w: player_ids[%d] is %d bytes", ErrPlayerIDTooLong, i, len(id))
		}
	}
	return nil
}

// Frame is a decoded datagram.
type Frame struct {
	Header           uint8
	ClientIdentifier uint64
	SessionID        uint32
	PlayerCount      uint16
	Slots            [][SlotLen]byte
}

// Decode parses a datagram. The slot count comes from the datagram length;
// the 16-bit count field must agree with it modulo 2^16.
func Decode(b []byte) (*Frame, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}
	rest := len(b) - HeaderLen
	if rest%SlotLen != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSlotAlignment, rest)
	}

	f := &Frame{
		Header:           b[0],
		ClientIdentifier: binary.LittleEndian.Uint64(b[offClientID:offSession]),
		SessionID:        binary.LittleEndian.Uint32(b[offSession:offCount]),
		PlayerCount:      binary.LittleEndian.Uint16(b[offCount:HeaderLen]),
	}

	n := rest / SlotLen
	if uint16(n) != f.PlayerCount {
		return nil, fmt.Errorf("%w: count=%d slots=%d", ErrCountMismatch, f.PlayerCount, n)
	}

	f.Slots = make([][SlotLen]byte, n)
	for i := range f.Slots {
		start := HeaderLen + i*SlotLen
		copy(f.Slots[i][:], b[start:start+SlotLen])
	}
	return f, nil
}

// PlayerIDs returns the slot contents with the zero padding removed.
func (f *Frame) PlayerIDs() []string {
	ids := make([]string, len(f.Slots))
	for i := range f.Slots {
		ids[i] = strings.TrimRight(string(f.Slots[i][:]), "\x00")
	}
	return ids
}

// Render formats b as a decimal byte listing, e.g. "[1, 42, 0]".
func Render(b []byte) string {
	var sb strings.Builder
	sb.Grow(2 + len(b)*5)
	sb.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(int(v)))
	}
	sb.WriteByte(']')
	return sb.String()
}
