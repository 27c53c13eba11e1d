package codec

import (
	"github.com/fxamacker/cbor/v2"

	"session-gateway/message"
)

// encMode uses Core Deterministic Encoding, so identical envelopes always
// produce identical bytes.
var encMode cbor.EncMode

// decMode rejects maps with repeated keys. Body size is already capped by
// protocol.MaxBodyLen before a frame reaches the codec.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORCodec is the compact option for non-Go clients that already speak CBOR.
type CBORCodec struct{}

func (CBORCodec) Encode(env *message.Envelope) ([]byte, error) {
	return encMode.Marshal(env)
}

func (CBORCodec) Decode(data []byte, env *message.Envelope) error {
	return decMode.Unmarshal(data, env)
}

func (CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
