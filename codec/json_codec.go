package codec

import (
	"encoding/json"

	"session-gateway/message"
)

// JSONCodec is human-readable and easy to inspect with tcpdump; it is the default.
type JSONCodec struct{}

func (JSONCodec) Encode(env *message.Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (JSONCodec) Decode(data []byte, env *message.Envelope) error {
	return json.Unmarshal(data, env)
}

func (JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
