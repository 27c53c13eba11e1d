package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin/binding"

	"session-gateway/message"
)

// Request decoding failures. HTTP answers errMalformedBody with 400 and
// errInvalidFields with 422; RPC reports either as an envelope error.
var (
	errMalformedBody = errors.New("malformed request body")
	errInvalidFields = errors.New("invalid request fields")
)

// createSessionBody uses pointers so that a missing field is told apart from zero.
type createSessionBody struct {
	Header           *uint8   `json:"header" binding:"required"`
	ClientIdentifier *uint64  `json:"client_identifier" binding:"required"`
	SessionID        *uint32  `json:"session_id" binding:"required"`
	PlayerIDs        []string `json:"player_ids" binding:"required"`
}

// decodeSessionRequest parses and validates a JSON create-session body. Both
// the HTTP handler and the RPC dispatcher go through it, so a request missing
// a field is rejected the same way on either transport.
func decodeSessionRequest(data []byte) (*message.SessionRequest, error) {
	var body createSessionBody
	if err := json.Unmarshal(data, &body); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", errInvalidFields, err)
		}
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if err := binding.Validator.ValidateStruct(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidFields, err)
	}
	return &message.SessionRequest{
		Header:           *body.Header,
		ClientIdentifier: *body.ClientIdentifier,
		SessionID:        *body.SessionID,
		PlayerIDs:        body.PlayerIDs,
	}, nil
}
