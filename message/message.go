// Package message defines the values exchanged with the gateway.
//
// SessionRequest and SessionResponse are the caller-facing shapes, shared by the
// HTTP API and the framed RPC transport. Envelope is the RPC "envelope" that
// carries a JSON-encoded SessionRequest (or SessionResponse) inside a protocol
// frame, the same way every call is wrapped regardless of codec.
package message

// Response status literals.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// MethodCreateSession is the only RPC method the gateway serves.
const MethodCreateSession = "Gateway.CreateSession"

// SessionRequest is one caller request. PlayerIDs order is significant: it is
// the order the identifiers are packed into the outbound frame.
type SessionRequest struct {
	Header           uint8    `json:"header"`
	ClientIdentifier uint64   `json:"client_identifier"`
	SessionID        uint32   `json:"session_id"`
	PlayerIDs        []string `json:"player_ids"`
}

// SessionResponse reports the outcome of one request.
//
//   - On success: Status is StatusSuccess, Response is the "[b0, b1, ...]" rendering of the sent frame.
//   - On failure: Status is StatusError, Response is a human-readable error.
type SessionResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

// Success builds a successful response.
func Success(rendered string) *SessionResponse {
	return &SessionResponse{Status: StatusSuccess, Response: rendered}
}

// Failure builds an error response.
func Failure(text string) *SessionResponse {
	return &SessionResponse{Status: StatusError, Response: text}
}

// OK reports whether the response carries a success status.
func (r *SessionResponse) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Envelope carries a single RPC request or response.
//
//   - On request:  Method is set, Payload holds the JSON-encoded SessionRequest, Error is empty.
//   - On response: Payload holds the JSON-encoded SessionResponse, Error is non-empty if the call failed.
type Envelope struct {
	Method  string `json:"method" cbor:"1,keyasint"`
	Error   string `json:"error,omitempty" cbor:"2,keyasint,omitempty"`
	Payload []byte `json:"payload,omitempty" cbor:"3,keyasint,omitempty"`
}
