package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRequestWireNames(t *testing.T) {
	raw := `{"header":1,"client_identifier":42,"session_id":7,"player_ids":["ab","cd"]}`

	var req SessionRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.Equal(t, uint8(1), req.Header)
	assert.Equal(t, uint64(42), req.ClientIdentifier)
	assert.Equal(t, uint32(7), req.SessionID)
	assert.Equal(t, []string{"ab", "cd"}, req.PlayerIDs)
}

func TestSessionRequestRejectsOutOfRangeHeader(t *testing.T) {
	var req SessionRequest
	err := json.Unmarshal([]byte(`{"header":256}`), &req)
	require.Error(t, err)
}

func TestClientIdentifierKeepsFull64Bits(t *testing.T) {
	var req SessionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"client_identifier":18446744073709551615}`), &req))
	assert.Equal(t, uint64(18446744073709551615), req.ClientIdentifier)
}

func TestResponseHelpers(t *testing.T) {
	ok := Success("[1, 2]")
	assert.True(t, ok.OK())

	data, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","response":"[1, 2]"}`, string(data))

	bad := Failure("Failed to send message: boom")
	assert.False(t, bad.OK())
	assert.Equal(t, StatusError, bad.Status)

	var nilResp *SessionResponse
	assert.False(t, nilResp.OK())
}
