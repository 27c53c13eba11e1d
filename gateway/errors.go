package gateway

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest wraps strict-mode encoding rejections.
var ErrInvalidRequest = errors.New("invalid request")

// TransportInitError reports that no local UDP endpoint could be acquired.
// It fails the request it occurred on; the gateway keeps serving.
type TransportInitError struct {
	Err error
}

func (e *TransportInitError) Error() string {
	return fmt.Sprintf("acquire local endpoint: %v", e.Err)
}

func (e *TransportInitError) Unwrap() error { return e.Err }

// SendError reports a failed datagram write. The gateway turns it into an error
// response rather than a failed call.
type SendError struct {
	Dest string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("Failed to send message: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
