package session

import (
	"fmt"
	"time"
)

// ConnectionError reports that the connection could not reach the open state, or was not
// available when a frame had to be sent.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("failed to establish websocket connection after %d attempt(s): %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("websocket connection not established: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that the server did not answer within the allotted window.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	switch e.Op {
	case OpNewChat:
		return fmt.Sprintf("timeout: server did not respond with newChatCreated within %s", e.After)
	case OpStream:
		return fmt.Sprintf("server took too long to start the reply stream (%s)", e.After)
	default:
		return fmt.Sprintf("timeout: %s after %s", e.Op, e.After)
	}
}

// ServerError carries the message of an error frame sent by the backend.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

const (
	OpNewChat = "newChat"
	OpStream  = "fetchChatResponse"
)
