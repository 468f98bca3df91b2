package session

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/scriptrun/protocol"
)

var (
	// ErrMalformedRequest is returned by Submit for input that is not a JSON
	// object. The request never reaches the worker.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrNotReady is returned for requests other than initialize before
	// the session is initialized.
	ErrNotReady = errors.New("session not initialized")
	// ErrClosed is returned once the session is closing or closed.
	ErrClosed = errors.New("session closed")
	// ErrDuplicateID is returned when a request reuses an outstanding id.
	ErrDuplicateID = errors.New("request id already outstanding")
	// ErrNotStarted is returned when the worker has not been launched.
	ErrNotStarted = errors.New("session not started")
)

// WorkerExitError releases waiters whose response will never arrive.
type WorkerExitError struct {
	Code int
}

func (e *WorkerExitError) Error() string {
	return fmt.Sprintf("worker exited with code %d", e.Code)
}

// RPCError is a worker error response to a Call.
type RPCError struct {
	Method string
	Err    *protocol.Error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}
