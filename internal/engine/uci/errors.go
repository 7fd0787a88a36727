package uci

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidState   = errors.New("uci: operation not allowed in current state")
	ErrClosed         = errors.New("uci: session closed")
	ErrProcessExited  = errors.New("uci: engine process exited")
	ErrNoSearchLimits = errors.New("uci: no search limits specified")
	ErrNoMove         = errors.New("uci: engine reported no move")
)

// StartError means the engine could not be launched or did not complete the handshake.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start engine %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// TimeoutError means the engine did not answer within the allotted time.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine timeout: no %s after %s", e.Op, e.After)
}

// ProtocolError means an engine line could not be understood.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("engine protocol error: %q: %v", e.Line, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
