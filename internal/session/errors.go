package session

import (
	"errors"
	"fmt"

	"github.com/bhandras/delight-acp/internal/permission"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCancelled is returned when prompting a disposed session.
	ErrSessionCancelled = errors.New("session cancelled")
	// ErrSessionBusy is returned when a turn is already in flight.
	ErrSessionBusy = errors.New("session busy")
	// ErrInvalidMode is returned for an unknown permission mode id.
	ErrInvalidMode = permission.ErrInvalidMode
	// ErrAuthRequired signals that the upstream needs the user to log in
	// again.
	ErrAuthRequired = errors.New("authentication required")
	// ErrUpstreamExited is returned when the upstream stops mid-turn.
	ErrUpstreamExited = errors.New("upstream exited")
)

// ProtocolViolationError reports an upstream event the loop does not
// recognise. It always aborts the turn.
type ProtocolViolationError struct {
	// Event names the offending event.
	Event string
	// Raw is the undecoded event, when available.
	Raw []byte
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: unexpected upstream event %q", e.Event)
}

// UpstreamExecutionError reports a turn the upstream ended with a hard
// failure.
type UpstreamExecutionError struct {
	Subtype string
	Detail  string
}

func (e *UpstreamExecutionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("upstream execution error (%s)", e.Subtype)
	}
	return fmt.Sprintf("upstream execution error (%s): %s", e.Subtype, e.Detail)
}
