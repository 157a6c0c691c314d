package controller

import "fmt"

// FailureKind classifies session-level failures. Malformed stream messages
// are not represented here: they are dropped at the channel and never fail a
// session.
type FailureKind int

const (
	// InvalidInput: the submitted file failed the precondition on Start.
	InvalidInput FailureKind = iota
	// UploadError: transport or server failure during the upload exchange.
	UploadError
	// ProtocolViolation: the engine's response omitted required handshake
	// data. Not retryable without an engine-side fix.
	ProtocolViolation
	// ChannelLost: the push channel errored or closed before completion.
	ChannelLost
)

var failureNames = map[FailureKind]string{
	InvalidInput:      "invalid_input",
	UploadError:       "upload_error",
	ProtocolViolation: "protocol_violation",
	ChannelLost:       "channel_lost",
}

func (k FailureKind) String() string {
	if n, ok := failureNames[k]; ok {
		return n
	}
	return "unknown"
}

// SessionError is a session-level failure surfaced to the caller.
type SessionError struct {
	Kind FailureKind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
