package stream

import (
	"errors"
	"fmt"
)

// Outcome is the three-valued session status handed to reporting layers.
type Outcome string

const (
	OutcomePassed     Outcome = "PASSED"
	OutcomeFailed     Outcome = "FAILED"
	OutcomeIncomplete Outcome = "INCOMPLETE"
)

// ExitCode maps an outcome to a process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomePassed:
		return 0
	case OutcomeIncomplete:
		return 2
	default:
		return 1
	}
}

// Session phases used to label transport failures.
const (
	PhaseConnect   = "connect"
	PhaseHandshake = "handshake"
	PhaseUpload    = "upload"
	PhaseReceive   = "receive"
)

var (
	// ErrHandshakeTimeout means no SERVER_READY arrived in time. Sessions
	// continue streaming after it.
	ErrHandshakeTimeout = errors.New("handshake acknowledgment timed out")
	// ErrEmptyResult marks a clean run that produced no transcript.
	ErrEmptyResult = errors.New("session completed with an empty transcript")
	// ErrReceiveTimeout is returned by Conn.Receive when the bounded wait
	// elapses. The connection remains usable.
	ErrReceiveTimeout = errors.New("receive wait timed out")
	// ErrConnClosed is returned once the connection can no longer deliver
	// messages.
	ErrConnClosed = errors.New("connection closed")
	// ErrServerDisconnect is the server asking the client to go away before
	// the session was established.
	ErrServerDisconnect = errors.New("server sent DISCONNECT")
)

// TransportError is a fatal connection-level failure. It aborts both
// directions of the session.
type TransportError struct {
	Phase string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Phase, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or unrecognised inbound message. The
// aggregator logs and skips these.
type ProtocolError struct {
	Raw []byte
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
