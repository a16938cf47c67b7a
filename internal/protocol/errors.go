package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrChannelClosed is returned by channel operations after the channel
	// (or either of its halves) has been closed.
	ErrChannelClosed = errors.New("channel closed")

	// ErrCloseSent is returned when a close frame was already sent on a channel.
	ErrCloseSent = errors.New("close frame already sent")

	// ErrNotData is returned when Send is called with a non-data message.
	ErrNotData = errors.New("message is not text or binary")
)

// BindError is returned when the listening socket cannot be created.
// It is fatal to the whole process.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// HandshakeError is returned when the WebSocket upgrade fails.
// It ends only the connection it occurred on.
type HandshakeError struct {
	RemoteAddr string
	Reason     string // short machine-friendly reason, e.g. "read_request", "upgrade"
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake %s (%s): %v", e.RemoteAddr, e.Reason, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Cause classifies a TransportError
type Cause int

const (
	// CauseIO is a read or write failure on the underlying connection,
	// including the peer disconnecting without a close frame.
	CauseIO Cause = iota
	// CauseTimeout is an expired read or write deadline.
	CauseTimeout
	// CauseOversized is a message larger than the configured limit.
	CauseOversized
	// CauseMalformed is a framing or payload violation of the protocol.
	CauseMalformed
)

// String returns the cause name used in log fields
func (c Cause) String() string {
	switch c {
	case CauseIO:
		return "io"
	case CauseTimeout:
		return "timeout"
	case CauseOversized:
		return "oversized"
	case CauseMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

// TransportError is returned by channel receive and send operations.
// It ends only the connection it occurred on.
type TransportError struct {
	Op         string // "receive" or "send"
	RemoteAddr string
	Cause      Cause
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.RemoteAddr, e.Cause, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsProtocolViolation reports whether the error was caused by the peer
// breaking the protocol rather than by the network.
func (e *TransportError) IsProtocolViolation() bool {
	return e.Cause == CauseOversized || e.Cause == CauseMalformed
}

// IsHandshakeError reports whether err is or wraps a *HandshakeError.
func IsHandshakeError(err error) bool {
	var he *HandshakeError
	return errors.As(err, &he)
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocolViolation reports whether err is a TransportError caused by an
// oversized or malformed message.
func IsProtocolViolation(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.IsProtocolViolation()
	}
	return false
}

// CauseOf returns the cause of a TransportError and whether err was one.
func CauseOf(err error) (Cause, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Cause, true
	}
	return CauseIO, false
}
