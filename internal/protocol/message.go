package protocol

import (
	"fmt"
	"unicode/utf8"
)

// Kind identifies the type of a WebSocket message.
// Values match the RFC 6455 opcodes so they can be handed to the
// transport without translation.
type Kind int

const (
	KindText   Kind = 0x1
	KindBinary Kind = 0x2
	KindClose  Kind = 0x8
	KindPing   Kind = 0x9
	KindPong   Kind = 0xA
)

// String returns a human-readable kind name
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindClose:
		return "close"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(0x%X)", int(k))
	}
}

// IsData reports whether the kind carries application data (text or binary).
func (k Kind) IsData() bool {
	return k == KindText || k == KindBinary
}

// IsControl reports whether the kind is a control frame (close, ping, pong).
func (k Kind) IsControl() bool {
	return k == KindClose || k == KindPing || k == KindPong
}

// Close status codes used by the server (RFC 6455 section 7.4.1)
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnsupportedData = 1003
	CloseNoStatus        = 1005
	CloseInvalidPayload  = 1007
	CloseMessageTooBig   = 1009
	CloseInternalError   = 1011
	CloseServiceRestart  = 1012
	CloseTryAgainLater   = 1013
)

// Message is a single WebSocket message.
//
// Messages are values: the payload is never modified after construction,
// and every transformation produces a new Message.
type Message struct {
	Kind    Kind
	Payload []byte

	// Set only for KindClose
	CloseCode int
	CloseText string
}

// NewText creates a text message
func NewText(s string) Message {
	return Message{Kind: KindText, Payload: []byte(s)}
}

// NewBinary creates a binary message. The payload is copied.
func NewBinary(b []byte) Message {
	p := make([]byte, len(b))
	copy(p, b)
	return Message{Kind: KindBinary, Payload: p}
}

// NewClose creates a close message with the given status code and reason
func NewClose(code int, text string) Message {
	return Message{Kind: KindClose, CloseCode: code, CloseText: text}
}

// Text returns the payload as a string
func (m Message) Text() string {
	return string(m.Payload)
}

// Len returns the payload length in bytes
func (m Message) Len() int {
	return len(m.Payload)
}

// ValidUTF8 reports whether a text message carries valid UTF-8.
// Non-text messages always report true.
func (m Message) ValidUTF8() bool {
	if m.Kind != KindText {
		return true
	}
	return utf8.Valid(m.Payload)
}

// String returns a debug representation of the message
func (m Message) String() string {
	if m.Kind == KindClose {
		return fmt.Sprintf("Message{Kind=close, Code=%d, Text=%q}", m.CloseCode, m.CloseText)
	}
	return fmt.Sprintf("Message{Kind=%s, Length=%d}", m.Kind, len(m.Payload))
}

// CloseCodeString returns a human-readable name for a close status code
func CloseCodeString(code int) string {
	switch code {
	case CloseNormal:
		return "normal"
	case CloseGoingAway:
		return "going_away"
	case CloseProtocolError:
		return "protocol_error"
	case CloseUnsupportedData:
		return "unsupported_data"
	case CloseNoStatus:
		return "no_status"
	case CloseInvalidPayload:
		return "invalid_payload"
	case CloseMessageTooBig:
		return "message_too_big"
	case CloseInternalError:
		return "internal_error"
	case CloseServiceRestart:
		return "service_restart"
	case CloseTryAgainLater:
		return "try_again_later"
	default:
		return fmt.Sprintf("code(%d)", code)
	}
}
