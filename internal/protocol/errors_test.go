package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestTransportErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		cause         Cause
		wantViolation bool
	}{
		{name: "io", cause: CauseIO, wantViolation: false},
		{name: "timeout", cause: CauseTimeout, wantViolation: false},
		{name: "oversized", cause: CauseOversized, wantViolation: true},
		{name: "malformed", cause: CauseMalformed, wantViolation: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &TransportError{Op: "receive", RemoteAddr: "10.0.0.1:5000", Cause: tt.cause, Err: io.EOF}

			if got := err.IsProtocolViolation(); got != tt.wantViolation {
				t.Errorf("IsProtocolViolation() = %v, want %v", got, tt.wantViolation)
			}

			wrapped := fmt.Errorf("session: %w", err)
			if !IsTransportError(wrapped) {
				t.Error("IsTransportError(wrapped) = false, want true")
			}
			if got := IsProtocolViolation(wrapped); got != tt.wantViolation {
				t.Errorf("IsProtocolViolation(wrapped) = %v, want %v", got, tt.wantViolation)
			}
			cause, ok := CauseOf(wrapped)
			if !ok || cause != tt.cause {
				t.Errorf("CauseOf() = %v, %v; want %v, true", cause, ok, tt.cause)
			}
			if !errors.Is(wrapped, io.EOF) {
				t.Error("errors.Is(wrapped, io.EOF) = false, want true")
			}
			if !strings.Contains(err.Error(), tt.cause.String()) {
				t.Errorf("Error() = %q, should mention cause %q", err.Error(), tt.cause)
			}
		})
	}
}

func TestHandshakeError(t *testing.T) {
	inner := errors.New("missing Sec-WebSocket-Key")
	err := fmt.Errorf("upgrade: %w", &HandshakeError{RemoteAddr: "1.2.3.4:1", Reason: "upgrade", Err: inner})

	if !IsHandshakeError(err) {
		t.Error("IsHandshakeError() = false, want true")
	}
	if IsTransportError(err) {
		t.Error("IsTransportError() = true for a handshake error")
	}
	if IsProtocolViolation(err) {
		t.Error("IsProtocolViolation() = true for a handshake error")
	}
	if !errors.Is(err, inner) {
		t.Error("handshake error should unwrap to its cause")
	}
}

func TestBindError(t *testing.T) {
	inner := errors.New("address already in use")
	err := &BindError{Addr: "127.0.0.1:8080", Err: inner}

	if !strings.Contains(err.Error(), "127.0.0.1:8080") {
		t.Errorf("Error() = %q, should contain address", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("BindError should unwrap to its cause")
	}
	if _, ok := CauseOf(err); ok {
		t.Error("CauseOf(BindError) reported a transport cause")
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindText:   "text",
		KindBinary: "binary",
		KindClose:  "close",
		KindPing:   "ping",
		KindPong:   "pong",
		Kind(0x3):  "unknown(0x3)",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}

	if !KindText.IsData() || !KindBinary.IsData() || KindPing.IsData() {
		t.Error("IsData() misclassified a kind")
	}
	if !KindClose.IsControl() || KindText.IsControl() {
		t.Error("IsControl() misclassified a kind")
	}
}

func TestMessageValidUTF8(t *testing.T) {
	if !NewText("héllo").ValidUTF8() {
		t.Error("valid text reported invalid")
	}
	bad := Message{Kind: KindText, Payload: []byte{0xff, 0xfe}}
	if bad.ValidUTF8() {
		t.Error("invalid text reported valid")
	}
	if !NewBinary([]byte{0xff}).ValidUTF8() {
		t.Error("binary messages are never UTF-8 checked")
	}
}
