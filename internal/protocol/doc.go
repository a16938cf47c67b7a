// Package protocol defines the message model shared by the wsecho transport,
// server and client.
//
// # Messages
//
// A Message is a tagged value: its Kind says whether it is text, binary,
// close, ping or pong, and the Kind values are the RFC 6455 opcodes.
// Code that handles messages switches on Kind rather than inspecting types:
//
//	switch msg.Kind {
//	case protocol.KindText, protocol.KindBinary:
//	    reply := protocol.Transform(msg)
//	case protocol.KindClose:
//	    // peer is closing
//	default:
//	    // control frames
//	}
//
// # Transform
//
// Transform is the echo rule: text is reversed by code point, binary is
// returned unchanged. It is pure and safe to call from any goroutine.
//
// # Errors
//
// The error types describe how far a failure reaches:
//   - BindError: the listener could not be created; the process exits
//   - HandshakeError: the upgrade failed; only that connection is dropped
//   - TransportError: receive or send failed; only that connection is dropped
//
// TransportError carries a Cause. Oversized and malformed messages are
// protocol violations and are reported separately from network failures,
// although both end the connection the same way.
package protocol
