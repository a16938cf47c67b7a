// Package transport turns raw stream connections into WebSocket message
// channels.
//
// Framing and the handshake wire format come from gorilla/websocket. This
// package adds the pieces the echo server needs around it:
//
//   - Upgrade runs the server handshake on a net.Conn obtained from a plain
//     net.Listener, so each connection upgrades on its own goroutine
//   - Channel exposes Receive/Send/SendClose over the upgraded connection,
//     with read limits, deadlines and UTF-8 validation of text messages
//   - errors are reported as protocol.HandshakeError or
//     protocol.TransportError with a classified Cause
//
// # Halves
//
// Split returns a ReadHalf and a WriteHalf sharing one connection. A close
// frame can be written from one goroutine while another is blocked in
// Receive. Closing either half closes the connection for both.
//
// # Close Handling
//
// A close frame from the peer is returned by Receive as a KindClose message;
// the channel does not answer it on its own. The owner acknowledges with
// SendClose. After this side sends a close frame, Receive waits at most
// CloseGracePeriod for the peer's answer.
//
// Pings from the peer are answered with pongs automatically and are never
// returned by Receive.
package transport
