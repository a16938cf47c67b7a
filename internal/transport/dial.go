package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/muurk/wsecho/internal/protocol"
)

// Dial opens a client-side channel to a WebSocket URL (ws:// or wss://).
// Handshake failures are returned as *protocol.HandshakeError.
func Dial(ctx context.Context, url string, opts Options) (*Channel, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   opts.ReadBufferSize,
		WriteBufferSize:  opts.WriteBufferSize,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, &protocol.HandshakeError{RemoteAddr: url, Reason: "dial", Err: err}
	}

	return newChannel(conn, PeerAddr(conn.UnderlyingConn()), opts), nil
}
