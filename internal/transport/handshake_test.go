package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prep/socketpair"

	"github.com/muurk/wsecho/internal/protocol"
)

const testKey = "dGhlIHNhbXBsZSBub25jZQ=="

// upgradeResult carries the outcome of a server-side Upgrade
type upgradeResult struct {
	ch  *Channel
	err error
}

// newPair connects a gorilla client to an Upgrade running over a socket pair
// and returns both ends once the handshake completes.
func newPair(t *testing.T, opts Options) (*Channel, *websocket.Conn) {
	t.Helper()

	srvConn, cliConn, err := socketpair.New("unix")
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}

	results := make(chan upgradeResult, 1)
	go func() {
		ch, err := Upgrade(srvConn, opts)
		results <- upgradeResult{ch, err}
	}()

	dialer := websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) {
			return cliConn, nil
		},
		HandshakeTimeout: 5 * time.Second,
	}
	client, _, err := dialer.Dial("ws://wsecho.test/", nil)
	if err != nil {
		_ = srvConn.Close()
		t.Fatalf("client dial failed: %v", err)
	}

	r := <-results
	if r.err != nil {
		_ = client.Close()
		t.Fatalf("Upgrade() failed: %v", r.err)
	}

	t.Cleanup(func() {
		_ = r.ch.Close()
		_ = client.Close()
	})
	return r.ch, client
}

func TestUpgradeRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name       string
		request    string
		wantStatus int
	}{
		{
			name: "missing upgrade header",
			request: "GET / HTTP/1.1\r\nHost: wsecho.test\r\nConnection: Upgrade\r\n" +
				"Sec-WebSocket-Version: 13\r\nSec-WebSocket-Key: " + testKey + "\r\n\r\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing connection header",
			request: "GET / HTTP/1.1\r\nHost: wsecho.test\r\nUpgrade: websocket\r\n" +
				"Sec-WebSocket-Version: 13\r\nSec-WebSocket-Key: " + testKey + "\r\n\r\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing key",
			request: "GET / HTTP/1.1\r\nHost: wsecho.test\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n" +
				"Sec-WebSocket-Version: 13\r\n\r\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unsupported version",
			request: "GET / HTTP/1.1\r\nHost: wsecho.test\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n" +
				"Sec-WebSocket-Version: 8\r\nSec-WebSocket-Key: " + testKey + "\r\n\r\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "wrong method",
			request: "POST / HTTP/1.1\r\nHost: wsecho.test\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n" +
				"Sec-WebSocket-Version: 13\r\nSec-WebSocket-Key: " + testKey + "\r\nContent-Length: 0\r\n\r\n",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "plain http request",
			request:    "GET /index.html HTTP/1.1\r\nHost: wsecho.test\r\n\r\n",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srvConn, cliConn, err := socketpair.New("unix")
			if err != nil {
				t.Fatalf("socketpair: %v", err)
			}
			defer cliConn.Close()

			results := make(chan upgradeResult, 1)
			go func() {
				ch, err := Upgrade(srvConn, Options{HandshakeTimeout: 5 * time.Second})
				_ = srvConn.Close()
				results <- upgradeResult{ch, err}
			}()

			if _, err := cliConn.Write([]byte(tt.request)); err != nil {
				t.Fatalf("write request: %v", err)
			}

			resp, err := http.ReadResponse(bufio.NewReader(cliConn), nil)
			if err != nil {
				t.Fatalf("read response: %v", err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			r := <-results
			if r.ch != nil {
				t.Error("Upgrade() returned a channel for a bad request")
			}
			var he *protocol.HandshakeError
			if !errors.As(r.err, &he) {
				t.Fatalf("Upgrade() error = %v, want *protocol.HandshakeError", r.err)
			}
			if he.Reason != "upgrade" {
				t.Errorf("Reason = %q, want %q", he.Reason, "upgrade")
			}
		})
	}
}

func TestUpgradeMalformedRequestLine(t *testing.T) {
	srvConn, cliConn, err := socketpair.New("unix")
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer srvConn.Close()

	go func() {
		_, _ = cliConn.Write([]byte("this is not http\r\n\r\n"))
		_ = cliConn.Close()
	}()

	_, err = Upgrade(srvConn, Options{HandshakeTimeout: 5 * time.Second})
	var he *protocol.HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("Upgrade() error = %v, want *protocol.HandshakeError", err)
	}
	if he.Reason != "read_request" {
		t.Errorf("Reason = %q, want %q", he.Reason, "read_request")
	}
}

func TestUpgradeHandshakeTimeout(t *testing.T) {
	srvConn, cliConn, err := socketpair.New("unix")
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer srvConn.Close()
	defer cliConn.Close()

	start := time.Now()
	_, err = Upgrade(srvConn, Options{HandshakeTimeout: 50 * time.Millisecond})
	if !protocol.IsHandshakeError(err) {
		t.Fatalf("Upgrade() error = %v, want handshake error", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Upgrade() took %v with a 50ms handshake timeout", elapsed)
	}
}

func TestUpgradeSuccess(t *testing.T) {
	ch, client := newPair(t, DefaultOptions())

	if ch.RemoteAddr() == "" {
		t.Error("RemoteAddr() should never be empty")
	}

	if err := client.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	msg, err := ch.Receive()
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if msg.Kind != protocol.KindText || msg.Text() != "hello" {
		t.Errorf("Receive() = %v, want text %q", msg, "hello")
	}
}

func TestReject(t *testing.T) {
	srvConn, cliConn, err := socketpair.New("unix")
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer cliConn.Close()

	go Reject(srvConn, http.StatusServiceUnavailable, 5*time.Second)

	request := "GET / HTTP/1.1\r\nHost: wsecho.test\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n" +
		"Sec-WebSocket-Version: 13\r\nSec-WebSocket-Key: " + testKey + "\r\n\r\n"
	if _, err := cliConn.Write([]byte(request)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(cliConn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("rejection should carry Retry-After")
	}
	if !strings.EqualFold(resp.Header.Get("Connection"), "close") {
		t.Errorf("Connection = %q, want close", resp.Header.Get("Connection"))
	}
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	results := make(chan upgradeResult, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			results <- upgradeResult{nil, err}
			return
		}
		ch, err := Upgrade(raw, DefaultOptions())
		results <- upgradeResult{ch, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, "ws://"+ln.Addr().String()+"/", DefaultOptions())
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer client.Close()

	r := <-results
	if r.err != nil {
		t.Fatalf("Upgrade() error: %v", r.err)
	}
	defer r.ch.Close()

	if err := client.Send(protocol.NewText("ping")); err != nil {
		t.Fatalf("client Send() error: %v", err)
	}
	msg, err := r.ch.Receive()
	if err != nil {
		t.Fatalf("server Receive() error: %v", err)
	}
	if msg.Text() != "ping" {
		t.Errorf("server received %q, want %q", msg.Text(), "ping")
	}
}

func TestDialNotWebSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := &http.Server{Handler: http.NotFoundHandler()}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = Dial(ctx, "ws://"+ln.Addr().String()+"/", DefaultOptions())
	var he *protocol.HandshakeError
	if !errors.As(err, &he) {
		t.Fatalf("Dial() error = %v, want *protocol.HandshakeError", err)
	}
	if !strings.Contains(he.Error(), "404") {
		t.Errorf("error %q should mention the HTTP status", he.Error())
	}
}

func TestPeerAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if got := PeerAddr(conn); got != ln.Addr().String() {
		t.Errorf("PeerAddr() = %q, want %q", got, ln.Addr().String())
	}
}
