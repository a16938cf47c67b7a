package transport

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/protocol"
)

// Upgrade performs the WebSocket handshake on a freshly accepted connection
// and returns the message channel for it.
//
// The request is read directly from raw with http.ReadRequest, then handed
// to gorilla's Upgrader through a response writer bound to raw, so the
// upgrade runs on the caller's goroutine without an http.Server. Rejected
// requests get an HTTP error response.
//
// On failure the returned error is a *protocol.HandshakeError and the caller
// must close raw. No message-level I/O happens on a failed handshake.
func Upgrade(raw net.Conn, opts Options) (*Channel, error) {
	remoteAddr := PeerAddr(raw)

	if opts.HandshakeTimeout > 0 {
		if err := raw.SetDeadline(time.Now().Add(opts.HandshakeTimeout)); err != nil {
			return nil, &protocol.HandshakeError{RemoteAddr: remoteAddr, Reason: "deadline", Err: err}
		}
	}

	br := bufio.NewReader(raw)
	req, err := ReadHTTPRequest(br)
	if err != nil {
		return nil, &protocol.HandshakeError{RemoteAddr: remoteAddr, Reason: "read_request", Err: err}
	}

	LogHTTPRequestDetails(req, remoteAddr)

	upgrader := websocket.Upgrader{
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   opts.ReadBufferSize,
		WriteBufferSize:  opts.WriteBufferSize,
		// Browsers from any origin may use the echo service
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	w := newHandshakeWriter(raw, br, remoteAddr)
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return nil, &protocol.HandshakeError{RemoteAddr: remoteAddr, Reason: "upgrade", Err: err}
	}

	logging.LogConnection(remoteAddr, "websocket_upgraded")
	return newChannel(conn, remoteAddr, opts), nil
}

// Reject reads the pending upgrade request from raw (waiting at most
// timeout) and answers it with a plain HTTP error status. raw is closed on
// return.
func Reject(raw net.Conn, status int, timeout time.Duration) {
	remoteAddr := PeerAddr(raw)
	defer func() { _ = raw.Close() }()

	if timeout > 0 {
		_ = raw.SetDeadline(time.Now().Add(timeout))
	}

	br := bufio.NewReader(raw)
	if _, err := ReadHTTPRequest(br); err != nil {
		logging.Debug("Rejected connection sent no usable request",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}

	w := newHandshakeWriter(raw, br, remoteAddr)
	w.Header().Set("Retry-After", "1")
	http.Error(w, http.StatusText(status), status)
}

// PeerAddr returns the remote address of conn, or "unknown" for
// connections without one (socket pairs, pipes).
func PeerAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "unknown"
}

// ReadHTTPRequest reads an HTTP request from a buffered reader over a raw
// connection. The same reader must be used for everything read afterwards,
// since it may hold bytes beyond the request.
func ReadHTTPRequest(br *bufio.Reader) (*http.Request, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTTP request: %w", err)
	}
	return req, nil
}

// LogHTTPRequestDetails logs all details of an HTTP request
func LogHTTPRequestDetails(req *http.Request, remoteAddr string) {
	headers := make(map[string]string)
	for key, values := range req.Header {
		headers[key] = strings.Join(values, ", ")
	}

	logging.LogHTTPRequest(remoteAddr, req.Method, req.URL.Path, headers)

	logging.Debug("WebSocket upgrade request details",
		zap.String("remote_addr", remoteAddr),
		zap.String("host", req.Host),
		zap.String("origin", req.Header.Get("Origin")),
		zap.String("sec_websocket_key", req.Header.Get("Sec-WebSocket-Key")),
		zap.String("sec_websocket_version", req.Header.Get("Sec-WebSocket-Version")),
		zap.String("sec_websocket_protocol", req.Header.Get("Sec-WebSocket-Protocol")),
		zap.String("user_agent", req.Header.Get("User-Agent")),
	)
}

// handshakeWriter is the http.ResponseWriter handed to the Upgrader.
// Upgrades take the connection through Hijack; rejections are written as a
// complete HTTP/1.1 response with "Connection: close".
type handshakeWriter struct {
	conn        net.Conn
	rw          *bufio.ReadWriter
	header      http.Header
	remoteAddr  string
	wroteHeader bool
	hijacked    bool
}

func newHandshakeWriter(conn net.Conn, br *bufio.Reader, remoteAddr string) *handshakeWriter {
	return &handshakeWriter{
		conn:       conn,
		rw:         bufio.NewReadWriter(br, bufio.NewWriter(conn)),
		header:     make(http.Header),
		remoteAddr: remoteAddr,
	}
}

func (w *handshakeWriter) Header() http.Header {
	return w.header
}

func (w *handshakeWriter) WriteHeader(status int) {
	if w.wroteHeader || w.hijacked {
		return
	}
	w.wroteHeader = true

	w.header.Set("Connection", "close")
	_, _ = fmt.Fprintf(w.rw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	_ = w.header.Write(w.rw)
	_, _ = w.rw.WriteString("\r\n")
	if err := w.rw.Flush(); err != nil {
		logging.Debug("Failed to write handshake response",
			zap.String("remote_addr", w.remoteAddr),
			zap.Error(err),
		)
	}

	headers := make(map[string]string, len(w.header))
	for key := range w.header {
		headers[key] = w.header.Get(key)
	}
	logging.LogHTTPResponse(w.remoteAddr, status, headers)
}

func (w *handshakeWriter) Write(p []byte) (int, error) {
	if w.hijacked {
		return 0, http.ErrHijacked
	}
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.rw.Write(p)
	if err == nil {
		err = w.rw.Flush()
	}
	return n, err
}

// Hijack implements http.Hijacker
func (w *handshakeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.hijacked || w.wroteHeader {
		return nil, nil, http.ErrHijacked
	}
	w.hijacked = true
	return w.conn, w.rw, nil
}
