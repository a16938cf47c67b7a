package transport

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/protocol"
)

const (
	// DefaultMaxMessageSize is the largest inbound message accepted
	DefaultMaxMessageSize = 64 * 1024

	// DefaultWriteTimeout is the time allowed to write a message to the peer
	DefaultWriteTimeout = 10 * time.Second

	// DefaultReadTimeout is the time allowed between inbound messages
	DefaultReadTimeout = 60 * time.Second

	// DefaultHandshakeTimeout bounds the upgrade exchange
	DefaultHandshakeTimeout = 10 * time.Second

	// CloseGracePeriod is how long the read side waits for the peer's close
	// frame after this side has sent one.
	CloseGracePeriod = 2 * time.Second

	// controlWriteWait bounds writes of ping, pong and close frames
	controlWriteWait = time.Second
)

var errInvalidUTF8 = errors.New("text message is not valid UTF-8")

// Options configures a channel. Zero values disable the corresponding
// limit or timeout.
type Options struct {
	MaxMessageSize   int64
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// PingInterval enables keepalive pings from this side when non-zero
	PingInterval time.Duration

	// Buffer sizes for the underlying connection (0 = reuse handshake buffers)
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxMessageSize:   DefaultMaxMessageSize,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadTimeout:      DefaultReadTimeout,
		WriteTimeout:     DefaultWriteTimeout,
	}
}

// link is the connection state shared by both halves of a channel.
type link struct {
	conn       *websocket.Conn
	remoteAddr string
	opts       Options

	// writeMu serializes data frames; gorilla allows one writer at a time
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	closed    atomic.Bool
	readDone  atomic.Bool
	closeSent atomic.Bool

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

// Channel is the message-level view of an upgraded connection.
//
// A channel supports one reader at a time. Data writes are serialized, so
// Send may be called from several goroutines. SendClose writes a control
// frame and may be called concurrently with Receive and Send. Split exposes the two sides as separate handles; they share one
// connection, and closing either handle (or the channel) closes both.
type Channel struct {
	link *link
	rd   *ReadHalf
	wr   *WriteHalf
}

// ReadHalf is the receiving side of a channel
type ReadHalf struct {
	link *link
}

// WriteHalf is the sending side of a channel
type WriteHalf struct {
	link *link
}

func newChannel(conn *websocket.Conn, remoteAddr string, opts Options) *Channel {
	l := &link{
		conn:       conn,
		remoteAddr: remoteAddr,
		opts:       opts,
		done:       make(chan struct{}),
	}

	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}

	// Close frames are surfaced as messages; the session decides when to
	// acknowledge them.
	conn.SetCloseHandler(func(code int, text string) error {
		return nil
	})
	conn.SetPingHandler(l.handlePing)
	conn.SetPongHandler(l.handlePong)

	if opts.PingInterval > 0 {
		go l.keepalive(opts.PingInterval)
	}

	return &Channel{
		link: l,
		rd:   &ReadHalf{link: l},
		wr:   &WriteHalf{link: l},
	}
}

// Split returns the read and write handles of the channel.
func (c *Channel) Split() (*ReadHalf, *WriteHalf) {
	return c.rd, c.wr
}

// Receive blocks until the next message arrives. See ReadHalf.Receive.
func (c *Channel) Receive() (protocol.Message, error) {
	return c.rd.Receive()
}

// Send writes one data message. See WriteHalf.Send.
func (c *Channel) Send(msg protocol.Message) error {
	return c.wr.Send(msg)
}

// SendClose writes a close frame. See WriteHalf.SendClose.
func (c *Channel) SendClose(code int, text string) error {
	return c.wr.SendClose(code, text)
}

// Close closes the underlying connection. It is safe to call more than once.
func (c *Channel) Close() error {
	return c.link.close()
}

// Done returns a channel that is closed once the channel has been closed.
func (c *Channel) Done() <-chan struct{} {
	return c.link.done
}

// RemoteAddr returns the peer address
func (c *Channel) RemoteAddr() string {
	return c.link.remoteAddr
}

// BytesIn returns the payload bytes received so far
func (c *Channel) BytesIn() int64 {
	return c.link.bytesIn.Load()
}

// BytesOut returns the payload bytes sent so far
func (c *Channel) BytesOut() int64 {
	return c.link.bytesOut.Load()
}

// Receive blocks until a complete text or binary message is read, the peer
// sends a close frame, or an error occurs.
//
// A peer close frame is returned as a KindClose message with a nil error.
// After a close message or an error, every further call fails with
// protocol.ErrChannelClosed. Errors are *protocol.TransportError.
func (r *ReadHalf) Receive() (protocol.Message, error) {
	l := r.link
	if l.closed.Load() || l.readDone.Load() {
		return protocol.Message{}, l.transportError("receive", protocol.CauseIO, protocol.ErrChannelClosed)
	}

	if l.opts.ReadTimeout > 0 && !l.closeSent.Load() {
		_ = l.conn.SetReadDeadline(time.Now().Add(l.opts.ReadTimeout))
	}

	messageType, data, err := l.conn.ReadMessage()
	if err != nil {
		l.readDone.Store(true)

		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
			logging.Debug("Received close frame",
				zap.String("remote_addr", l.remoteAddr),
				zap.Int("code", ce.Code),
				zap.String("reason", ce.Text),
			)
			return protocol.NewClose(ce.Code, ce.Text), nil
		}

		if errors.Is(err, websocket.ErrReadLimit) {
			// gorilla has already sent close 1009
			l.closeSent.Store(true)
		}
		return protocol.Message{}, l.classify("receive", err)
	}

	msg := protocol.Message{Kind: protocol.Kind(messageType), Payload: data}
	if !msg.ValidUTF8() {
		l.readDone.Store(true)
		_ = l.sendClose(protocol.CloseInvalidPayload, "invalid UTF-8")
		return protocol.Message{}, l.transportError("receive", protocol.CauseMalformed, errInvalidUTF8)
	}

	l.bytesIn.Add(int64(len(data)))
	logging.LogWebSocketMessage(l.remoteAddr, "received", msg.Kind.String(), data)
	return msg, nil
}

// Close closes the whole channel, including the write half.
func (r *ReadHalf) Close() error {
	return r.link.close()
}

// Send writes one text or binary message, blocking until it is written or
// the write deadline expires. Concurrent calls are written one after
// another, never interleaved.
func (w *WriteHalf) Send(msg protocol.Message) error {
	l := w.link
	if !msg.Kind.IsData() {
		return l.transportError("send", protocol.CauseIO, protocol.ErrNotData)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.closed.Load() {
		return l.transportError("send", protocol.CauseIO, protocol.ErrChannelClosed)
	}
	if l.closeSent.Load() {
		return l.transportError("send", protocol.CauseIO, protocol.ErrCloseSent)
	}

	if l.opts.WriteTimeout > 0 {
		if err := l.conn.SetWriteDeadline(time.Now().Add(l.opts.WriteTimeout)); err != nil {
			return l.classify("send", err)
		}
	}

	if err := l.conn.WriteMessage(int(msg.Kind), msg.Payload); err != nil {
		return l.classify("send", err)
	}

	l.bytesOut.Add(int64(len(msg.Payload)))
	logging.LogWebSocketMessage(l.remoteAddr, "sent", msg.Kind.String(), msg.Payload)
	return nil
}

// SendClose writes a close frame with the given code and reason. Only the
// first call on a channel writes anything; later calls return
// protocol.ErrCloseSent. Once the frame is written the read side waits at
// most CloseGracePeriod for the peer's close frame.
func (w *WriteHalf) SendClose(code int, text string) error {
	return w.link.sendClose(code, text)
}

// Close closes the whole channel, including the read half.
func (w *WriteHalf) Close() error {
	return w.link.close()
}

func (l *link) sendClose(code int, text string) error {
	if l.closed.Load() {
		return l.transportError("send", protocol.CauseIO, protocol.ErrChannelClosed)
	}
	if !l.closeSent.CompareAndSwap(false, true) {
		return protocol.ErrCloseSent
	}

	wait := l.opts.WriteTimeout
	if wait <= 0 || wait > controlWriteWait {
		wait = controlWriteWait
	}
	err := l.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wait))

	_ = l.conn.SetReadDeadline(time.Now().Add(CloseGracePeriod))

	if err != nil {
		return l.classify("send", err)
	}

	logging.Debug("Sent close frame",
		zap.String("remote_addr", l.remoteAddr),
		zap.Int("code", code),
		zap.String("reason", text),
	)
	return nil
}

func (l *link) close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}

func (l *link) handlePing(appData string) error {
	logging.Debug("Received ping, sending pong",
		zap.String("remote_addr", l.remoteAddr),
	)
	l.extendReadDeadline()

	err := l.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
	if err == websocket.ErrCloseSent {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return err
}

func (l *link) handlePong(string) error {
	logging.Debug("Received pong",
		zap.String("remote_addr", l.remoteAddr),
	)
	l.extendReadDeadline()
	return nil
}

func (l *link) extendReadDeadline() {
	if l.opts.ReadTimeout > 0 && !l.closeSent.Load() {
		_ = l.conn.SetReadDeadline(time.Now().Add(l.opts.ReadTimeout))
	}
}

// keepalive sends pings until the channel closes or a ping fails.
func (l *link) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if l.closeSent.Load() {
				return
			}
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				logging.Debug("Keepalive ping failed",
					zap.String("remote_addr", l.remoteAddr),
					zap.Error(err),
				)
				return
			}
		}
	}
}

func (l *link) transportError(op string, cause protocol.Cause, err error) *protocol.TransportError {
	return &protocol.TransportError{Op: op, RemoteAddr: l.remoteAddr, Cause: cause, Err: err}
}

func (l *link) classify(op string, err error) *protocol.TransportError {
	return l.transportError(op, Classify(err), err)
}

// Classify maps an error from the WebSocket library or the network to a
// transport error cause.
func Classify(err error) protocol.Cause {
	var netErr net.Error
	var closeErr *websocket.CloseError

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		return protocol.CauseOversized
	case errors.As(err, &netErr) && netErr.Timeout():
		return protocol.CauseTimeout
	case errors.As(err, &closeErr):
		return protocol.CauseIO
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return protocol.CauseIO
	case errors.Is(err, websocket.ErrCloseSent):
		return protocol.CauseIO
	case errors.As(err, &netErr):
		return protocol.CauseIO
	case strings.HasPrefix(err.Error(), "websocket: "):
		// gorilla reports frame-level violations as plain errors
		return protocol.CauseMalformed
	default:
		return protocol.CauseIO
	}
}
