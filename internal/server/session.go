package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/jpillora/sizestr"
	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/metrics"
	"github.com/muurk/wsecho/internal/protocol"
	"github.com/muurk/wsecho/internal/transport"
)

// State is the lifecycle state of a session
type State int32

const (
	StateHandshaking State = iota
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

// String returns the state name used in log fields
func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further messages can be processed in s
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// MessageChannel is the upgraded connection a session owns.
// *transport.Channel implements it.
type MessageChannel interface {
	Receive() (protocol.Message, error)
	Send(msg protocol.Message) error
	SendClose(code int, text string) error
	Close() error
	RemoteAddr() string
}

// UpgradeFunc turns a raw connection into a message channel
type UpgradeFunc func(raw net.Conn) (MessageChannel, error)

// TransformFunc computes the reply for one inbound data message
type TransformFunc func(msg protocol.Message) protocol.Message

// upgradeWith returns an UpgradeFunc running the WebSocket handshake with opts
func upgradeWith(opts transport.Options) UpgradeFunc {
	return func(raw net.Conn) (MessageChannel, error) {
		ch, err := transport.Upgrade(raw, opts)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// Session runs one connection from handshake to close.
//
// All message I/O happens on the goroutine calling Run. The only other
// goroutine touching the channel is the cancellation watcher, which may send
// a close frame and, after the grace period, close the channel.
type Session struct {
	id         uint64
	raw        net.Conn
	remoteAddr string

	upgrade    UpgradeFunc
	transform  TransformFunc
	metrics    *metrics.Collector
	closeGrace time.Duration

	state atomic.Int32

	// Owned by the Run goroutine
	started  time.Time
	messages int64
	bytesIn  int64
	bytesOut int64
}

// NewSession creates a session for raw in the Handshaking state. m may be nil.
func NewSession(id uint64, raw net.Conn, upgrade UpgradeFunc, transform TransformFunc, m *metrics.Collector) *Session {
	return &Session{
		id:         id,
		raw:        raw,
		remoteAddr: transport.PeerAddr(raw),
		upgrade:    upgrade,
		transform:  transform,
		metrics:    m,
		closeGrace: transport.CloseGracePeriod,
	}
}

// ID returns the session id
func (s *Session) ID() uint64 {
	return s.id
}

// State returns the current lifecycle state. Safe to call from any goroutine.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	logging.Debug("Session state change",
		zap.Uint64("session_id", s.id),
		zap.String("remote_addr", s.remoteAddr),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}

// Run performs the handshake and then echoes messages until the peer closes,
// an error occurs, or ctx is cancelled. The connection is always released
// before Run returns.
//
// The returned error is nil when the session reached Closed, and the
// handshake or transport error when it reached Failed. Errors never affect
// anything beyond this session.
func (s *Session) Run(ctx context.Context) error {
	s.started = time.Now()
	defer s.logSummary()

	ch, err := s.upgrade(s.raw)
	if err != nil {
		_ = s.raw.Close()
		s.setState(StateFailed)
		s.metrics.HandshakeFailed()
		s.metrics.SessionFailed()
		s.logHandshakeError(err)
		return err
	}
	defer func() { _ = ch.Close() }()

	s.setState(StateOpen)
	logging.LogConnection(s.remoteAddr, "session_open", zap.Uint64("session_id", s.id))

	stop := s.watch(ctx, ch)
	defer stop()

	if err := s.loop(ch); err != nil {
		s.setState(StateFailed)
		s.metrics.SessionFailed()
		return err
	}

	s.setState(StateClosed)
	s.metrics.SessionClosed()
	return nil
}

// loop is the Open state. It returns nil after a close handshake and the
// connection-fatal error otherwise.
func (s *Session) loop(ch MessageChannel) error {
	for {
		msg, err := ch.Receive()
		if err != nil {
			s.logTransportError("receive", err)
			return err
		}

		switch msg.Kind {
		case protocol.KindText, protocol.KindBinary:
			s.messages++
			s.bytesIn += int64(msg.Len())
			s.metrics.MessageReceived(msg.Len())

			reply := s.transform(msg)
			if err := ch.Send(reply); err != nil {
				s.logTransportError("send", err)
				return err
			}

			s.bytesOut += int64(reply.Len())
			s.metrics.MessageSent(reply.Len())

		case protocol.KindClose:
			s.setState(StateClosing)
			s.acknowledgeClose(ch, msg)
			return nil

		default:
			logging.Debug("Ignoring control message",
				zap.Uint64("session_id", s.id),
				zap.String("remote_addr", s.remoteAddr),
				zap.String("kind", msg.Kind.String()),
			)
		}
	}
}

// acknowledgeClose echoes the peer's close code. Failure is logged only.
func (s *Session) acknowledgeClose(ch MessageChannel, msg protocol.Message) {
	logging.LogConnection(s.remoteAddr, "peer_close",
		zap.Uint64("session_id", s.id),
		zap.Int("code", msg.CloseCode),
		zap.String("reason", msg.CloseText),
	)

	err := ch.SendClose(msg.CloseCode, "")
	if err == nil || errors.Is(err, protocol.ErrCloseSent) {
		return
	}
	logging.Warn("Failed to acknowledge close",
		zap.Uint64("session_id", s.id),
		zap.String("remote_addr", s.remoteAddr),
		zap.Error(err),
	)
}

// watch sends close 1001 when ctx is cancelled and force-closes the channel
// if the loop has not finished within the grace period. The returned stop
// function must be called once the loop is done.
func (s *Session) watch(ctx context.Context, ch MessageChannel) (stop func()) {
	done := make(chan struct{})

	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}

		logging.Debug("Session cancelled, sending going away",
			zap.Uint64("session_id", s.id),
			zap.String("remote_addr", s.remoteAddr),
		)
		if err := ch.SendClose(protocol.CloseGoingAway, "server shutting down"); err != nil && !errors.Is(err, protocol.ErrCloseSent) {
			logging.Debug("Failed to send going away",
				zap.Uint64("session_id", s.id),
				zap.Error(err),
			)
		}

		timer := time.NewTimer(s.closeGrace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			_ = ch.Close()
		}
	}()

	return func() { close(done) }
}

func (s *Session) logHandshakeError(err error) {
	fields := []zap.Field{
		zap.Uint64("session_id", s.id),
		zap.String("remote_addr", s.remoteAddr),
		zap.Error(err),
	}
	var he *protocol.HandshakeError
	if errors.As(err, &he) {
		fields = append(fields, zap.String("reason", he.Reason))
	}
	logging.Error("WebSocket handshake failed", fields...)
}

func (s *Session) logTransportError(op string, err error) {
	fields := []zap.Field{
		zap.Uint64("session_id", s.id),
		zap.String("remote_addr", s.remoteAddr),
		zap.String("op", op),
		zap.Error(err),
	}
	if cause, ok := protocol.CauseOf(err); ok {
		s.metrics.TransportError(cause)
		fields = append(fields,
			zap.String("cause", cause.String()),
			zap.Bool("protocol_violation", protocol.IsProtocolViolation(err)),
		)
	}

	if op == "send" {
		logging.Error("Failed to send reply", fields...)
		return
	}
	logging.Error("Transport error", fields...)
}

func (s *Session) logSummary() {
	logging.LogConnection(s.remoteAddr, "session_end",
		zap.Uint64("session_id", s.id),
		zap.String("state", s.State().String()),
		zap.Int64("messages", s.messages),
		zap.String("received", sizestr.ToString(s.bytesIn)),
		zap.String("sent", sizestr.ToString(s.bytesOut)),
		zap.Duration("duration", time.Since(s.started)),
	)
}
