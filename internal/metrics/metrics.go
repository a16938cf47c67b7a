// Package metrics provides lock-free counters for the wsecho server.
//
// The counters are aggregates only: they never identify a connection, so the
// server keeps no per-session registry. All methods are safe for concurrent
// use, and a nil *Collector is a valid no-op receiver.
package metrics

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/muurk/wsecho/internal/protocol"
)

// Collector tracks runtime counters for one server.
type Collector struct {
	startTime time.Time

	connectionsActive   atomic.Int64
	connectionsTotal    atomic.Int64
	connectionsRejected atomic.Int64
	acceptErrors        atomic.Int64
	handshakeFailures   atomic.Int64

	sessionsClosed atomic.Int64
	sessionsFailed atomic.Int64

	messagesIn  atomic.Int64
	messagesOut atomic.Int64
	bytesIn     atomic.Int64
	bytesOut    atomic.Int64

	errIO        atomic.Int64
	errTimeout   atomic.Int64
	errOversized atomic.Int64
	errMalformed atomic.Int64
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ConnectionRejected records a connection turned away by the admission limit.
func (c *Collector) ConnectionRejected() {
	if c == nil {
		return
	}
	c.connectionsRejected.Add(1)
}

// AcceptError records a failed Accept call.
func (c *Collector) AcceptError() {
	if c == nil {
		return
	}
	c.acceptErrors.Add(1)
}

// HandshakeFailed records a failed upgrade.
func (c *Collector) HandshakeFailed() {
	if c == nil {
		return
	}
	c.handshakeFailures.Add(1)
}

// SessionClosed records a session that ended with a close handshake.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsClosed.Add(1)
}

// SessionFailed records a session that ended with an error.
func (c *Collector) SessionFailed() {
	if c == nil {
		return
	}
	c.sessionsFailed.Add(1)
}

// MessageReceived records one inbound data message of n bytes.
func (c *Collector) MessageReceived(n int) {
	if c == nil {
		return
	}
	c.messagesIn.Add(1)
	c.bytesIn.Add(int64(n))
}

// MessageSent records one outbound data message of n bytes.
func (c *Collector) MessageSent(n int) {
	if c == nil {
		return
	}
	c.messagesOut.Add(1)
	c.bytesOut.Add(int64(n))
}

// TransportError records a transport failure by cause.
func (c *Collector) TransportError(cause protocol.Cause) {
	if c == nil {
		return
	}
	switch cause {
	case protocol.CauseTimeout:
		c.errTimeout.Add(1)
	case protocol.CauseOversized:
		c.errOversized.Add(1)
	case protocol.CauseMalformed:
		c.errMalformed.Add(1)
	default:
		c.errIO.Add(1)
	}
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// TransportErrors groups transport failures by cause.
type TransportErrors struct {
	IO        int64 `json:"io"`
	Timeout   int64 `json:"timeout"`
	Oversized int64 `json:"oversized"`
	Malformed int64 `json:"malformed"`
}

// Snapshot is a point-in-time view of all counters.
type Snapshot struct {
	Uptime              string          `json:"uptime"`
	ConnectionsActive   int64           `json:"connections_active"`
	ConnectionsTotal    int64           `json:"connections_total"`
	ConnectionsRejected int64           `json:"connections_rejected"`
	AcceptErrors        int64           `json:"accept_errors"`
	HandshakeFailures   int64           `json:"handshake_failures"`
	SessionsClosed      int64           `json:"sessions_closed"`
	SessionsFailed      int64           `json:"sessions_failed"`
	MessagesIn          int64           `json:"messages_in"`
	MessagesOut         int64           `json:"messages_out"`
	BytesIn             int64           `json:"bytes_in"`
	BytesOut            int64           `json:"bytes_out"`
	TransportErrors     TransportErrors `json:"transport_errors"`
}

// Snapshot returns a copy of all current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Uptime:              time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive:   c.connectionsActive.Load(),
		ConnectionsTotal:    c.connectionsTotal.Load(),
		ConnectionsRejected: c.connectionsRejected.Load(),
		AcceptErrors:        c.acceptErrors.Load(),
		HandshakeFailures:   c.handshakeFailures.Load(),
		SessionsClosed:      c.sessionsClosed.Load(),
		SessionsFailed:      c.sessionsFailed.Load(),
		MessagesIn:          c.messagesIn.Load(),
		MessagesOut:         c.messagesOut.Load(),
		BytesIn:             c.bytesIn.Load(),
		BytesOut:            c.bytesOut.Load(),
		TransportErrors: TransportErrors{
			IO:        c.errIO.Load(),
			Timeout:   c.errTimeout.Load(),
			Oversized: c.errOversized.Load(),
			Malformed: c.errMalformed.Load(),
		},
	}
}

// JSON returns the snapshot as indented JSON.
func (c *Collector) JSON() []byte {
	data, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return data
}
