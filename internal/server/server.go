package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/metrics"
	"github.com/muurk/wsecho/internal/protocol"
	"github.com/muurk/wsecho/internal/transport"
)

const (
	// DefaultAddr is the bind address used when none is configured
	DefaultAddr = "127.0.0.1:8080"

	// DefaultShutdownTimeout bounds how long Shutdown waits for sessions
	DefaultShutdownTimeout = 10 * time.Second

	// rejectTimeout bounds reading the request of a rejected connection
	rejectTimeout = 5 * time.Second

	// Accept error pacing
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

// ErrServerClosed is returned by Serve after Shutdown
var ErrServerClosed = errors.New("server closed")

// Config holds the server configuration
type Config struct {
	Addr      string
	Transport transport.Options

	// MaxSessions caps concurrent sessions (0 = unlimited). Connections over
	// the cap are answered with HTTP 503.
	MaxSessions int

	ShutdownTimeout time.Duration

	// Metrics receives aggregate counters (optional)
	Metrics *metrics.Collector

	// Transform computes replies (nil = protocol.Transform)
	Transform TransformFunc
}

// DefaultConfig returns a Config with default address, limits and timeouts
func DefaultConfig() *Config {
	return &Config{
		Addr:            DefaultAddr,
		Transport:       transport.DefaultOptions(),
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Server accepts connections and runs one Session per connection.
//
// The server keeps no per-session state. Live sessions are only counted by a
// WaitGroup for draining, and reached through a shared context on shutdown.
type Server struct {
	config    *Config
	upgrade   UpgradeFunc
	transform TransformFunc
	metrics   *metrics.Collector

	mu       sync.Mutex
	listener net.Listener

	sessionCtx     context.Context
	cancelSessions context.CancelFunc

	wg      sync.WaitGroup
	slots   chan struct{}
	nextID  atomic.Uint64
	closing atomic.Bool
	done    chan struct{}
}

// New creates a new Server instance. A nil config uses DefaultConfig.
func New(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	transform := config.Transform
	if transform == nil {
		transform = protocol.Transform
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:         config,
		upgrade:        upgradeWith(config.Transport),
		transform:      transform,
		metrics:        config.Metrics,
		sessionCtx:     sessionCtx,
		cancelSessions: cancel,
		done:           make(chan struct{}),
	}
	if config.MaxSessions > 0 {
		s.slots = make(chan struct{}, config.MaxSessions)
	}
	return s
}

// ListenAndServe binds the configured address and serves until ctx is
// cancelled or Shutdown is called. A bind failure is returned as
// *protocol.BindError.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return &protocol.BindError{Addr: s.config.Addr, Err: err}
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled or Shutdown is
// called. Cancelling ctx performs a graceful shutdown bounded by
// Config.ShutdownTimeout before Serve returns.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = listener.Close()
		return ErrServerClosed
	}
	if s.listener != nil {
		s.mu.Unlock()
		return errors.New("server already serving")
	}
	s.listener = listener
	s.mu.Unlock()

	logging.Info("Server listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.Int64("max_message_size", s.config.Transport.MaxMessageSize),
		zap.Int("max_sessions", s.config.MaxSessions),
	)

	// The accept loop holds a WaitGroup slot so Shutdown cannot observe a
	// zero count while new sessions may still be added.
	s.wg.Add(1)
	errChan := make(chan error, 1)
	go func() {
		defer s.wg.Done()
		errChan <- s.acceptConnections(listener)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		err := s.Shutdown(shutdownCtx)
		<-errChan
		return err
	case err := <-errChan:
		return err
	}
}

// acceptConnections accepts connections and hands each to its own goroutine
func (s *Server) acceptConnections(listener net.Listener) error {
	b := &backoff.Backoff{Min: acceptBackoffMin, Max: acceptBackoffMax}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}

			s.metrics.AcceptError()
			d := b.Duration()
			logging.Error("Failed to accept connection",
				zap.Error(err),
				zap.Duration("retry_in", d),
			)

			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-s.done:
				timer.Stop()
			}
			continue
		}

		b.Reset()
		s.handleConnection(conn)
	}
}

// handleConnection starts a session for conn, or rejects it when the
// session limit is reached. It never blocks on the connection.
func (s *Server) handleConnection(conn net.Conn) {
	remoteAddr := transport.PeerAddr(conn)

	if !s.acquireSlot() {
		s.metrics.ConnectionRejected()
		logging.Warn("Session limit reached, rejecting connection",
			zap.String("remote_addr", remoteAddr),
			zap.Int("max_sessions", s.config.MaxSessions),
		)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			transport.Reject(conn, http.StatusServiceUnavailable, rejectTimeout)
		}()
		return
	}

	session := NewSession(s.nextID.Add(1), conn, s.upgrade, s.transform, s.metrics)
	s.metrics.ConnectionOpened()
	logging.LogConnection(remoteAddr, "connection_accepted", zap.Uint64("session_id", session.ID()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.metrics.ConnectionClosed()
		defer s.releaseSlot()
		_ = session.Run(s.sessionCtx)
	}()
}

func (s *Server) acquireSlot() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) releaseSlot() {
	if s.slots != nil {
		<-s.slots
	}
}

// Shutdown stops accepting connections, asks every session to close with
// "going away", and waits for them to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closing.CompareAndSwap(false, true) {
		logging.Info("Shutting down server...")
		close(s.done)

		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				logging.Error("Error closing listener", zap.Error(err))
			}
		}

		s.cancelSessions()
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		logging.Info("All sessions closed gracefully")
		logging.Sync()
		return nil
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, sessions still running",
			zap.Int64("active", s.metrics.ActiveConnections()),
		)
		logging.Sync()
		return ctx.Err()
	}
}

// Addr returns the listening address, or nil before Serve is called
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Metrics returns the collector the server reports to (may be nil)
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}
