// Package status serves health, version and metrics over plain HTTP,
// separate from the WebSocket listener.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/jpillora/requestlog"
	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/metrics"
	"github.com/muurk/wsecho/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// Handler returns the status routes:
//
//	/health   "OK"
//	/version  version.Info as JSON
//	/stats    metrics snapshot as JSON
//
// Requests are logged with requestlog when the log level is debug.
func Handler(m *metrics.Collector) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK\n"))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, version.Get())
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, m.Snapshot())
	})

	h := http.Handler(mux)
	if logging.Level() == "debug" {
		h = requestlog.Wrap(h)
	}
	return h
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logging.Debug("Failed to write status response", zap.Error(err))
	}
}

// Server is the status HTTP server
type Server struct {
	http     *http.Server
	listener net.Listener
}

// Listen binds addr and returns a server ready to Serve.
func Listen(addr string, m *metrics.Collector) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		http: &http.Server{
			Handler:           Handler(m),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		listener: listener,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve handles requests until Shutdown. It returns nil after Shutdown.
func (s *Server) Serve() error {
	logging.Info("Status endpoint listening", zap.String("addr", s.listener.Addr().String()))
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
