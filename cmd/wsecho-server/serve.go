package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/config"
	"github.com/muurk/wsecho/internal/discovery"
	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/metrics"
	"github.com/muurk/wsecho/internal/protocol"
	"github.com/muurk/wsecho/internal/server"
	"github.com/muurk/wsecho/internal/status"
)

// serverFlags holds the command line overrides
type serverFlags struct {
	configPath string

	listen         string
	logLevel       string
	logFormat      string
	maxMessageSize int64
	maxSessions    int

	readTimeout      time.Duration
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	shutdownTimeout  time.Duration

	statusAddr   string
	mdns         bool
	mdnsInstance string
}

func (f *serverFlags) register(cmd *cobra.Command) {
	defaults := config.Default()

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "Path to config file (default: user config dir)")
	fs.StringVar(&f.listen, "listen", defaults.Listen, "Address to listen on (host:port)")
	fs.StringVar(&f.logLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", defaults.LogFormat, "Log format (console, json)")
	fs.Int64Var(&f.maxMessageSize, "max-message-size", defaults.MaxMessageSize, "Largest accepted message in bytes (0 = unlimited)")
	fs.IntVar(&f.maxSessions, "max-sessions", defaults.MaxSessions, "Concurrent session limit (0 = unlimited)")
	fs.DurationVar(&f.readTimeout, "read-timeout", defaults.ReadTimeout.Std(), "Idle time allowed between client messages (0 = none)")
	fs.DurationVar(&f.writeTimeout, "write-timeout", defaults.WriteTimeout.Std(), "Time allowed to write a reply (0 = none)")
	fs.DurationVar(&f.handshakeTimeout, "handshake-timeout", defaults.HandshakeTimeout.Std(), "Time allowed for the upgrade handshake (0 = none)")
	fs.DurationVar(&f.pingInterval, "ping-interval", defaults.PingInterval.Std(), "Keepalive ping interval (0 = disabled)")
	fs.DurationVar(&f.shutdownTimeout, "shutdown-timeout", defaults.ShutdownTimeout.Std(), "Time allowed for sessions to drain on shutdown")
	fs.StringVar(&f.statusAddr, "status-addr", defaults.StatusAddr, "Address for the HTTP status endpoint (empty = disabled)")
	fs.BoolVar(&f.mdns, "mdns", defaults.MDNS.Enabled, "Advertise the server over mDNS")
	fs.StringVar(&f.mdnsInstance, "mdns-instance", defaults.MDNS.Instance, "mDNS instance name (default: hostname)")
}

// resolveConfig loads the config file and applies flags that were set
// explicitly, then the positional address. It returns the config and the
// path of the file it came from ("" when none exists).
func resolveConfig(cmd *cobra.Command, args []string, f *serverFlags) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)

	if f.configPath != "" {
		path = f.configPath
		cfg, err = config.Load(path)
		if err != nil {
			return nil, "", err
		}
	} else {
		cfg, path, err = config.LoadDefault()
		if err != nil {
			return nil, "", err
		}
		if _, statErr := os.Stat(path); statErr != nil {
			path = ""
		}
	}

	fs := cmd.Flags()
	if fs.Changed("listen") {
		cfg.Listen = f.listen
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if fs.Changed("max-message-size") {
		cfg.MaxMessageSize = f.maxMessageSize
	}
	if fs.Changed("max-sessions") {
		cfg.MaxSessions = f.maxSessions
	}
	if fs.Changed("read-timeout") {
		cfg.ReadTimeout = config.Duration(f.readTimeout)
	}
	if fs.Changed("write-timeout") {
		cfg.WriteTimeout = config.Duration(f.writeTimeout)
	}
	if fs.Changed("handshake-timeout") {
		cfg.HandshakeTimeout = config.Duration(f.handshakeTimeout)
	}
	if fs.Changed("ping-interval") {
		cfg.PingInterval = config.Duration(f.pingInterval)
	}
	if fs.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = config.Duration(f.shutdownTimeout)
	}
	if fs.Changed("status-addr") {
		cfg.StatusAddr = f.statusAddr
	}
	if fs.Changed("mdns") {
		cfg.MDNS.Enabled = f.mdns
	}
	if fs.Changed("mdns-instance") {
		cfg.MDNS.Instance = f.mdnsInstance
	}

	if len(args) > 0 {
		cfg.Listen = args[0]
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

func runServer(cmd *cobra.Command, args []string, f *serverFlags) error {
	cfg, path, err := resolveConfig(cmd, args, f)
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, path)
}

// serve runs the echo server and its optional companions until ctx ends.
func serve(ctx context.Context, cfg *config.Config, path string) error {
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logging.Error("Failed to bind", zap.String("addr", cfg.Listen), zap.Error(err))
		return &protocol.BindError{Addr: cfg.Listen, Err: err}
	}

	m := metrics.New()
	srv := server.New(cfg.ServerConfig(m))

	if cfg.StatusAddr != "" {
		statusSrv, err := status.Listen(cfg.StatusAddr, m)
		if err != nil {
			_ = listener.Close()
			logging.Error("Failed to bind status endpoint", zap.String("addr", cfg.StatusAddr), zap.Error(err))
			return &protocol.BindError{Addr: cfg.StatusAddr, Err: err}
		}
		go func() {
			if err := statusSrv.Serve(); err != nil {
				logging.Error("Status endpoint failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
			defer cancel()
			_ = statusSrv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.MDNS.Enabled {
		port := listener.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(cfg.MDNS.Instance, port, "/")
		if err != nil {
			logging.Warn("mDNS advertisement disabled", zap.Error(err))
		} else {
			defer adv.Shutdown()
		}
	}

	if path != "" {
		go func() {
			err := config.Watch(ctx, path, func(next *config.Config) {
				if next.LogLevel != "" {
					logging.SetLevel(next.LogLevel)
				}
				logging.Info("Applied config change",
					zap.String("log_level", logging.Level()),
					zap.String("note", "other settings take effect on restart"),
				)
			})
			if err != nil {
				logging.Warn("Config reload disabled", zap.Error(err))
			}
		}()
	}

	logging.Info("Starting wsecho server",
		zap.String("addr", listener.Addr().String()),
		zap.String("config", path),
	)

	err = srv.Serve(ctx, listener)
	if errors.Is(err, context.DeadlineExceeded) {
		logging.Warn("Shutdown timed out, remaining sessions were abandoned")
		return nil
	}
	if err != nil {
		return err
	}

	snap := m.Snapshot()
	logging.Info("Server stopped",
		zap.Int64("connections_total", snap.ConnectionsTotal),
		zap.Int64("messages_in", snap.MessagesIn),
	)
	return nil
}
