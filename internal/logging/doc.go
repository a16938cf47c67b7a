// Package logging provides structured logging for wsecho.
//
// This package wraps a process-wide zap logger with convenience functions for
// the logging patterns used by the server and client. The logger is
// initialized once at startup and never torn down; zap handles concurrent
// writes, so sessions log without any coordination.
//
// # Log Levels
//
//   - Debug: handshake request details, per-message dumps, ping/pong
//   - Info: listener start, connection events, session summaries
//   - Warn: rejected connections, failed close acknowledgements
//   - Error: handshake failures, transport failures, send failures
//
// The level is held in a zap.AtomicLevel, so SetLevel changes verbosity of
// the running logger (the server uses this when its config file changes).
//
// # Structured Logging
//
//	logging.Info("Session closed",
//	    zap.String("remote_addr", "192.168.1.100:51234"),
//	    zap.String("state", "closed"),
//	)
//
// Connection events:
//
//	logging.LogConnection(remoteAddr, "connection_accepted")
//	logging.LogConnection(remoteAddr, "websocket_upgraded")
//
// # Configuration
//
//	if err := logging.Initialize("debug", logging.FormatConsole); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// With an empty level and no WSECHO_LOG_LEVEL in the environment the logger
// is a no-op, which keeps client commands quiet.
package logging
