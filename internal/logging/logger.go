package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	mu     sync.RWMutex
)

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "WSECHO_LOG_LEVEL"

// Output formats accepted by Initialize
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ParseLevel converts a level name to a zap level.
// Unknown names map to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Initialize creates the global logger with the specified level and format.
// If levelName is empty, it checks WSECHO_LOG_LEVEL.
// If neither is set, logging is disabled (silent mode).
func Initialize(levelName, format string) error {
	if levelName == "" {
		levelName = os.Getenv(LogLevelEnvVar)
	}

	if levelName == "" {
		mu.Lock()
		logger = zap.NewNop()
		mu.Unlock()
		return nil
	}

	level.SetLevel(ParseLevel(levelName))

	var config zap.Config
	switch format {
	case FormatJSON:
		config = zap.Config{
			Level:            level,
			Encoding:         "json",
			EncoderConfig:    zap.NewProductionEncoderConfig(),
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		}
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case FormatConsole, "":
		config = zap.Config{
			Level:            level,
			Development:      false,
			Encoding:         "console",
			EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		}
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	default:
		return fmt.Errorf("unknown log format: %s (expected console or json)", format)
	}

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mu.Lock()
	logger = built
	mu.Unlock()
	return nil
}

// InitializeFromEnv initializes the logger from the WSECHO_LOG_LEVEL
// environment variable. Client commands use this so they stay silent
// unless asked otherwise.
func InitializeFromEnv() error {
	return Initialize("", FormatConsole)
}

// SetLevel changes the level of the running logger without rebuilding it.
func SetLevel(levelName string) {
	level.SetLevel(ParseLevel(levelName))
}

// Level returns the current level name
func Level() string {
	return level.Level().String()
}

// Replace swaps the global logger, returning a function that restores the
// previous one. Tests use it to capture output with zaptest/observer.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	prev := logger
	logger = l
	mu.Unlock()
	return func() {
		mu.Lock()
		logger = prev
		mu.Unlock()
	}
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		// Fallback to silent logger if not initialized
		return zap.NewNop()
	}
	return l
}

// With returns a child logger carrying the given fields
func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().With(fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogConnection logs a connection event
func LogConnection(remoteAddr string, event string, fields ...zap.Field) {
	Info("Connection event", append([]zap.Field{
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	}, fields...)...)
}

// LogHTTPRequest logs an HTTP request
func LogHTTPRequest(remoteAddr string, method string, path string, headers map[string]string) {
	Debug("HTTP request received",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Any("headers", headers),
	)
}

// LogHTTPResponse logs an HTTP response
func LogHTTPResponse(remoteAddr string, statusCode int, headers map[string]string) {
	Debug("HTTP response sent",
		zap.String("remote_addr", remoteAddr),
		zap.Int("status_code", statusCode),
		zap.Any("headers", headers),
	)
}

// LogWebSocketMessage logs a WebSocket message at debug level
func LogWebSocketMessage(remoteAddr string, direction string, kind string, data []byte) {
	l := GetLogger()
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}

	fields := []zap.Field{
		zap.String("remote_addr", remoteAddr),
		zap.String("direction", direction),
		zap.String("message_type", kind),
		zap.Int("length", len(data)),
	}

	switch kind {
	case "text":
		fields = append(fields, zap.String("content", truncate(string(data), 256)))
	case "binary":
		fields = append(fields, zap.String("hex_dump", hexDump(data)))
	}

	l.Debug("WebSocket message", fields...)
}

// LogRawBytes logs raw bytes (useful for debugging handshake issues)
func LogRawBytes(label string, data []byte) {
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

// Helper functions

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	// Limit to first 256 bytes for logging
	if len(data) > 256 {
		return hex.EncodeToString(data[:256]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > 256 {
		data = data[:256]
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}

// Sync flushes any buffered log entries
func Sync() {
	if l := GetLogger(); l != nil {
		_ = l.Sync()
	}
}
