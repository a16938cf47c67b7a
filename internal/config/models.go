package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/metrics"
	"github.com/muurk/wsecho/internal/server"
	"github.com/muurk/wsecho/internal/transport"
)

// currentVersion is the config file format version
const currentVersion = 1

// Config is the server configuration file.
type Config struct {
	Version int `yaml:"version"`

	Listen    string `yaml:"listen"`               // host:port to bind
	LogLevel  string `yaml:"log_level"`            // debug, info, warn, error
	LogFormat string `yaml:"log_format,omitempty"` // console or json

	MaxMessageSize int64 `yaml:"max_message_size"` // bytes, 0 = unlimited
	MaxSessions    int   `yaml:"max_sessions"`     // 0 = unlimited

	ReadTimeout      Duration `yaml:"read_timeout"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	PingInterval     Duration `yaml:"ping_interval"`
	ShutdownTimeout  Duration `yaml:"shutdown_timeout"`

	StatusAddr string     `yaml:"status_addr,omitempty"` // empty = status endpoint disabled
	MDNS       MDNSConfig `yaml:"mdns"`
}

// MDNSConfig controls service advertisement on the local network.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"` // defaults to the hostname
}

// Duration is a time.Duration written as a string ("30s", "1m") in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	opts := transport.DefaultOptions()
	return &Config{
		Version:          currentVersion,
		Listen:           server.DefaultAddr,
		LogLevel:         "info",
		LogFormat:        logging.FormatConsole,
		MaxMessageSize:   opts.MaxMessageSize,
		ReadTimeout:      Duration(opts.ReadTimeout),
		WriteTimeout:     Duration(opts.WriteTimeout),
		HandshakeTimeout: Duration(opts.HandshakeTimeout),
		ShutdownTimeout:  Duration(server.DefaultShutdownTimeout),
	}
}

// Validate checks addresses, names and limits.
func (c *Config) Validate() error {
	if c.Version != currentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, currentVersion)
	}

	if err := validateAddr(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if c.StatusAddr != "" {
		if err := validateAddr(c.StatusAddr); err != nil {
			return fmt.Errorf("status_addr: %w", err)
		}
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("log_format: unknown format %q", c.LogFormat)
	}

	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max_message_size must not be negative")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must not be negative")
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"read_timeout", c.ReadTimeout},
		{"write_timeout", c.WriteTimeout},
		{"handshake_timeout", c.HandshakeTimeout},
		{"ping_interval", c.PingInterval},
		{"shutdown_timeout", c.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}

	if c.PingInterval > 0 && c.ReadTimeout > 0 && c.PingInterval >= c.ReadTimeout {
		return fmt.Errorf("ping_interval (%s) must be shorter than read_timeout (%s)",
			c.PingInterval.Std(), c.ReadTimeout.Std())
	}

	return nil
}

// validateAddr checks that addr is host:port with a numeric port.
func validateAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// TransportOptions returns the per-connection limits and timeouts.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{
		MaxMessageSize:   c.MaxMessageSize,
		HandshakeTimeout: c.HandshakeTimeout.Std(),
		ReadTimeout:      c.ReadTimeout.Std(),
		WriteTimeout:     c.WriteTimeout.Std(),
		PingInterval:     c.PingInterval.Std(),
	}
}

// ServerConfig builds the server configuration. m may be nil.
func (c *Config) ServerConfig(m *metrics.Collector) *server.Config {
	return &server.Config{
		Addr:            c.Listen,
		Transport:       c.TransportOptions(),
		MaxSessions:     c.MaxSessions,
		ShutdownTimeout: c.ShutdownTimeout.Std(),
		Metrics:         m,
	}
}
