// Package config manages the wsecho server configuration file.
//
// The configuration is a YAML file stored in the platform-appropriate
// location:
//   - Linux: $XDG_CONFIG_HOME/wsecho/config.yaml or $HOME/.config/wsecho/config.yaml
//   - macOS: $HOME/.config/wsecho/config.yaml
//   - Windows: %LOCALAPPDATA%\wsecho\config.yaml
//
// A missing file means defaults. Command line flags override file values.
//
// # Example File
//
//	version: 1
//	listen: 127.0.0.1:8080
//	log_level: info
//	max_message_size: 65536
//	max_sessions: 0
//	read_timeout: 1m0s
//	write_timeout: 10s
//	handshake_timeout: 10s
//	ping_interval: 0s
//	shutdown_timeout: 10s
//	status_addr: 127.0.0.1:8081
//	mdns:
//	    enabled: false
//
// # Reloading
//
// Watch reports every valid change to the file. The server applies the log
// level from the new file at runtime; other settings take effect on restart.
package config
