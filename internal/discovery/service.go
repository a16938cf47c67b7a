package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service is a wsecho server found on the local network
type Service struct {
	// Instance is the advertised instance name (e.g., "lab-box")
	Instance string

	// Hostname is the mDNS hostname (e.g., "lab-box.local.")
	Hostname string

	// IP is the address to connect to (IPv4 preferred)
	IP string

	// Port is the WebSocket listener port
	Port int

	// Metadata contains the TXT record data
	// Common fields: "path=/", "version=v0.3.0"
	Metadata map[string]string

	// DiscoveredAt is when the service was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the service
func (s *Service) String() string {
	return fmt.Sprintf("wsecho %s (%s) at %s", s.Instance, s.Hostname, net.JoinHostPort(s.IP, strconv.Itoa(s.Port)))
}

// URL returns the WebSocket URL of the service
func (s *Service) URL() string {
	path := s.GetMetadata("path")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "ws://" + net.JoinHostPort(s.IP, strconv.Itoa(s.Port)) + path
}

// Version returns the advertised server version, if any
func (s *Service) Version() string {
	return s.GetMetadata("version")
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
