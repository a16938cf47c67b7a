package discovery

import (
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/logging"
	"github.com/muurk/wsecho/internal/version"
)

// Advertiser publishes a wsecho server over mDNS until Shutdown
type Advertiser struct {
	server   *zeroconf.Server
	Instance string
}

// TXTRecords returns the TXT data advertised for a server at path
func TXTRecords(path string) []string {
	if path == "" {
		path = "/"
	}
	return []string{
		"path=" + path,
		"version=" + version.Version,
	}
}

// Advertise registers the server listening on port. An empty instance uses
// the hostname.
func Advertise(instance string, port int, path string) (*Advertiser, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to determine hostname: %w", err)
		}
		instance = host
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Advertiser{server: server, Instance: instance}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	logging.Debug("mDNS advertisement withdrawn", zap.String("instance", a.Instance))
}
