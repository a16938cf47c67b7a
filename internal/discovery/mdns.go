package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/wsecho/internal/logging"
)

const (
	// ServiceType is the mDNS service type wsecho servers advertise
	ServiceType = "_wsecho._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for discovery
	DefaultScanTimeout = 5 * time.Second
)

// Scanner handles mDNS service discovery
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan collects every wsecho server that answers before the timeout or ctx
// expires. Services are reported once per instance name.
func (s *Scanner) Scan(ctx context.Context) ([]*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		services []*Service
		seen     = make(map[string]bool)
	)

	err := s.browse(ctx, func(svc *Service) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[svc.Instance] {
			seen[svc.Instance] = true
			services = append(services, svc)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Service(nil), services...), nil
}

// WaitFor returns the first service with the given instance name
func (s *Scanner) WaitFor(ctx context.Context, instance string) (*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Service, 1)
	err := s.browse(ctx, func(svc *Service) bool {
		if svc.Instance != instance {
			return true
		}
		select {
		case found <- svc:
		default:
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	select {
	case svc := <-found:
		return svc, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("service %q not found within %s", instance, s.Timeout)
	}
}

// browse starts an mDNS browse and calls fn for every parsed entry until fn
// returns false or ctx ends.
func (s *Scanner) browse(ctx context.Context, fn func(*Service) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := parseServiceEntry(entry)
				if svc == nil {
					continue
				}
				logging.Debug("Discovered service",
					zap.String("instance", svc.Instance),
					zap.String("addr", svc.IP),
					zap.Int("port", svc.Port),
				)
				if !fn(svc) {
					return
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Service.
// Returns nil for entries without a usable address or port.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Service {
	if entry == nil || entry.Port == 0 {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		if key != "" {
			metadata[key] = value
		}
	}

	instance := entry.Instance
	if instance == "" {
		instance = strings.TrimSuffix(strings.TrimSuffix(entry.HostName, "."), ".local")
	}

	return &Service{
		Instance:     instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
