package discovery

import (
	"net"
	"reflect"
	"strings"
	"testing"

	"github.com/grandcat/zeroconf"

	"github.com/muurk/wsecho/internal/version"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name         string
		entry        *zeroconf.ServiceEntry
		wantNil      bool
		wantInstance string
		wantIP       string
		wantPort     int
		wantPath     string
	}{
		{
			name: "IPv4 with TXT records",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "lab-box"},
				HostName:      "lab-box.local.",
				Port:          8080,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
				Text:          []string{"path=/", "version=v0.3.0"},
			},
			wantInstance: "lab-box",
			wantIP:       "192.168.4.16",
			wantPort:     8080,
			wantPath:     "/",
		},
		{
			name: "IPv4 preferred over IPv6",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "dual"},
				HostName:      "dual.local.",
				Port:          9000,
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
			},
			wantInstance: "dual",
			wantIP:       "10.0.0.5",
			wantPort:     9000,
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "v6"},
				HostName:      "v6.local.",
				Port:          8080,
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
			},
			wantInstance: "v6",
			wantIP:       "fe80::1",
			wantPort:     8080,
		},
		{
			name: "instance falls back to hostname",
			entry: &zeroconf.ServiceEntry{
				HostName: "echo-host.local.",
				Port:     8080,
				AddrIPv4: []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantInstance: "echo-host",
			wantIP:       "172.16.0.1",
			wantPort:     8080,
		},
		{
			name: "malformed TXT record kept as empty value",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "odd"},
				Port:          8080,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.1")},
				Text:          []string{"path", "=nokey"},
			},
			wantInstance: "odd",
			wantIP:       "192.168.1.1",
			wantPort:     8080,
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ghost"},
				Port:          8080,
			},
			wantNil: true,
		},
		{
			name: "no port",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "portless"},
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if svc != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", svc)
				}
				return
			}
			if svc == nil {
				t.Fatal("parseServiceEntry() = nil, want service")
			}

			if svc.Instance != tt.wantInstance {
				t.Errorf("Instance = %q, want %q", svc.Instance, tt.wantInstance)
			}
			if svc.IP != tt.wantIP {
				t.Errorf("IP = %q, want %q", svc.IP, tt.wantIP)
			}
			if svc.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", svc.Port, tt.wantPort)
			}
			if got := svc.GetMetadata("path"); got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}
			if svc.DiscoveredAt.IsZero() {
				t.Error("DiscoveredAt should be set")
			}
		})
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestServiceType(t *testing.T) {
	if !strings.HasPrefix(ServiceType, "_") || !strings.HasSuffix(ServiceType, "._tcp") {
		t.Errorf("ServiceType = %q, want _name._tcp form", ServiceType)
	}
}

func TestTXTRecords(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"", []string{"path=/", "version=" + version.Version}},
		{"/echo", []string{"path=/echo", "version=" + version.Version}},
	}

	for _, tt := range tests {
		if got := TXTRecords(tt.path); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("TXTRecords(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAdvertiserShutdownNil(t *testing.T) {
	var a *Advertiser
	a.Shutdown()
	(&Advertiser{}).Shutdown()
}
