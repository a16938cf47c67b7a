package discovery

import (
	"strings"
	"testing"
)

func TestServiceURL(t *testing.T) {
	tests := []struct {
		name string
		svc  Service
		want string
	}{
		{
			name: "default path",
			svc:  Service{IP: "192.168.1.10", Port: 8080},
			want: "ws://192.168.1.10:8080/",
		},
		{
			name: "advertised path",
			svc:  Service{IP: "192.168.1.10", Port: 8080, Metadata: map[string]string{"path": "/echo"}},
			want: "ws://192.168.1.10:8080/echo",
		},
		{
			name: "path without slash",
			svc:  Service{IP: "10.0.0.1", Port: 80, Metadata: map[string]string{"path": "echo"}},
			want: "ws://10.0.0.1:80/echo",
		},
		{
			name: "IPv6",
			svc:  Service{IP: "fe80::1", Port: 8080},
			want: "ws://[fe80::1]:8080/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.svc.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceString(t *testing.T) {
	svc := &Service{Instance: "lab-box", Hostname: "lab-box.local.", IP: "192.168.1.10", Port: 8080}
	s := svc.String()
	for _, want := range []string{"lab-box", "192.168.1.10:8080"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, should contain %q", s, want)
		}
	}
}

func TestServiceGetMetadata(t *testing.T) {
	svc := &Service{Metadata: map[string]string{"version": "v0.3.0"}}
	if got := svc.Version(); got != "v0.3.0" {
		t.Errorf("Version() = %q, want v0.3.0", got)
	}
	if got := svc.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q, want empty", got)
	}

	var empty Service
	if got := empty.GetMetadata("path"); got != "" {
		t.Errorf("GetMetadata on nil map = %q, want empty", got)
	}
}
