package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/muurk/wsecho/internal/metrics"
	"github.com/muurk/wsecho/internal/version"
)

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.ConnectionOpened()
	m.MessageReceived(5)

	tests := []struct {
		path        string
		wantStatus  int
		wantType    string
		wantContain string
	}{
		{"/health", http.StatusOK, "text/plain; charset=utf-8", "OK"},
		{"/version", http.StatusOK, "application/json", `"version"`},
		{"/stats", http.StatusOK, "application/json", `"connections_active": 1`},
		{"/nope", http.StatusNotFound, "", ""},
	}

	h := Handler(m)
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantType != "" && rec.Header().Get("Content-Type") != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), tt.wantType)
			}
			if !strings.Contains(rec.Body.String(), tt.wantContain) {
				t.Errorf("body %q should contain %q", rec.Body.String(), tt.wantContain)
			}
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info version.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if info.Version != version.Version || info.Commit != version.Commit {
		t.Errorf("info = %+v, want version %s commit %s", info, version.Version, version.Commit)
	}
}

func TestStatsWithoutCollector(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var snap metrics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if snap != (metrics.Snapshot{}) {
		t.Errorf("snapshot = %+v, want zero", snap)
	}
}

func TestServerLifecycle(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", metrics.New())
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "OK\n" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if err := <-serveErr; err != nil {
		t.Errorf("Serve() error after Shutdown: %v", err)
	}
}

func TestListenBindError(t *testing.T) {
	if _, err := Listen("127.0.0.1:99999", nil); err == nil {
		t.Error("Listen() should fail for an invalid port")
	}
}
