package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestHeaderRender(t *testing.T) {
	h := NewHeader("Echo chat", "wsecho chat", map[string]string{
		"Server":  "ws://127.0.0.1:8080/",
		"Timeout": "5s",
	}).SetWidth(80)

	out := h.Render()
	for _, want := range []string{"ECHO CHAT", "wsecho chat", "Server:", "ws://127.0.0.1:8080/"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() should contain %q\n%s", want, out)
		}
	}

	// Params are sorted by key
	if strings.Index(out, "Server:") > strings.Index(out, "Timeout:") {
		t.Error("params should be rendered in key order")
	}
}

func TestHeaderWithoutParams(t *testing.T) {
	out := NewHeader("Discover", "wsecho discover", nil).SetWidth(10).Render()
	if !strings.Contains(out, "DISCOVER") {
		t.Errorf("Render() = %q, should contain title", out)
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Reply received", Detail{"Sent", "hello"}, Detail{"Reply", "olleh"}),
			want:   []string{"SUCCESS", "Reply received", "Sent:", "olleh"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Send failed", errors.New("connection refused"), []string{"Is wsecho-server running?"}),
			want:   []string{"FAILED", "connection refused", "Troubleshooting:", "wsecho-server running"},
		},
		{
			name:   "warning",
			result: NewWarningResult("No servers found").AddDetail("Timeout", "5s"),
			want:   []string{"WARNING", "No servers found", "Timeout:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).Render()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("Render() should contain %q\n%s", want, out)
				}
			}
		})
	}
}

func TestResultDetailOrder(t *testing.T) {
	out := NewSuccessResult("ok", Detail{"Zeta", "1"}, Detail{"Alpha", "2"}).SetWidth(80).Render()
	if strings.Index(out, "Zeta") > strings.Index(out, "Alpha") {
		t.Error("details should keep insertion order")
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(
		[]string{"Instance", "URL"},
		[][]string{
			{"lab-box", "ws://192.168.1.10:8080/"},
			{"pi", "ws://192.168.1.11:8080/"},
		},
	)
	for _, want := range []string{"Instance", "URL", "lab-box", "ws://192.168.1.11:8080/"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderTable() should contain %q\n%s", want, out)
		}
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf).SetWidth(200)

	if p.Width() != MaxContentWidth {
		t.Errorf("Width() = %d, want %d", p.Width(), MaxContentWidth)
	}

	p.PrintHeader("Send", "wsecho send", nil)
	p.PrintResult(NewSuccessResult("Reply received"))
	p.PrintTable([]string{"A"}, [][]string{{"x"}})

	for _, want := range []string{"SEND", "Reply received", "x"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output should contain %q", want)
		}
	}
}

func TestClampWidth(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{10, MinTerminalWidth},
		{80, 80},
		{500, MaxContentWidth},
	}
	for _, tt := range tests {
		if got := clampWidth(tt.in); got != tt.want {
			t.Errorf("clampWidth(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
