package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestSetup_Formats(t *testing.T) {
	tests := []struct {
		name string
		json bool
		want []string
	}{
		{"text", false, []string{"level=INFO", `msg="workspace active"`, "hostname=dev-acme.ws.test", "port=8001"}},
		{"json", true, []string{`"level":"INFO"`, `"msg":"workspace active"`, `"hostname":"dev-acme.ws.test"`, `"port":8001`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Setup(false, tt.json, &buf)

			Info("workspace active", "hostname", "dev-acme.ws.test", "port", 8001)

			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q: %s", want, buf.String())
				}
			}
		})
	}
}

func TestSetup_JSONLinesParse(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, true, &buf)

	Warn("rollback step failed", "workspace", "ws-1", "step", "remove-unit")
	Error("failed to record workspace status", "workspace", "ws-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if rec["level"] != "WARN" || rec["step"] != "remove-unit" {
		t.Errorf("record = %v", rec)
	}
}

func TestSetup_Verbosity(t *testing.T) {
	tests := []struct {
		verbose   bool
		wantDebug bool
	}{
		{true, true},
		{false, false},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		Setup(tt.verbose, false, &buf)

		if Verbose != tt.verbose {
			t.Errorf("Verbose = %v after Setup(%v, ...)", Verbose, tt.verbose)
		}
		Debug("pipeline step", "step", "allocate-port", "attempt", 1)

		if got := strings.Contains(buf.String(), "pipeline step"); got != tt.wantDebug {
			t.Errorf("verbose=%v: debug line present = %v, want %v", tt.verbose, got, tt.wantDebug)
		}
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)

	With("workspace", "ws-1").Info("route published")

	out := buf.String()
	if !strings.Contains(out, "route published") || !strings.Contains(out, "workspace=ws-1") {
		t.Errorf("output = %s", out)
	}
}

func TestSetup_NilWriter(t *testing.T) {
	Setup(false, false, nil)
	if Logger == nil {
		t.Error("Logger is nil after Setup with a nil writer")
	}
}

func TestUserOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	SetUserOutput(&stdout, &stderr)
	t.Cleanup(func() { SetUserOutput(os.Stdout, os.Stderr) })

	UserInfo("Creating workspace %s...", "acme/dev")
	UserSuccess("Workspace %s is active", "acme/dev")
	UserWarning("Port %d is not listening", 8001)
	UserError("%v", "hostname dev-acme.ws.test is already routed")

	wantOut := "ℹ Creating workspace acme/dev...\n✓ Workspace acme/dev is active\n"
	if stdout.String() != wantOut {
		t.Errorf("stdout = %q, want %q", stdout.String(), wantOut)
	}
	wantErr := "⚠ Port 8001 is not listening\n✗ hostname dev-acme.ws.test is already routed\n"
	if stderr.String() != wantErr {
		t.Errorf("stderr = %q, want %q", stderr.String(), wantErr)
	}
}
