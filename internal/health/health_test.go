package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/unit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

type fakeRoutes map[string]bool

func (f fakeRoutes) IsPublished(ctx context.Context, hostname string) (bool, error) {
	return f[hostname], nil
}

func testWorkspace() *workspace.Workspace {
	return &workspace.Workspace{
		ID:             "ws-1",
		OwnerID:        "acme",
		Name:           "dev",
		PublicHostname: "dev-acme.ws.test",
		Port:           8001,
		UnitName:       "forage-ws-fws-1.service",
		Status:         workspace.StatusActive,
		CreatedAt:      time.Now().Add(-90 * time.Minute),
	}
}

func newChecker(t *testing.T, state unit.State, listening bool, routes fakeRoutes) *Checker {
	t.Helper()
	units := unit.NewMockManager()
	ws := testWorkspace()
	if _, err := units.Install(context.Background(), unit.Spec{
		Name:       ws.UnitName,
		Identity:   "fws-1",
		Port:       ws.Port,
		WorkingDir: "/srv/ws/fws-1",
		Credential: "secret-credential-value",
	}); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	units.SetState(ws.UnitName, state)
	return &Checker{
		Units:  units,
		Routes: routes,
		Dial:   func(ctx context.Context, port int) bool { return listening },
	}
}

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusUnitDown, "unit-down"},
		{StatusUnreachable, "unreachable"},
		{StatusUnrouted, "unrouted"},
		{StatusStopped, "stopped"},
	}

	for _, tt := range tests {
		if string(tt.status) != tt.want {
			t.Errorf("Status %v = %q, want %q", tt.status, tt.status, tt.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"negative", -time.Second, "0s"},
		{"seconds", 30 * time.Second, "30s"},
		{"one minute", 1 * time.Minute, "1m"},
		{"minutes", 45 * time.Minute, "45m"},
		{"one hour", 1 * time.Hour, "1h 0m"},
		{"hours and minutes", 2*time.Hour + 30*time.Minute, "2h 30m"},
		{"one day", 24 * time.Hour, "1d 0h"},
		{"days and hours", 3*24*time.Hour + 5*time.Hour, "3d 5h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatAge(tt.duration)
			if got != tt.want {
				t.Errorf("FormatAge(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestChecker_Summary(t *testing.T) {
	routed := fakeRoutes{"dev-acme.ws.test": true}

	tests := []struct {
		name      string
		state     unit.State
		listening bool
		routes    fakeRoutes
		want      Status
	}{
		{"healthy", unit.StateActive, true, routed, StatusHealthy},
		{"unit failed", unit.StateFailed, true, routed, StatusUnitDown},
		{"unit inactive", unit.StateInactive, true, routed, StatusUnitDown},
		{"port closed", unit.StateActive, false, routed, StatusUnreachable},
		{"no route", unit.StateActive, true, fakeRoutes{}, StatusUnrouted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChecker(t, tt.state, tt.listening, tt.routes)
			if got := c.GetSummary(context.Background(), testWorkspace()); got != tt.want {
				t.Errorf("GetSummary() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChecker_CheckResult(t *testing.T) {
	c := newChecker(t, unit.StateActive, true, fakeRoutes{"dev-acme.ws.test": true})
	result := c.Check(context.Background(), testWorkspace())

	if result.UnitState != unit.StateActive || !result.UnitRunning {
		t.Errorf("unit = %s running=%v", result.UnitState, result.UnitRunning)
	}
	if !result.PortListening || !result.Routed {
		t.Errorf("port=%v routed=%v, want both true", result.PortListening, result.Routed)
	}
	if result.Age != "1h 30m" {
		t.Errorf("Age = %q, want %q", result.Age, "1h 30m")
	}
}

func TestChecker_StoppedWorkspaceIsNotChecked(t *testing.T) {
	c := newChecker(t, unit.StateActive, true, fakeRoutes{})
	units := c.Units.(*unit.MockManager)
	ws := testWorkspace()
	ws.Status = workspace.StatusStopped

	if got := c.GetSummary(context.Background(), ws); got != StatusStopped {
		t.Errorf("GetSummary() = %s, want stopped", got)
	}
	if len(units.GetCallsFor("Status")) != 0 {
		t.Error("stopped workspace was checked")
	}
}

func TestCheckPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen on loopback: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	if !CheckPort(context.Background(), port) {
		t.Errorf("CheckPort(%d) = false with a listener", port)
	}

	ln.Close()
	if CheckPort(context.Background(), port) {
		t.Errorf("CheckPort(%d) = true after the listener closed", port)
	}
}
