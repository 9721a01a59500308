package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/unit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// Status represents the observed health of a workspace
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusUnitDown    Status = "unit-down"
	StatusUnreachable Status = "unreachable"
	StatusUnrouted    Status = "unrouted"
	StatusStopped     Status = "stopped"

	// DefaultDialTimeout bounds a single loopback port check.
	DefaultDialTimeout = 2 * time.Second
)

// RouteLookup reports whether a hostname is routed.
type RouteLookup interface {
	IsPublished(ctx context.Context, hostname string) (bool, error)
}

// CheckResult contains the results of health checks
type CheckResult struct {
	UnitState     unit.State
	UnitRunning   bool
	PortListening bool
	Routed        bool
	Age           string
}

// Checker checks the unit, route and loopback port of a workspace.
type Checker struct {
	Units  unit.Manager
	Routes RouteLookup

	// Dial checks a loopback port. Defaults to CheckPort.
	Dial func(ctx context.Context, port int) bool
}

// NewChecker creates a Checker using real loopback dials.
func NewChecker(units unit.Manager, routes RouteLookup) *Checker {
	return &Checker{Units: units, Routes: routes}
}

// CheckPort reports whether something accepts TCP connections on the
// loopback port.
func CheckPort(ctx context.Context, port int) bool {
	d := net.Dialer{Timeout: DefaultDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Check performs all health checks for a workspace. Later checks are skipped
// once one fails.
func (c *Checker) Check(ctx context.Context, ws *workspace.Workspace) *CheckResult {
	result := &CheckResult{
		UnitState: unit.StateUnknown,
		Age:       FormatAge(time.Since(ws.CreatedAt)),
	}

	state, err := c.Units.Status(ctx, unit.Ref{Name: ws.UnitName})
	if err == nil {
		result.UnitState = state
		result.UnitRunning = state.Running()
	}
	if !result.UnitRunning {
		return result
	}

	dial := c.Dial
	if dial == nil {
		dial = CheckPort
	}
	result.PortListening = ws.Port > 0 && dial(ctx, ws.Port)
	if !result.PortListening {
		return result
	}

	result.Routed, _ = c.Routes.IsPublished(ctx, ws.PublicHostname)
	return result
}

// Summary reduces a check result to a single status.
func Summary(r *CheckResult) Status {
	switch {
	case r == nil:
		return StatusStopped
	case !r.UnitRunning:
		return StatusUnitDown
	case !r.PortListening:
		return StatusUnreachable
	case !r.Routed:
		return StatusUnrouted
	}
	return StatusHealthy
}

// GetSummary returns the health status of ws. Workspaces that are not
// meant to be serving are reported as stopped without probing.
func (c *Checker) GetSummary(ctx context.Context, ws *workspace.Workspace) Status {
	if ws.Status != workspace.StatusActive {
		return StatusStopped
	}
	return Summary(c.Check(ctx, ws))
}

// FormatAge renders a duration the way status output shows ages.
func FormatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
