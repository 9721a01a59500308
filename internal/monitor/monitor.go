// Package monitor provides background drift detection for workspaces.
package monitor

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// Drift kinds, used as the metrics label and in audit details.
const (
	DriftRouteFile = "route-file"
	DriftUnit      = "unit"
	DriftPort      = "port"
	DriftRoute     = "route"
)

// Lister lists workspaces by status.
type Lister interface {
	ListByStatus(ctx context.Context, statuses ...workspace.Status) ([]*workspace.Workspace, error)
}

// Healer repairs a drifted workspace through the orchestrator.
type Healer interface {
	RepairWorkspace(ctx context.Context, id string) (*workspace.Workspace, error)
}

// Recoverer settles workspaces left in an intermediate status.
type Recoverer interface {
	Recover(ctx context.Context) ([]provision.RecoverResult, error)
}

// RouteSyncer re-renders the route file from the route table.
type RouteSyncer interface {
	Sync(ctx context.Context) (bool, error)
}

// CheckResult holds the result of a single workspace health check.
type CheckResult struct {
	Workspace string
	Ref       string
	Status    health.Status
	Repaired  bool
}

// Monitor periodically checks Active workspaces for drift.
type Monitor struct {
	interval  time.Duration
	store     Lister
	checker   *health.Checker
	routes    RouteSyncer
	healer    Healer
	recoverer Recoverer
	audit     audit.Recorder
	metrics   *metrics.Metrics
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAutoRepair restarts drifted workspaces through h.
func WithAutoRepair(h Healer) Option {
	return func(m *Monitor) {
		m.healer = h
	}
}

// WithRecovery runs r at the start of every pass, so workspaces whose lease
// was still held at startup are settled once it expires.
func WithRecovery(r Recoverer) Option {
	return func(m *Monitor) {
		m.recoverer = r
	}
}

// WithRouteSync re-renders the route file on every pass.
func WithRouteSync(s RouteSyncer) Option {
	return func(m *Monitor) {
		m.routes = s
	}
}

// WithAudit sets the recorder for drift events.
func WithAudit(r audit.Recorder) Option {
	return func(m *Monitor) {
		m.audit = r
	}
}

// WithMetrics counts drift detections.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

// New creates a new Monitor.
func New(interval time.Duration, store Lister, checker *health.Checker, opts ...Option) *Monitor {
	m := &Monitor{
		interval: interval,
		store:    store,
		checker:  checker,
		audit:    audit.Discard{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the monitoring loop. It blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	logging.Debug("starting drift monitor", "interval", m.interval, "autoRepair", m.healer != nil)

	m.CheckAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("drift monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// CheckAll runs one pass: recovery, route file sync, then a health check of
// every Active workspace.
func (m *Monitor) CheckAll(ctx context.Context) []CheckResult {
	if m.recoverer != nil {
		m.recover(ctx)
	}
	if m.routes != nil {
		changed, err := m.routes.Sync(ctx)
		switch {
		case err != nil:
			logging.Warn("monitor failed to sync route file", "error", err)
		case changed:
			logging.Warn("route file drifted from the route table; rewritten")
			m.metrics.Drift(DriftRouteFile)
		}
	}

	active, err := m.store.ListByStatus(ctx, workspace.StatusActive)
	if err != nil {
		logging.Warn("monitor failed to list workspaces", "error", err)
		return nil
	}

	var results []CheckResult
	for _, ws := range active {
		if ctx.Err() != nil {
			break
		}
		status := m.checker.GetSummary(ctx, ws)
		result := CheckResult{Workspace: ws.ID, Ref: ws.Ref(), Status: status}

		if kind := driftKind(status); kind != "" {
			logging.Warn("workspace drift detected", "workspace", ws.ID, "ref", ws.Ref(), "status", status)
			m.metrics.Drift(kind)
			m.record(ws, "drift "+kind+": "+string(status))
			result.Repaired = m.repair(ctx, ws)
		}
		results = append(results, result)
	}
	return results
}

func (m *Monitor) recover(ctx context.Context) {
	results, err := m.recoverer.Recover(ctx)
	if err != nil {
		logging.Warn("monitor failed to recover workspaces", "error", err)
		return
	}
	for _, r := range results {
		if r.Err != nil {
			logging.Warn("recovery failed", "workspace", r.ID, "ref", r.Ref, "from", r.From, "error", r.Err)
			continue
		}
		logging.Info("workspace recovered", "workspace", r.ID, "ref", r.Ref, "from", r.From, "to", r.To)
	}
}

func (m *Monitor) repair(ctx context.Context, ws *workspace.Workspace) bool {
	if m.healer == nil {
		return false
	}
	logging.UserInfo("Repairing workspace %s", ws.Ref())
	if _, err := m.healer.RepairWorkspace(ctx, ws.ID); err != nil {
		if stderrors.Is(err, errors.ErrInvalidState) {
			logging.Debug("workspace changed status before repair", "workspace", ws.ID, "error", err)
			return false
		}
		logging.Warn("auto-repair failed", "workspace", ws.ID, "error", err)
		return false
	}
	m.record(ws, "repaired")
	return true
}

func (m *Monitor) record(ws *workspace.Workspace, details string) {
	if err := m.audit.Log(audit.Event{
		Type:      audit.EventDrift,
		Workspace: ws.ID,
		Ref:       ws.Ref(),
		Details:   details,
	}); err != nil {
		logging.Warn("failed to write audit event", "workspace", ws.ID, "error", err)
	}
}

func driftKind(s health.Status) string {
	switch s {
	case health.StatusUnitDown:
		return DriftUnit
	case health.StatusUnreachable:
		return DriftPort
	case health.StatusUnrouted:
		return DriftRoute
	}
	return ""
}
