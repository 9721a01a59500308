package monitor

import (
	"context"
	"os"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/testutil"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/unit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

func newMonitor(env *testutil.TestEnv, listening bool, opts ...Option) *Monitor {
	checker := health.NewChecker(env.Units, env.App.Routes)
	checker.Dial = func(ctx context.Context, port int) bool { return listening }
	opts = append([]Option{WithAudit(env.Audit), WithMetrics(env.Metrics)}, opts...)
	return New(time.Second, env.Store(), checker, opts...)
}

func TestMonitor_New(t *testing.T) {
	env := testutil.NewTestEnv(t)
	m := New(30*time.Second, env.Store(), health.NewChecker(env.Units, env.App.Routes))

	if m.interval != 30*time.Second {
		t.Errorf("interval = %v, want %v", m.interval, 30*time.Second)
	}
	if m.healer != nil {
		t.Error("auto-repair should default to off")
	}
	if _, ok := m.audit.(audit.Discard); !ok {
		t.Errorf("audit = %T, want Discard", m.audit)
	}
}

func TestMonitor_CheckAllEmpty(t *testing.T) {
	env := testutil.NewTestEnv(t)
	m := newMonitor(env, true)

	if results := m.CheckAll(context.Background()); len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestMonitor_HealthyWorkspace(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ws := env.MustCreate("acme", "dev")
	m := newMonitor(env, true)

	results := m.CheckAll(context.Background())
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Workspace != ws.ID || results[0].Status != health.StatusHealthy {
		t.Errorf("result = %+v, want healthy %s", results[0], ws.ID)
	}
	for _, typ := range env.Audit.Types(ws.ID) {
		if typ == audit.EventDrift {
			t.Error("healthy workspace recorded a drift event")
		}
	}
}

func TestMonitor_DetectsDriftWithoutRepair(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ws := env.MustCreate("acme", "dev")
	env.Units.SetState(ws.UnitName, unit.StateFailed)
	m := newMonitor(env, true)

	results := m.CheckAll(context.Background())
	if len(results) != 1 || results[0].Status != health.StatusUnitDown {
		t.Fatalf("results = %+v, want one unit-down", results)
	}
	if results[0].Repaired {
		t.Error("repaired without a healer")
	}
	if got := promtest.ToFloat64(env.Metrics.DriftDetections.WithLabelValues(DriftUnit)); got != 1 {
		t.Errorf("unit drift counter = %v, want 1", got)
	}
	types := env.Audit.Types(ws.ID)
	if types[len(types)-1] != audit.EventDrift {
		t.Errorf("last audit event = %s, want drift", types[len(types)-1])
	}
	if u, _ := env.Units.Get(ws.UnitName); u.State != unit.StateFailed {
		t.Errorf("unit state = %s, monitor should not touch it", u.State)
	}
}

func TestMonitor_AutoRepair(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ws := env.MustCreate("acme", "dev")
	env.Units.SetState(ws.UnitName, unit.StateFailed)
	m := newMonitor(env, true, WithAutoRepair(env.Provisioner()))

	results := m.CheckAll(context.Background())
	if len(results) != 1 || !results[0].Repaired {
		t.Fatalf("results = %+v, want one repaired", results)
	}
	if u, _ := env.Units.Get(ws.UnitName); u.State != unit.StateActive {
		t.Errorf("unit state = %s, want active", u.State)
	}
	if got := env.Get(ws.ID).Status; got != workspace.StatusActive {
		t.Errorf("Status = %s, want active", got)
	}

	again := m.CheckAll(context.Background())
	if len(again) != 1 || again[0].Status != health.StatusHealthy {
		t.Errorf("second pass = %+v, want healthy", again)
	}
}

func TestMonitor_UnroutedWorkspaceIsRepaired(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ws := env.MustCreate("acme", "dev")
	if err := env.App.Routes.Unpublish(context.Background(), ws.PublicHostname, ws.ID); err != nil {
		t.Fatalf("Unpublish failed: %v", err)
	}
	m := newMonitor(env, true, WithAutoRepair(env.Provisioner()))

	results := m.CheckAll(context.Background())
	if len(results) != 1 || results[0].Status != health.StatusUnrouted || !results[0].Repaired {
		t.Fatalf("results = %+v, want unrouted and repaired", results)
	}
	if got := env.RouteFile()[ws.PublicHostname]; got != ws.Port {
		t.Errorf("route port = %d, want %d", got, ws.Port)
	}
}

func TestMonitor_PortDrift(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.MustCreate("acme", "dev")
	m := newMonitor(env, false)

	results := m.CheckAll(context.Background())
	if len(results) != 1 || results[0].Status != health.StatusUnreachable {
		t.Fatalf("results = %+v, want unreachable", results)
	}
	if got := promtest.ToFloat64(env.Metrics.DriftDetections.WithLabelValues(DriftPort)); got != 1 {
		t.Errorf("port drift counter = %v, want 1", got)
	}
}

func TestMonitor_StoppedWorkspacesAreIgnored(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ws := env.MustCreate("acme", "dev")
	if _, err := env.Provisioner().StopWorkspace(context.Background(), ws.ID); err != nil {
		t.Fatalf("StopWorkspace failed: %v", err)
	}
	m := newMonitor(env, true, WithAutoRepair(env.Provisioner()))

	if results := m.CheckAll(context.Background()); len(results) != 0 {
		t.Errorf("got %d results for a stopped workspace, want 0", len(results))
	}
	if got := env.Get(ws.ID).Status; got != workspace.StatusStopped {
		t.Errorf("Status = %s, want stopped", got)
	}
}

func TestMonitor_RouteFileResync(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ws := env.MustCreate("acme", "dev")
	if err := os.Remove(env.App.Routes.Path()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	m := newMonitor(env, true, WithRouteSync(env.App.Routes))

	m.CheckAll(context.Background())
	if got := env.RouteFile()[ws.PublicHostname]; got != ws.Port {
		t.Errorf("route port = %d after resync, want %d", got, ws.Port)
	}
	if got := promtest.ToFloat64(env.Metrics.DriftDetections.WithLabelValues(DriftRouteFile)); got != 1 {
		t.Errorf("route-file drift counter = %v, want 1", got)
	}
}

func TestMonitor_RunCancellation(t *testing.T) {
	env := testutil.NewTestEnv(t)
	m := New(100*time.Millisecond, env.Store(), health.NewChecker(env.Units, env.App.Routes))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()

	time.Sleep(250 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after context cancellation")
	}
}

func TestMonitor_RecoversInterruptedWorkspaces(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ctx := context.Background()
	ws := env.MustCreate("acme", "dev")

	interrupted := env.Get(ws.ID)
	interrupted.Status = workspace.StatusStopping
	if err := env.Store().UpdateWorkspace(ctx, interrupted); err != nil {
		t.Fatalf("UpdateWorkspace failed: %v", err)
	}
	if ok, err := env.Store().AcquireLease(ctx, ws.ID, "other-host/1", time.Minute); err != nil || !ok {
		t.Fatalf("AcquireLease = %v, %v", ok, err)
	}
	m := newMonitor(env, true, WithRecovery(env.Provisioner()))

	m.CheckAll(ctx)
	if got := env.Get(ws.ID).Status; got != workspace.StatusStopping {
		t.Fatalf("Status = %s, a workspace leased elsewhere must be left alone", got)
	}

	// The other process died; its lease runs out.
	if ok, err := env.Store().AcquireLease(ctx, ws.ID, "other-host/1", -time.Second); err != nil || !ok {
		t.Fatalf("AcquireLease = %v, %v", ok, err)
	}
	m.CheckAll(ctx)
	if got := env.Get(ws.ID).Status; got != workspace.StatusStopped {
		t.Errorf("Status = %s, want stopped once the lease expired", got)
	}
}
