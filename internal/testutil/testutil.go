// Package testutil provides test utilities for provisioning tests
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/account"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/quota"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/store"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/unit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// TestEnv holds the test environment
type TestEnv struct {
	T          *testing.T
	TmpDir     string
	Paths      *config.Paths
	HostConfig *config.HostConfig
	Accounts   *account.MockManager
	Units      *unit.MockManager
	Quota      *quota.MockEnforcer
	Audit      *audit.Memory
	Metrics    *metrics.Metrics
	App        *app.App
	cleanup    func()
}

// ConfigOption adjusts the host config before the environment is built.
type ConfigOption func(*config.HostConfig)

// WithPorts restricts the port pool.
func WithPorts(from, to int) ConfigOption {
	return func(c *config.HostConfig) {
		c.Ports = config.PortRange{From: from, To: to}
	}
}

// WithRouteFile sets the name of the route file inside the temp dir.
func WithRouteFile(name string) ConfigOption {
	return func(c *config.HostConfig) {
		c.Routes.Path = filepath.Join(filepath.Dir(c.Routes.Path), name)
	}
}

// NewTestEnv creates a test environment with a temporary sqlite database,
// a temporary route file and mock account, unit and quota managers.
func NewTestEnv(t *testing.T, opts ...ConfigOption) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()

	paths := &config.Paths{
		ConfigDir: filepath.Join(tmpDir, "config"),
		StateDir:  filepath.Join(tmpDir, "state"),
		AuditDir:  filepath.Join(tmpDir, "state", "audit"),
	}
	for _, dir := range []string{paths.ConfigDir, paths.StateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	cfg := config.DefaultHostConfig()
	cfg.BaseDomain = "ws.test"
	cfg.StateDir = paths.StateDir
	cfg.DatabaseURL = "sqlite:" + filepath.Join(tmpDir, "forage-ws.db")
	cfg.Ports = config.PortRange{From: 8001, To: 8010}
	cfg.Accounts.HomesDir = filepath.Join(tmpDir, "homes")
	cfg.Service.UnitsDir = filepath.Join(tmpDir, "units")
	cfg.Service.EnvDir = filepath.Join(tmpDir, "env")
	cfg.Routes.Path = filepath.Join(tmpDir, "traefik", "forage-ws.yaml")
	cfg.Routes.CertResolver = "test"
	cfg.Retry = config.RetryConfig{Attempts: 3, Backoff: config.Duration{Duration: time.Millisecond}}
	cfg.Orchestrator.MaxConcurrent = 8
	cfg.Orchestrator.OperationTimeout = config.Duration{Duration: 30 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Invalid test config: %v", err)
	}

	env := &TestEnv{
		T:          t,
		TmpDir:     tmpDir,
		Paths:      paths,
		HostConfig: cfg,
		Accounts:   account.NewMockManager(),
		Units:      unit.NewMockManager(),
		Quota:      quota.NewMockEnforcer(),
		Audit:      &audit.Memory{},
		Metrics:    metrics.New(),
	}

	testApp, err := app.New(context.Background(),
		app.WithPaths(paths),
		app.WithHostConfig(cfg),
		app.WithAccounts(env.Accounts),
		app.WithUnits(env.Units),
		app.WithEnforcer(env.Quota),
		app.WithAudit(env.Audit),
		app.WithMetrics(env.Metrics),
	)
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	env.App = testApp

	originalDefault := app.Default
	app.SetDefault(testApp)
	env.cleanup = func() {
		app.SetDefault(originalDefault)
		testApp.Close()
	}
	t.Cleanup(env.Cleanup)

	return env
}

// Cleanup restores the original app default and closes the database.
// It is registered with t.Cleanup and safe to call twice.
func (e *TestEnv) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
}

// Provisioner returns the provisioner under test.
func (e *TestEnv) Provisioner() *provision.Provisioner {
	return e.App.Provisioner
}

// Store returns the backing store.
func (e *TestEnv) Store() *store.Store {
	return e.App.Store
}

// MustCreate provisions a workspace and fails the test on error.
func (e *TestEnv) MustCreate(owner, name string) *workspace.Workspace {
	e.T.Helper()
	ws, err := e.App.Provisioner.CreateWorkspace(context.Background(), provision.CreateRequest{
		OwnerID: owner,
		Name:    name,
		Plan:    "free",
	})
	if err != nil {
		e.T.Fatalf("CreateWorkspace(%s/%s) failed: %v", owner, name, err)
	}
	return ws
}

// Get reloads a workspace from the store.
func (e *TestEnv) Get(id string) *workspace.Workspace {
	e.T.Helper()
	ws, err := e.App.Store.GetWorkspace(context.Background(), id)
	if err != nil {
		e.T.Fatalf("GetWorkspace(%s) failed: %v", id, err)
	}
	return ws
}

// RouteFile returns the routes the proxy would currently see. A missing
// file means no routes.
func (e *TestEnv) RouteFile() map[string]int {
	e.T.Helper()
	routes, err := e.App.Routes.Published()
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}
		}
		e.T.Fatalf("Failed to read route file: %v", err)
	}
	return routes
}

// ClaimedPorts returns the port pool claims.
func (e *TestEnv) ClaimedPorts() map[int]string {
	e.T.Helper()
	ports, err := e.App.Store.ClaimedPorts(context.Background())
	if err != nil {
		e.T.Fatalf("ClaimedPorts failed: %v", err)
	}
	return ports
}
