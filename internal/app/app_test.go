package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/account"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/quota"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/system"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/unit"
)

func testConfig(t *testing.T) *config.HostConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultHostConfig()
	cfg.StateDir = filepath.Join(dir, "state")
	cfg.DatabaseURL = "sqlite:" + filepath.Join(dir, "forage-ws.db")
	cfg.Routes.Path = filepath.Join(dir, "routes", "forage-ws.yaml")
	cfg.Accounts.HomesDir = filepath.Join(dir, "homes")
	cfg.Ports = config.PortRange{From: 9100, To: 9104}
	return cfg
}

func TestNew_WithMocks(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx,
		WithHostConfig(testConfig(t)),
		WithAccounts(account.NewMockManager()),
		WithUnits(unit.NewMockManager()),
		WithEnforcer(quota.NewMockEnforcer()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Provisioner == nil || a.Routes == nil || a.Metrics == nil {
		t.Fatal("app is missing components")
	}
	claimed, total, err := a.Ports.Usage(ctx)
	if err != nil || claimed != 0 || total != 5 {
		t.Errorf("Usage() = %d/%d, %v; want 0/5", claimed, total, err)
	}
	if _, ok := a.AuditLog(); !ok {
		t.Error("default audit recorder should be the file logger")
	}
}

func TestNew_DefaultManagersUseExecutor(t *testing.T) {
	mockExec := system.NewMockExecutor()
	a, err := New(context.Background(),
		WithHostConfig(testConfig(t)),
		WithExecutor(mockExec),
		WithFileSystem(system.NewMockFS()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if _, ok := a.Accounts.(*account.SystemManager); !ok {
		t.Errorf("Accounts = %T, want *account.SystemManager", a.Accounts)
	}
	if _, ok := a.Units.(*unit.SystemdManager); !ok {
		t.Errorf("Units = %T, want *unit.SystemdManager", a.Units)
	}
	if _, ok := a.Enforcer.(quota.NoopEnforcer); !ok {
		t.Errorf("Enforcer = %T, want NoopEnforcer without a quota filesystem", a.Enforcer)
	}
}

func TestNew_LoadsConfigFromPaths(t *testing.T) {
	cfg := testConfig(t)
	configDir := t.TempDir()
	if err := config.WriteHostConfig(filepath.Join(configDir, config.ConfigFileName), cfg); err != nil {
		t.Fatalf("WriteHostConfig failed: %v", err)
	}

	a, err := New(context.Background(),
		WithPaths(&config.Paths{ConfigDir: configDir, StateDir: cfg.StateDir}),
		WithAccounts(account.NewMockManager()),
		WithUnits(unit.NewMockManager()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.HostConfig.Ports != cfg.Ports {
		t.Errorf("ports = %+v, want %+v", a.HostConfig.Ports, cfg.Ports)
	}
}

func TestNew_MissingConfig(t *testing.T) {
	_, err := New(context.Background(), WithPaths(&config.Paths{ConfigDir: filepath.Join(t.TempDir(), "absent")}))
	if err == nil || !strings.Contains(err.Error(), "host config") {
		t.Errorf("New without config = %v, want host config error", err)
	}
}

func TestSetDefault(t *testing.T) {
	original := Default
	defer SetDefault(original)

	a := &App{}
	SetDefault(a)
	if Default != a {
		t.Error("SetDefault did not set the default app")
	}
}
