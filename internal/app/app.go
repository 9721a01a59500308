package app

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/account"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/port"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/quota"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/route"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/store"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/system"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/unit"
)

// App holds the application dependencies
type App struct {
	// Paths holds the configured paths
	Paths *config.Paths

	// HostConfig is the loaded host configuration
	HostConfig *config.HostConfig

	Store       *store.Store
	Ports       *port.Allocator
	Quota       *quota.Policy
	Enforcer    quota.Enforcer
	Accounts    account.Manager
	Units       unit.Manager
	Routes      *route.Publisher
	Audit       audit.Recorder
	Metrics     *metrics.Metrics
	Provisioner *provision.Provisioner

	exec system.CommandExecutor
	fs   system.FileSystem
}

// Option is a function that configures the App
type Option func(*App)

// WithPaths sets custom paths
func WithPaths(paths *config.Paths) Option {
	return func(a *App) {
		a.Paths = paths
	}
}

// WithHostConfig sets a custom host config
func WithHostConfig(cfg *config.HostConfig) Option {
	return func(a *App) {
		a.HostConfig = cfg
	}
}

// WithStore uses an already opened store
func WithStore(s *store.Store) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithExecutor sets the command executor used by the system managers
func WithExecutor(exec system.CommandExecutor) Option {
	return func(a *App) {
		a.exec = exec
	}
}

// WithFileSystem sets the filesystem used by the system managers
func WithFileSystem(fs system.FileSystem) Option {
	return func(a *App) {
		a.fs = fs
	}
}

// WithAccounts sets a custom account manager
func WithAccounts(m account.Manager) Option {
	return func(a *App) {
		a.Accounts = m
	}
}

// WithUnits sets a custom unit manager
func WithUnits(m unit.Manager) Option {
	return func(a *App) {
		a.Units = m
	}
}

// WithEnforcer sets a custom quota enforcer
func WithEnforcer(e quota.Enforcer) Option {
	return func(a *App) {
		a.Enforcer = e
	}
}

// WithAudit sets a custom audit recorder
func WithAudit(r audit.Recorder) Option {
	return func(a *App) {
		a.Audit = r
	}
}

// WithMetrics sets the metrics instance
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) {
		a.Metrics = m
	}
}

// New wires the application from options. Anything not supplied is built
// from the host config: the store is opened and migrated, the port pool is
// seeded, and the systemd and useradd backed managers are used.
func New(ctx context.Context, opts ...Option) (*App, error) {
	a := &App{
		Paths: config.DefaultPaths(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.exec == nil {
		a.exec = system.DefaultExecutor()
	}
	if a.fs == nil {
		a.fs = system.DefaultFS()
	}

	if a.HostConfig == nil {
		cfg, err := config.LoadHostConfig(a.Paths.ConfigDir)
		if err != nil {
			return nil, errors.ConfigError("failed to load host config", err)
		}
		a.HostConfig = cfg
	}
	cfg := a.HostConfig

	if a.Store == nil {
		s, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, errors.ConfigError("failed to open database", err)
		}
		a.Store = s
	}
	if err := a.Store.Migrate(ctx); err != nil {
		return nil, errors.SystemError("migrate database", err)
	}

	a.Ports = port.NewAllocator(a.Store, cfg.Ports)
	if err := a.Ports.Init(ctx); err != nil {
		return nil, errors.SystemError("seed port pool", err)
	}

	policy, err := quota.NewPolicy(cfg.Quota.Plans)
	if err != nil {
		return nil, errors.ConfigError("invalid quota plans", err)
	}
	a.Quota = policy

	if a.Enforcer == nil {
		a.Enforcer = quota.NewEnforcer(cfg.Quota.Filesystem, a.exec)
	}
	if a.Accounts == nil {
		a.Accounts = account.NewSystemManager(cfg.Accounts, a.exec, a.fs)
	}
	if a.Units == nil {
		a.Units = unit.NewSystemdManager(cfg.Service, a.exec, a.fs)
	}
	if a.Audit == nil {
		a.Audit = audit.NewLogger(cfg.StateDir)
	}
	if a.Metrics == nil {
		a.Metrics = metrics.New()
	}

	a.Routes, err = route.NewPublisher(cfg.Routes, a.Store, a.fs)
	if err != nil {
		return nil, errors.ConfigError("invalid routes config", err)
	}

	a.Provisioner, err = provision.New(cfg, provision.Deps{
		Store:    a.Store,
		Ports:    a.Ports,
		Quota:    a.Quota,
		Enforcer: a.Enforcer,
		Accounts: a.Accounts,
		Units:    a.Units,
		Routes:   a.Routes,
		Audit:    a.Audit,
		Metrics:  a.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build provisioner: %w", err)
	}

	logging.Debug("app initialized", "database", cfg.DatabaseURL, "routes", cfg.Routes.Path, "ports", fmt.Sprintf("%d-%d", cfg.Ports.From, cfg.Ports.To))
	return a, nil
}

// AuditLog returns the file-backed audit log, if that is what the app uses.
func (a *App) AuditLog() (*audit.Logger, bool) {
	l, ok := a.Audit.(*audit.Logger)
	return l, ok
}

// Close releases the database.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// Default is the application instance used by the CLI. It is set once the
// root command has loaded the configuration.
var Default *App

// SetDefault sets the default app instance (for testing)
func SetDefault(a *App) {
	Default = a
}
