// Package app provides the application context for forage-ws.
//
// This package wires the provisioner and its collaborators using the
// functional options pattern, enabling easy testing through dependency
// injection.
//
// # Creating an App
//
//	// Production usage: config.toml, sqlite/postgres, useradd, systemd
//	a, err := app.New(ctx)
//
//	// Testing with custom dependencies
//	a, err := app.New(ctx,
//	    app.WithHostConfig(testConfig),
//	    app.WithAccounts(account.NewMockManager()),
//	    app.WithUnits(unit.NewMockManager()),
//	)
//
// # Available Options
//
//	WithPaths(paths)          // Custom path configuration
//	WithHostConfig(config)    // Skip loading config.toml
//	WithStore(store)          // Already opened store
//	WithExecutor(exec)        // Command executor for system managers
//	WithFileSystem(fs)        // Filesystem for system managers and routes
//	WithAccounts(manager)     // OS account manager
//	WithUnits(manager)        // Service unit manager
//	WithEnforcer(enforcer)    // Quota enforcer
//	WithAudit(recorder)       // Audit event sink
//	WithMetrics(metrics)      // Prometheus collectors
package app
