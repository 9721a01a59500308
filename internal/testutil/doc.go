// Package testutil provides test fixtures and a ready-made provisioning
// environment.
//
// # Fixtures
//
// TOML fixtures are embedded using go:embed:
//
//	fixtures/valid_host_config.toml
//	fixtures/invalid_host_config.toml
//
// # Test Environment
//
// NewTestEnv builds a full app over a temporary sqlite database and route
// file, with mock account, unit and quota managers:
//
//	func TestStop(t *testing.T) {
//	    env := testutil.NewTestEnv(t, testutil.WithPorts(8001, 8003))
//	    ws := env.MustCreate("acme", "dev")
//	    if _, err := env.Provisioner().StopWorkspace(ctx, ws.ID); err != nil {
//	        t.Fatal(err)
//	    }
//	    if len(env.RouteFile()) != 0 {
//	        t.Error("stopped workspace is still routed")
//	    }
//	}
package testutil
