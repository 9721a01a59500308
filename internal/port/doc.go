// Package port allocates loopback ports for workspaces.
//
// Each workspace service listens on one port from the range configured in
// HostConfig. Ports live in a durable pool (store.Store in production):
//
//	alloc := port.NewAllocator(db, cfg.Ports)
//	if err := alloc.Init(ctx); err != nil { ... }
//	p, err := alloc.Allocate(ctx, ws.ID)
//
// # Allocation Strategy
//
// Allocation is first-fit: the lowest free port is chosen, which keeps
// assignments deterministic and easy to audit. A port stays held until the
// delete pipeline releases it, so a workspace whose service is still
// draining never has its port handed to someone else.
//
// Release is idempotent. Releasing a free port, or one held by a different
// workspace, does nothing.
package port
