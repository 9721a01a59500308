// Package health provides health check utilities for workspace monitoring.
//
// A workspace is healthy when its service unit is active, something listens
// on its loopback port, and its hostname is routed.
//
// # Health Status
//
//	StatusHealthy     - Unit active, port listening, route published
//	StatusUnitDown    - Unit not active
//	StatusUnreachable - Unit active but nothing listens on the port
//	StatusUnrouted    - Serving but the hostname has no route
//	StatusStopped     - Workspace is not meant to be serving
//
// # Check Functions
//
//	checker := health.NewChecker(units, routes)
//	result := checker.Check(ctx, ws)
//	// result.UnitRunning, .PortListening, .Routed, .Age
//
//	status := checker.GetSummary(ctx, ws)
//
// CheckPort dials a loopback port directly.
package health
