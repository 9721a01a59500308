// Package logging provides logging utilities for forage-ws.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("creating workspace", "owner", owner, "name", name)
//	logging.Warn("unit not active", "unit", unit, "timeout", timeout)
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Creating workspace %s...", name)
//	logging.UserSuccess("Workspace %s created", name)
//	logging.UserWarning("Port %d is already in use", port)
//	logging.UserError("Failed to create workspace: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
//
// The CLI points both at the running command's streams with SetUserOutput.
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
