// Package provision sequences the port, account, quota, unit and route
// components into workspace lifecycle operations.
//
// Every operation is a pipeline of named steps. Each step has a forward
// action and, for create, an inverse. The runner persists the name of the
// last completed step on the workspace record, so a crash at any point leaves
// enough information for Recover to roll back or resume.
//
// Operations on one workspace are serialized by a per-workspace lock held from
// before the status is read until the final status is persisted. A semaphore
// bounds how many operations drive the OS at once. Once a pipeline has
// started, caller cancellation only takes effect between steps; the step in
// flight always finishes.
package provision
