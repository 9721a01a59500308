// Package store persists workspaces, the port pool and the route table.
//
// # Backends
//
// Open accepts a database URL:
//
//	sqlite:/var/lib/forage-ws/forage-ws.db
//	sqlite::memory:
//	postgres://forage:secret@db/forage_ws?sslmode=disable
//
// SQLite is the single-host default. Postgres lets several orchestrator
// instances share one port pool.
//
// # Port pool
//
// The ports table holds one row per port in the configured range. A NULL
// workspace_id marks a free port. ClaimPort takes the lowest free row with a
// single conditional UPDATE, so two claims can never return the same port
// regardless of how many processes share the database.
//
// # Uniqueness
//
// Partial unique indexes keep (owner_id, name) and public_hostname unique
// among workspaces that are not deleted. Names become reusable once a
// workspace reaches the deleted status.
package store
