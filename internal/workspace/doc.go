// Package workspace defines the workspace record and its lifecycle states.
//
// # Lifecycle
//
//	(none) --create--> Provisioning --> Active
//	Active --stop--> Stopping --> Stopped
//	Stopped --start--> Starting --> Active
//	Active/Stopped/Error --delete--> Deleting --> Deleted
//
// Any failed operation ends in Error. Intermediate states (Provisioning,
// Stopping, Starting, Deleting) are only ever observed while an operation is
// running or after a crash; the recovery pass resolves them.
//
// A route for the workspace's hostname exists exactly when Status.Routed()
// is true.
//
// # Derived names
//
//	Hostname("dev", "acme", "ws.example.com")  // dev-acme.ws.example.com
//	IdentityName("fws-", id)                    // fws-3f2a9c01b7d4
//	UnitName("forage-ws-", "fws-3f2a9c01b7d4")  // forage-ws-fws-3f2a9c01b7d4.service
package workspace
