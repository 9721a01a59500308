// Package errors provides typed errors with exit codes for forage-ws.
//
// # Error Types
//
// ForageError is the base error type that wraps an error with an exit code
// and a Kind:
//
//	type ForageError struct {
//	    Code    int    // Exit code
//	    Kind    Kind   // Failure class
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Kinds
//
//	KindValidation          // bad input, no side effects attempted
//	KindAllocationExhausted // no free port in the pool
//	KindIdentityConflict    // OS account name taken
//	KindNameConflict        // owner already has a workspace with that name
//	KindNotFound            // workspace does not exist
//	KindSystem              // OS, service manager or filesystem failure
//	KindRollbackFailure     // cleanup after a failed create did not complete
//	KindInvalidState        // operation not allowed from the current status
//
// Each kind has a sentinel so callers can match with errors.Is:
//
//	if errors.Is(err, errors.ErrAllocationExhausted) { ... }
//
// # Retries
//
// IsPermanent reports whether an error is worth retrying. Only system errors
// are transient; everything else fails immediately.
//
// # Extracting Exit Codes
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
