package errors

import (
	"errors"
	"fmt"
)

// Exit codes for forage-ws
const (
	ExitSuccess             = 0
	ExitGeneralError        = 1
	ExitWorkspaceNotFound   = 2
	ExitValidation          = 3
	ExitAllocationExhausted = 4
	ExitSystemError         = 5
	ExitConfigError         = 6
	ExitConflict            = 7
	ExitRollbackFailure     = 8
	ExitInvalidState        = 9
)

// Kind classifies a ForageError for callers that branch on failure type.
type Kind string

const (
	KindGeneral             Kind = "general"
	KindValidation          Kind = "validation"
	KindAllocationExhausted Kind = "allocation-exhausted"
	KindIdentityConflict    Kind = "identity-conflict"
	KindNameConflict        Kind = "name-conflict"
	KindNotFound            Kind = "not-found"
	KindSystem              Kind = "system"
	KindRollbackFailure     Kind = "rollback-failure"
	KindInvalidState        Kind = "invalid-state"
	KindConfig              Kind = "config"
)

// Sentinels for errors.Is matching against a Kind.
var (
	ErrValidation          = &kindSentinel{KindValidation}
	ErrAllocationExhausted = &kindSentinel{KindAllocationExhausted}
	ErrIdentityConflict    = &kindSentinel{KindIdentityConflict}
	ErrNameConflict        = &kindSentinel{KindNameConflict}
	ErrNotFound            = &kindSentinel{KindNotFound}
	ErrSystem              = &kindSentinel{KindSystem}
	ErrRollbackFailure     = &kindSentinel{KindRollbackFailure}
	ErrInvalidState        = &kindSentinel{KindInvalidState}
)

type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return string(s.kind) }

// ForageError is the base error type for forage-ws
type ForageError struct {
	Code    int
	Kind    Kind
	Message string
	Cause   error
}

func (e *ForageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ForageError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ForageError) Is(target error) bool {
	s, ok := target.(*kindSentinel)
	return ok && s.kind == e.Kind
}

// ExitCode returns the exit code for this error
func (e *ForageError) ExitCode() int {
	return e.Code
}

// New creates a new ForageError
func New(code int, message string) *ForageError {
	return &ForageError{
		Code:    code,
		Kind:    KindGeneral,
		Message: message,
	}
}

// Wrap wraps an existing error with a ForageError
func Wrap(code int, message string, cause error) *ForageError {
	return &ForageError{
		Code:    code,
		Kind:    KindGeneral,
		Message: message,
		Cause:   cause,
	}
}

// ValidationError returns an error for input validation failures.
// No side effects have been attempted when this is returned.
func ValidationError(message string) *ForageError {
	return &ForageError{Code: ExitValidation, Kind: KindValidation, Message: message}
}

// AllocationExhausted returns an error when the port pool has no free port.
func AllocationExhausted(from, to int) *ForageError {
	return &ForageError{
		Code:    ExitAllocationExhausted,
		Kind:    KindAllocationExhausted,
		Message: fmt.Sprintf("no available ports in range %d-%d", from, to),
	}
}

// IdentityConflict returns an error when an OS account name is already taken.
func IdentityConflict(name string) *ForageError {
	return &ForageError{
		Code:    ExitConflict,
		Kind:    KindIdentityConflict,
		Message: fmt.Sprintf("os identity %s already exists", name),
	}
}

// NameConflict returns an error when an owner already has a workspace with this name.
func NameConflict(owner, name string) *ForageError {
	return &ForageError{
		Code:    ExitConflict,
		Kind:    KindNameConflict,
		Message: fmt.Sprintf("workspace %s already exists for owner %s", name, owner),
	}
}

// HostnameConflict returns an error when a hostname is already routed to another workspace.
func HostnameConflict(hostname, holder string) *ForageError {
	return &ForageError{
		Code:    ExitConflict,
		Kind:    KindNameConflict,
		Message: fmt.Sprintf("hostname %s is already routed to workspace %s", hostname, holder),
	}
}

// WorkspaceNotFound returns an error for a missing workspace
func WorkspaceNotFound(id string) *ForageError {
	return &ForageError{
		Code:    ExitWorkspaceNotFound,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("workspace not found: %s", id),
	}
}

// SystemError wraps a failed OS, service manager or filesystem operation.
func SystemError(op string, cause error) *ForageError {
	return &ForageError{
		Code:    ExitSystemError,
		Kind:    KindSystem,
		Message: fmt.Sprintf("%s failed", op),
		Cause:   cause,
	}
}

// RollbackFailure reports cleanup that could not complete after a failed create.
// The workspace needs operator attention.
func RollbackFailure(id string, cause error) *ForageError {
	return &ForageError{
		Code:    ExitRollbackFailure,
		Kind:    KindRollbackFailure,
		Message: fmt.Sprintf("rollback of workspace %s incomplete, manual cleanup required", id),
		Cause:   cause,
	}
}

// InvalidState returns an error when an operation is not allowed from the current status.
func InvalidState(id, op, status string) *ForageError {
	return &ForageError{
		Code:    ExitInvalidState,
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("cannot %s workspace %s in status %s", op, id, status),
	}
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *ForageError {
	return &ForageError{
		Code:    ExitConfigError,
		Kind:    KindConfig,
		Message: message,
		Cause:   cause,
	}
}

// KindOf returns the Kind of the first ForageError in err's chain.
func KindOf(err error) Kind {
	var forageErr *ForageError
	if errors.As(err, &forageErr) {
		return forageErr.Kind
	}
	return KindGeneral
}

// IsPermanent reports whether retrying err cannot help.
// Only system errors (and plain errors from the OS layer) are considered transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var forageErr *ForageError
	if !errors.As(err, &forageErr) {
		return false
	}
	switch forageErr.Kind {
	case KindSystem, KindGeneral:
		return false
	default:
		return true
	}
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var forageErr *ForageError
	if errors.As(err, &forageErr) {
		return forageErr.ExitCode()
	}
	return ExitGeneralError
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join is errors.Join, re-exported so callers need not import both packages.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
