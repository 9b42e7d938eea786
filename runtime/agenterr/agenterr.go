// Package agenterr defines the error taxonomy shared by the orchestration
// core. Callers classify failures with errors.Is against the sentinel values
// and extract capability context with errors.As on *OperationError.
package agenterr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates a referenced capability, operation, workflow or
	// session does not exist. Never retried.
	ErrNotFound = errors.New("not found")
	// ErrSessionExpired indicates a conversational session exceeded its
	// inactivity timeout and was discarded.
	ErrSessionExpired = errors.New("session expired")
	// ErrDependencyViolation indicates a workflow step ran before one of its
	// prerequisites completed.
	ErrDependencyViolation = errors.New("dependency violation")
	// ErrRoutingAmbiguous signals that no capability matched the input with
	// enough confidence to run it. It drives the clarification path rather
	// than reporting a failure.
	ErrRoutingAmbiguous = errors.New("routing ambiguous")
)

// OperationError reports a failed capability operation. It keeps enough
// context for a user to retry by re-issuing the same command. Nested causes
// are preserved so errors.Is/As reach the original failure.
type OperationError struct {
	// Capability is the id of the capability that failed.
	Capability string
	// Operation is the id of the operation that failed.
	Operation string
	// Command is the invocation command of the operation, if any.
	Command string
	// Input is the raw input that was attempted.
	Input string
	// Message is the human readable summary of the failure.
	Message string
	// Cause is the underlying error.
	Cause error
}

// NotFound returns an error wrapping ErrNotFound that names the missing
// entity, e.g. NotFound("capability", "social").
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// Expired returns an error wrapping ErrSessionExpired for the given session.
func Expired(sessionID string) error {
	return fmt.Errorf("session %q: %w", sessionID, ErrSessionExpired)
}

// DependencyViolation returns an error wrapping ErrDependencyViolation that
// names the step and the unsatisfied prerequisite.
func DependencyViolation(stepID, prerequisite string) error {
	return fmt.Errorf("step %q requires %q to be completed: %w", stepID, prerequisite, ErrDependencyViolation)
}

// Operation builds an OperationError. When message is empty the cause's
// message is used.
func Operation(capability, operation, input string, cause error, message string) *OperationError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	if message == "" {
		message = "operation failed"
	}
	return &OperationError{
		Capability: capability,
		Operation:  operation,
		Input:      input,
		Message:    message,
		Cause:      cause,
	}
}

// FromError returns err as an *OperationError. Errors that already carry
// operation context are returned unchanged; other errors are wrapped with the
// given capability and operation.
func FromError(capability, operation, input string, err error) *OperationError {
	if err == nil {
		return nil
	}
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe
	}
	return Operation(capability, operation, input, err, "")
}

// Error implements error.
func (e *OperationError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Capability)
	if e.Operation != "" {
		b.WriteByte('.')
		b.WriteString(e.Operation)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retry returns the text a user can send to attempt the operation again.
func (e *OperationError) Retry() string {
	if e == nil {
		return ""
	}
	if e.Command == "" {
		return e.Input
	}
	if e.Input == "" {
		return e.Command
	}
	return e.Command + " " + e.Input
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsExpired reports whether err is (or wraps) ErrSessionExpired.
func IsExpired(err error) bool { return errors.Is(err, ErrSessionExpired) }
