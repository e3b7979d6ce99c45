// Package errors defines the engine's typed failure surface: stable codes
// mapped to process exit codes and envelope error types, plus the
// classification taxonomy rendered to users.
package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type. Its integer value doubles
// as the process exit code, so scripted callers can branch without parsing
// messages.
type Code int

const (
	CodeSuccess  Code = 0
	CodeInternal Code = 1
	CodeUsage    Code = 2

	// Provider and transport failures.
	CodeAuth          Code = 10
	CodeRateLimited   Code = 11
	CodeUnavailable   Code = 12
	CodeUnsupported   Code = 13
	CodeStale         Code = 14
	CodePartialStrict Code = 15
	CodeBlocked       Code = 16
	CodeSigner        Code = 17

	// Execution engine failures.
	CodeActionPlan     Code = 20
	CodeActionSim      Code = 21
	CodeActionTimeout  Code = 22
	CodeActionReverted Code = 23
)

// TypeLabel is the snake_case error type written into response envelopes.
func (c Code) TypeLabel() string {
	switch c {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeStale:
		return "stale_data"
	case CodePartialStrict:
		return "partial_results"
	case CodeBlocked:
		return "command_blocked"
	case CodeSigner:
		return "signer_error"
	case CodeActionPlan:
		return "action_plan_error"
	case CodeActionSim:
		return "action_simulation_failed"
	case CodeActionTimeout:
		return "action_timeout"
	case CodeActionReverted:
		return "action_reverted"
	default:
		return "internal_error"
	}
}

// Error pairs a code with a human-readable message and an optional cause.
// The message is stable enough to assert on; the cause carries upstream
// detail for diagnostics.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// As unwraps err looking for a typed engine error anywhere in its chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// ExitCode resolves the process exit code for err. Untyped errors exit as
// internal failures; nil exits clean.
func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}
