package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned when a date range starts after it ends.
	ErrInvalidRange = errors.New("invalid date range: start is after end")
	// ErrConcurrentRequest is returned when a request id is already being
	// processed by another caller. The caller should retry later.
	ErrConcurrentRequest = errors.New("a request with the same id is in progress")
	// ErrIdempotencyKeyMismatch is returned when a request id is reused with
	// a different payload.
	ErrIdempotencyKeyMismatch = errors.New("request id already used for a different withdrawal")
	// ErrRecordNotFound is returned by stores for unknown keys.
	ErrRecordNotFound = errors.New("record not found")
	// ErrAuditUnavailable is returned when an operation requires a durable
	// audit trail and the audit sink refused the event.
	ErrAuditUnavailable = errors.New("audit sink unavailable")
	// ErrComplianceDisabled is returned by compliance operations that cannot
	// run with compliance disabled.
	ErrComplianceDisabled = errors.New("compliance is disabled")
	// ErrUnknownOutcome is the sentinel matched by UnknownOutcomeError.
	ErrUnknownOutcome = errors.New("withdrawal outcome unknown")
	// ErrSubmission is the sentinel matched by SubmissionError.
	ErrSubmission = errors.New("withdrawal submission failed")
	// ErrValidation is the sentinel matched by ValidationError.
	ErrValidation = errors.New("invalid withdrawal request")
)

// ValidationError reports a malformed request. It is never retried
// automatically.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an invalid component configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// SubmissionError wraps a failure of the signer/broadcaster. Retrying with
// the same request id returns the recorded failure, never a second
// submission.
type SubmissionError struct {
	RequestID string
	Result    *WithdrawalResult
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s for request %s: %v", ErrSubmission, e.RequestID, e.Err)
}

func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmission
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// UnknownOutcomeError reports a submission whose result could not be
// determined. It requires manual reconciliation and must never be retried
// automatically.
type UnknownOutcomeError struct {
	RequestID   string
	OperationID string
	Err         error
}

func (e *UnknownOutcomeError) Error() string {
	msg := fmt.Sprintf("%s for request %s", ErrUnknownOutcome, e.RequestID)
	if e.OperationID != "" {
		msg += fmt.Sprintf(" (operation %s)", e.OperationID)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *UnknownOutcomeError) Is(target error) bool {
	return target == ErrUnknownOutcome
}

func (e *UnknownOutcomeError) Unwrap() error {
	return e.Err
}
