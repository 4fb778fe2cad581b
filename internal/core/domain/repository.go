package domain

import (
	"context"
	"time"
)

// IdempotencyStore persists idempotency records. Implementations must make
// Reserve an atomic create-if-absent.
type IdempotencyStore interface {
	// Get returns ErrRecordNotFound for unknown request ids.
	Get(ctx context.Context, requestID string) (*IdempotencyRecord, error)
	// Reserve stores the record if no record exists for its request id and
	// returns it with true. Otherwise it returns the existing record with
	// false.
	Reserve(
		ctx context.Context, record IdempotencyRecord,
	) (*IdempotencyRecord, bool, error)
	// Commit moves an IN_PROGRESS record to COMMITTED. A terminal record is
	// returned unchanged.
	Commit(
		ctx context.Context, requestID string, result WithdrawalResult,
	) (*IdempotencyRecord, error)
	// Fail moves an IN_PROGRESS record to FAILED. A terminal record is
	// returned unchanged.
	Fail(
		ctx context.Context, requestID, reason string,
	) (*IdempotencyRecord, error)
}

// RateLimitStore persists the committed withdrawals counted by the rate
// limiter, per usage key.
type RateLimitStore interface {
	// GetUsage returns the usage of the key as seen at now.
	GetUsage(ctx context.Context, key string, now time.Time) (*RateLimitUsage, error)
	// IncrementUsage counts the entry against the key. It is keyed by the
	// entry's request id: recording the same request twice is a no-op that
	// returns false.
	IncrementUsage(ctx context.Context, key string, entry UsageEntry) (bool, error)
}

// AuditLogSink is the append-only destination of audit events.
type AuditLogSink interface {
	Append(ctx context.Context, event AuditEvent) error
	// Query returns the matching events ordered by timestamp, then sequence.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
	// Last returns the event with the highest sequence, or nil if the sink
	// is empty.
	Last(ctx context.Context) (*AuditEvent, error)
}

// WithdrawalStatusStore persists the status of withdrawals.
type WithdrawalStatusStore interface {
	// Get returns ErrRecordNotFound for unknown request ids.
	Get(ctx context.Context, requestID string) (*WithdrawalRecord, error)
	Put(ctx context.Context, record WithdrawalRecord) error
	GetByTransactionID(ctx context.Context, txID string) (*WithdrawalRecord, error)
	// ListByUser returns the user's withdrawals created at or after since,
	// oldest first.
	ListByUser(
		ctx context.Context, userID string, since time.Time,
	) ([]WithdrawalRecord, error)
}

// FlagStore persists suspicious activity flags.
type FlagStore interface {
	Add(ctx context.Context, flag SuspiciousActivityFlag) error
	// ListByUser returns the user's flags, optionally only unresolved ones.
	ListByUser(
		ctx context.Context, userID string, unresolvedOnly bool,
	) ([]SuspiciousActivityFlag, error)
	// ListInRange returns the flags detected within the range, oldest first.
	ListInRange(ctx context.Context, r DateRange) ([]SuspiciousActivityFlag, error)
	// Resolve returns ErrRecordNotFound for unknown flag ids.
	Resolve(ctx context.Context, flagID string) (*SuspiciousActivityFlag, error)
}
