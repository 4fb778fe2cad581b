package domain

import "time"

// IdempotencyStatus is the lifecycle state of an idempotency record.
// IN_PROGRESS -> COMMITTED and IN_PROGRESS -> FAILED are the only
// transitions, both terminal.
type IdempotencyStatus string

const (
	IdempotencyInProgress IdempotencyStatus = "IN_PROGRESS"
	IdempotencyCommitted  IdempotencyStatus = "COMMITTED"
	IdempotencyFailed     IdempotencyStatus = "FAILED"
)

// UnknownOutcomeReason prefixes the failure reason of a reservation whose
// submission outcome could not be determined.
const UnknownOutcomeReason = "unknown_outcome: reconcile manually"

// IdempotencyRecord binds a request id to a single outcome. Result is set
// iff Status is COMMITTED, FailureReason iff it is FAILED.
type IdempotencyRecord struct {
	RequestID     string
	Fingerprint   string
	Status        IdempotencyStatus
	Result        *WithdrawalResult
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTerminal returns whether the record reached COMMITTED or FAILED.
func (r IdempotencyRecord) IsTerminal() bool {
	return r.Status == IdempotencyCommitted || r.Status == IdempotencyFailed
}

// StoredResult returns the outcome to hand back to a replayed request.
func (r IdempotencyRecord) StoredResult() *WithdrawalResult {
	switch r.Status {
	case IdempotencyCommitted:
		if r.Result != nil {
			res := *r.Result
			return &res
		}
	case IdempotencyFailed:
		return &WithdrawalResult{
			Success:     false,
			RequestID:   r.RequestID,
			CompletedAt: r.UpdatedAt,
			Error:       r.FailureReason,
		}
	}
	return nil
}

// ReservationKind tells the caller of Reserve what it got.
type ReservationKind int

const (
	NewReservation ReservationKind = iota
	AlreadyInProgress
	AlreadyCommitted
	AlreadyFailed
)

func (k ReservationKind) String() string {
	switch k {
	case NewReservation:
		return "NewReservation"
	case AlreadyInProgress:
		return "AlreadyInProgress"
	case AlreadyCommitted:
		return "AlreadyCommitted"
	case AlreadyFailed:
		return "AlreadyFailed"
	default:
		return "Unknown"
	}
}

// ReservationOutcome is the result of reserving a request id. Record is the
// stored record, either the new one or the pre-existing one.
type ReservationOutcome struct {
	Kind   ReservationKind
	Record IdempotencyRecord
}

// ReservationKindFor maps the status of an existing record to the outcome
// reported to a caller that lost the reservation race.
func ReservationKindFor(status IdempotencyStatus) ReservationKind {
	switch status {
	case IdempotencyCommitted:
		return AlreadyCommitted
	case IdempotencyFailed:
		return AlreadyFailed
	default:
		return AlreadyInProgress
	}
}
