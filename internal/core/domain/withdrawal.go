package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalState is the position of a request in the orchestrator's state
// machine. Received, Reserved and Submitted are transient.
type WithdrawalState string

const (
	StateReceived        WithdrawalState = "RECEIVED"
	StateRejected        WithdrawalState = "REJECTED"
	StateRateLimited     WithdrawalState = "RATE_LIMITED"
	StateVelocityBlocked WithdrawalState = "VELOCITY_BLOCKED"
	StateReserved        WithdrawalState = "RESERVED"
	StateSubmitted       WithdrawalState = "SUBMITTED"
	StateCompleted       WithdrawalState = "COMPLETED"
	StateFailed          WithdrawalState = "FAILED"
	StateReplayed        WithdrawalState = "REPLAYED"
)

// Withdrawal status values reported to callers polling a request.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusUnknown    = "unknown"
)

// MaxMemoSize is the size in bytes of a shielded output memo field.
const MaxMemoSize = 512

// WithdrawalRequest is immutable once accepted by the orchestrator.
type WithdrawalRequest struct {
	UserID      string
	FromAddress string
	ToAddress   string
	Amount      decimal.Decimal
	Memo        []byte
	RequestID   string
}

// Fingerprint identifies the payload of a request so that a reused request id
// carrying a different payload can be told apart from a genuine retry.
func (r WithdrawalRequest) Fingerprint() string {
	h := sha256.New()
	for _, field := range []string{
		r.UserID, r.FromAddress, r.ToAddress, r.Amount.String(),
		hex.EncodeToString(r.Memo),
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WithdrawalResult is bound permanently to the request id that produced it.
type WithdrawalResult struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transactionId,omitempty"`
	OperationID   string          `json:"operationId,omitempty"`
	Fee           decimal.Decimal `json:"fee"`
	RequestID     string          `json:"requestId"`
	CompletedAt   time.Time       `json:"completedAt"`
	Error         string          `json:"error,omitempty"`
}

// WithdrawalRecord is the persisted view of a withdrawal, kept by the
// WithdrawalStatusStore and used as per-user withdrawal history.
type WithdrawalRecord struct {
	RequestID     string
	UserID        string
	ToAddress     string
	Amount        decimal.Decimal
	State         WithdrawalState
	TransactionID string
	OperationID   string
	Fee           decimal.Decimal
	Confirmations int
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WithdrawalStatus is the caller facing status of a withdrawal.
type WithdrawalStatus struct {
	Status        string    `json:"status"`
	TransactionID string    `json:"transactionId,omitempty"`
	Confirmations int       `json:"confirmations"`
	Error         string    `json:"error,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FeeEstimate is the cost of a withdrawal as reported by a fee estimator.
type FeeEstimate struct {
	FeeZec         decimal.Decimal `json:"feeZec"`
	FeeZatoshis    int64           `json:"feeZatoshis"`
	LogicalActions int             `json:"logicalActions"`
	IsApproximate  bool            `json:"isApproximate"`
}

// WithdrawalOutcome is what the orchestrator returns for a request that was
// not refused with an error. Policy blocks and replays are outcomes.
type WithdrawalOutcome struct {
	State         WithdrawalState      `json:"state"`
	Result        *WithdrawalResult    `json:"result,omitempty"`
	RateLimit     *RateLimitResult     `json:"rateLimit,omitempty"`
	Velocity      *VelocityCheckResult `json:"velocity,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	AuditDegraded bool                 `json:"auditDegraded"`
}

// IsFinal returns whether the record reached a state no later call of the
// orchestrator moves it out of.
func (s WithdrawalState) IsFinal() bool {
	return s != StateReceived && s != StateReserved && s != StateSubmitted
}

// HoldsReservation returns whether the state belongs to a request that won
// the reservation of its request id. Such a record must not be replaced by
// the block of a later caller reusing the id.
func (s WithdrawalState) HoldsReservation() bool {
	return s == StateReserved || s == StateSubmitted ||
		s == StateCompleted || s == StateFailed
}
