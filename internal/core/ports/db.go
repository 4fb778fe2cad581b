package ports

import "github.com/shielded-exchange/withdrawd/internal/core/domain"

// RepoManager gives access to every store used by the control plane. Each
// store is independently pluggable.
type RepoManager interface {
	IdempotencyStore() domain.IdempotencyStore
	RateLimitStore() domain.RateLimitStore
	AuditLogSink() domain.AuditLogSink
	WithdrawalStatusStore() domain.WithdrawalStatusStore
	FlagStore() domain.FlagStore

	Close()
}
