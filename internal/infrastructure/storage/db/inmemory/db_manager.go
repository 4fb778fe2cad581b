package inmemory

import (
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
)

type repoManager struct {
	idempotencyStore domain.IdempotencyStore
	rateLimitStore   domain.RateLimitStore
	auditSink        domain.AuditLogSink
	withdrawalStore  domain.WithdrawalStatusStore
	flagStore        domain.FlagStore
}

// NewRepoManager returns a RepoManager whose stores live in memory. It is
// meant for development and tests.
func NewRepoManager() ports.RepoManager {
	return &repoManager{
		idempotencyStore: NewIdempotencyRepositoryImpl(),
		rateLimitStore:   NewRateLimitRepositoryImpl(),
		auditSink:        NewAuditRepositoryImpl(),
		withdrawalStore:  NewWithdrawalRepositoryImpl(),
		flagStore:        NewFlagRepositoryImpl(),
	}
}

func (r *repoManager) IdempotencyStore() domain.IdempotencyStore {
	return r.idempotencyStore
}

func (r *repoManager) RateLimitStore() domain.RateLimitStore {
	return r.rateLimitStore
}

func (r *repoManager) AuditLogSink() domain.AuditLogSink {
	return r.auditSink
}

func (r *repoManager) WithdrawalStatusStore() domain.WithdrawalStatusStore {
	return r.withdrawalStore
}

func (r *repoManager) FlagStore() domain.FlagStore {
	return r.flagStore
}

func (r *repoManager) Close() {}
