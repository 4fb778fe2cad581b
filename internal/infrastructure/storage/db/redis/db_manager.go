package dbredis

import (
	"github.com/redis/go-redis/v9"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
)

type repoManager struct {
	ports.RepoManager
	client *redis.Client

	idempotencyStore domain.IdempotencyStore
	rateLimitStore   domain.RateLimitStore
}

// NewRepoManager moves the idempotency and rate limit stores of base to
// Redis so that they are shared by every daemon instance. The other stores
// are served by base.
func NewRepoManager(
	client *redis.Client, prefix string, base ports.RepoManager,
) ports.RepoManager {
	return &repoManager{
		RepoManager:      base,
		client:           client,
		idempotencyStore: NewIdempotencyRepositoryImpl(client, prefix),
		rateLimitStore:   NewRateLimitRepositoryImpl(client, prefix),
	}
}

func (r *repoManager) IdempotencyStore() domain.IdempotencyStore {
	return r.idempotencyStore
}

func (r *repoManager) RateLimitStore() domain.RateLimitStore {
	return r.rateLimitStore
}

func (r *repoManager) Close() {
	r.client.Close()
	r.RepoManager.Close()
}
