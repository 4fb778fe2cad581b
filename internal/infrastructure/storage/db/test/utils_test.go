package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	dbbadger "github.com/shielded-exchange/withdrawd/internal/infrastructure/storage/db/badger"
	"github.com/shielded-exchange/withdrawd/internal/infrastructure/storage/db/inmemory"
	dbredis "github.com/shielded-exchange/withdrawd/internal/infrastructure/storage/db/redis"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type repoManager struct {
	Name      string
	DBManager ports.RepoManager
}

func createRepoManagers(t *testing.T) []repoManager {
	inmemoryDBManager := inmemory.NewRepoManager()
	badgerDBManager, err := dbbadger.NewRepoManager("", nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		badgerDBManager.Close()
	})

	return []repoManager{
		{
			Name:      "badger",
			DBManager: badgerDBManager,
		},
		{
			Name:      "inmemory",
			DBManager: inmemoryDBManager,
		},
	}
}

// newRedisClient returns a client to a local Redis or skips the test.
func newRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

// redisPrefix isolates the keys of a test run.
func redisPrefix() string {
	return "withdrawd-test-" + uuid.New().String()
}

func newRedisIdempotencyStore(t *testing.T) domain.IdempotencyStore {
	return dbredis.NewIdempotencyRepositoryImpl(newRedisClient(t), redisPrefix())
}

func newRedisRateLimitStore(t *testing.T) domain.RateLimitStore {
	return dbredis.NewRateLimitRepositoryImpl(newRedisClient(t), redisPrefix())
}

func randomID() string {
	return uuid.New().String()
}

func newInProgressRecord(requestID string) domain.IdempotencyRecord {
	now := time.Now().UTC()
	return domain.IdempotencyRecord{
		RequestID:   requestID,
		Fingerprint: "fingerprint",
		Status:      domain.IdempotencyInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newResult(requestID string) domain.WithdrawalResult {
	return domain.WithdrawalResult{
		Success:       true,
		TransactionID: randomID(),
		OperationID:   "opid-" + randomID(),
		Fee:           decimal.RequireFromString("0.0001"),
		RequestID:     requestID,
		CompletedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}
