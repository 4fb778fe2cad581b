package db_test

import (
	"sync"
	"testing"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRepositoryImplementations(t *testing.T) {
	repositories := createRepoManagers(t)

	for i := range repositories {
		repo := repositories[i]

		t.Run(repo.Name, func(t *testing.T) {
			testIdempotencyStore(t, repo.DBManager.IdempotencyStore())
		})
	}

	t.Run("redis", func(t *testing.T) {
		testIdempotencyStore(t, newRedisIdempotencyStore(t))
	})
}

func testIdempotencyStore(t *testing.T, store domain.IdempotencyStore) {
	t.Run("testReserveOnce", func(t *testing.T) {
		testReserveOnce(t, store)
	})

	t.Run("testConcurrentReserve", func(t *testing.T) {
		testConcurrentReserve(t, store)
	})

	t.Run("testCommitIsOneShot", func(t *testing.T) {
		testCommitIsOneShot(t, store)
	})

	t.Run("testFailIsOneShot", func(t *testing.T) {
		testFailIsOneShot(t, store)
	})

	t.Run("testUnknownRecord", func(t *testing.T) {
		testUnknownRecord(t, store)
	})
}

func testReserveOnce(t *testing.T, store domain.IdempotencyStore) {
	requestID := randomID()

	rec, created, err := store.Reserve(ctx, newInProgressRecord(requestID))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, domain.IdempotencyInProgress, rec.Status)

	rec, created, err = store.Reserve(ctx, newInProgressRecord(requestID))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, requestID, rec.RequestID)
	require.Equal(t, domain.IdempotencyInProgress, rec.Status)

	got, err := store.Get(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, "fingerprint", got.Fingerprint)
}

func testConcurrentReserve(t *testing.T, store domain.IdempotencyStore) {
	requestID := randomID()
	numCallers := 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	wg.Add(numCallers)
	for i := 0; i < numCallers; i++ {
		go func() {
			defer wg.Done()
			_, created, err := store.Reserve(ctx, newInProgressRecord(requestID))
			assert.NoError(t, err)
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)
}

func testCommitIsOneShot(t *testing.T, store domain.IdempotencyStore) {
	requestID := randomID()
	_, _, err := store.Reserve(ctx, newInProgressRecord(requestID))
	require.NoError(t, err)

	result := newResult(requestID)
	rec, err := store.Commit(ctx, requestID, result)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyCommitted, rec.Status)
	require.NotNil(t, rec.Result)
	require.Equal(t, result.TransactionID, rec.Result.TransactionID)
	require.True(t, result.Fee.Equal(rec.Result.Fee))

	rec, err = store.Commit(ctx, requestID, newResult(requestID))
	require.NoError(t, err)
	require.Equal(t, result.TransactionID, rec.Result.TransactionID)

	rec, err = store.Fail(ctx, requestID, "late failure")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyCommitted, rec.Status)
	require.Empty(t, rec.FailureReason)

	rec, created, err := store.Reserve(ctx, newInProgressRecord(requestID))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, domain.IdempotencyCommitted, rec.Status)
}

func testFailIsOneShot(t *testing.T, store domain.IdempotencyStore) {
	requestID := randomID()
	_, _, err := store.Reserve(ctx, newInProgressRecord(requestID))
	require.NoError(t, err)

	rec, err := store.Fail(ctx, requestID, domain.UnknownOutcomeReason)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyFailed, rec.Status)
	require.Equal(t, domain.UnknownOutcomeReason, rec.FailureReason)

	rec, err = store.Commit(ctx, requestID, newResult(requestID))
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyFailed, rec.Status)
	require.Nil(t, rec.Result)
}

func testUnknownRecord(t *testing.T, store domain.IdempotencyStore) {
	_, err := store.Get(ctx, randomID())
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, err = store.Commit(ctx, randomID(), newResult("x"))
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, err = store.Fail(ctx, randomID(), "reason")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	_, _, err = store.Reserve(ctx, newInProgressRecord(""))
	require.Error(t, err)
}
