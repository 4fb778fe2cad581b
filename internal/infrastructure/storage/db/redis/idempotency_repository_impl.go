package dbredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
)

const maxTxRetries = 10

// ErrEmptyRequestID is returned when storing a record without request id.
var ErrEmptyRequestID = errors.New("request id must not be empty")

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type idempotencyRecord struct {
	RequestID     string                   `json:"requestId"`
	Fingerprint   string                   `json:"fingerprint"`
	Status        domain.IdempotencyStatus `json:"status"`
	Result        *domain.WithdrawalResult `json:"result,omitempty"`
	FailureReason string                   `json:"failureReason,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

type idempotencyRepositoryImpl struct {
	client *redis.Client
	prefix string
}

// NewIdempotencyRepositoryImpl returns an IdempotencyStore backed by Redis,
// shared by every daemon instance pointing at the same server. Reserve
// relies on SETNX, transitions on optimistic WATCH transactions.
func NewIdempotencyRepositoryImpl(
	client *redis.Client, prefix string,
) domain.IdempotencyStore {
	return &idempotencyRepositoryImpl{client, prefix}
}

func (r *idempotencyRepositoryImpl) Get(
	ctx context.Context, requestID string,
) (*domain.IdempotencyRecord, error) {
	return r.get(ctx, r.client, requestID)
}

func (r *idempotencyRepositoryImpl) Reserve(
	ctx context.Context, record domain.IdempotencyRecord,
) (*domain.IdempotencyRecord, bool, error) {
	if record.RequestID == "" {
		return nil, false, ErrEmptyRequestID
	}

	buf, err := json.Marshal(fromDomain(record))
	if err != nil {
		return nil, false, err
	}

	ok, err := r.client.SetNX(ctx, r.key(record.RequestID), buf, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reserve: %w", err)
	}
	if ok {
		rec := record
		return &rec, true, nil
	}

	existing, err := r.get(ctx, r.client, record.RequestID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *idempotencyRepositoryImpl) Commit(
	ctx context.Context, requestID string, result domain.WithdrawalResult,
) (*domain.IdempotencyRecord, error) {
	return r.transition(ctx, requestID, func(rec *idempotencyRecord) {
		rec.Status = domain.IdempotencyCommitted
		rec.Result = &result
	})
}

func (r *idempotencyRepositoryImpl) Fail(
	ctx context.Context, requestID, reason string,
) (*domain.IdempotencyRecord, error) {
	return r.transition(ctx, requestID, func(rec *idempotencyRecord) {
		rec.Status = domain.IdempotencyFailed
		rec.FailureReason = reason
	})
}

func (r *idempotencyRepositoryImpl) transition(
	ctx context.Context, requestID string, apply func(*idempotencyRecord),
) (*domain.IdempotencyRecord, error) {
	k := r.key(requestID)

	var stored *domain.IdempotencyRecord
	txf := func(tx *redis.Tx) error {
		rec, err := r.get(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if rec.IsTerminal() {
			stored = rec
			return nil
		}

		updated := fromDomain(*rec)
		apply(&updated)
		updated.UpdatedAt = time.Now().UTC()
		buf, err := json.Marshal(updated)
		if err != nil {
			return err
		}

		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, buf, 0)
			return nil
		}); err != nil {
			return err
		}
		stored = updated.toDomain()
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, k)
		if err == nil {
			return stored, nil
		}
		if err != redis.TxFailedErr {
			return nil, err
		}
	}
	return nil, fmt.Errorf("transition %s: too many concurrent updates", requestID)
}

func (r *idempotencyRepositoryImpl) get(
	ctx context.Context, c getter, requestID string,
) (*domain.IdempotencyRecord, error) {
	buf, err := c.Get(ctx, r.key(requestID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}

	var rec idempotencyRecord
	if err := json.Unmarshal(buf, &rec); err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r *idempotencyRepositoryImpl) key(requestID string) string {
	return key(r.prefix, "idempotency", requestID)
}

func fromDomain(r domain.IdempotencyRecord) idempotencyRecord {
	return idempotencyRecord{
		RequestID:     r.RequestID,
		Fingerprint:   r.Fingerprint,
		Status:        r.Status,
		Result:        r.Result,
		FailureReason: r.FailureReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r idempotencyRecord) toDomain() *domain.IdempotencyRecord {
	return &domain.IdempotencyRecord{
		RequestID:     r.RequestID,
		Fingerprint:   r.Fingerprint,
		Status:        r.Status,
		Result:        r.Result,
		FailureReason: r.FailureReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
