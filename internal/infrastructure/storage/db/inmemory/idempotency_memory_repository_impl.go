package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
)

type idempotencyRepositoryImpl struct {
	locker  *sync.Mutex
	records map[string]domain.IdempotencyRecord
}

// NewIdempotencyRepositoryImpl returns an empty in-memory IdempotencyStore.
// Reserve is atomic as every operation runs under the same mutex.
func NewIdempotencyRepositoryImpl() domain.IdempotencyStore {
	return &idempotencyRepositoryImpl{
		locker:  &sync.Mutex{},
		records: make(map[string]domain.IdempotencyRecord),
	}
}

func (r *idempotencyRepositoryImpl) Get(
	_ context.Context, requestID string,
) (*domain.IdempotencyRecord, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	rec, ok := r.records[requestID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return copyRecord(rec), nil
}

func (r *idempotencyRepositoryImpl) Reserve(
	_ context.Context, record domain.IdempotencyRecord,
) (*domain.IdempotencyRecord, bool, error) {
	if record.RequestID == "" {
		return nil, false, ErrEmptyRequestID
	}

	r.locker.Lock()
	defer r.locker.Unlock()

	if existing, ok := r.records[record.RequestID]; ok {
		return copyRecord(existing), false, nil
	}
	r.records[record.RequestID] = *copyRecord(record)
	return copyRecord(record), true, nil
}

func (r *idempotencyRepositoryImpl) Commit(
	_ context.Context, requestID string, result domain.WithdrawalResult,
) (*domain.IdempotencyRecord, error) {
	return r.transition(requestID, func(rec *domain.IdempotencyRecord) {
		rec.Status = domain.IdempotencyCommitted
		rec.Result = &result
	})
}

func (r *idempotencyRepositoryImpl) Fail(
	_ context.Context, requestID, reason string,
) (*domain.IdempotencyRecord, error) {
	return r.transition(requestID, func(rec *domain.IdempotencyRecord) {
		rec.Status = domain.IdempotencyFailed
		rec.FailureReason = reason
	})
}

func (r *idempotencyRepositoryImpl) transition(
	requestID string, apply func(*domain.IdempotencyRecord),
) (*domain.IdempotencyRecord, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	rec, ok := r.records[requestID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	if rec.IsTerminal() {
		return copyRecord(rec), nil
	}

	apply(&rec)
	rec.UpdatedAt = time.Now().UTC()
	r.records[requestID] = rec
	return copyRecord(rec), nil
}

func copyRecord(rec domain.IdempotencyRecord) *domain.IdempotencyRecord {
	cp := rec
	if rec.Result != nil {
		res := *rec.Result
		cp.Result = &res
	}
	return &cp
}
