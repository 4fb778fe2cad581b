package dbbadger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"
)

type idempotencyRecord struct {
	RequestID     string
	Fingerprint   string
	Status        string
	HasResult     bool
	Success       bool
	TransactionID string
	OperationID   string
	Fee           string
	CompletedAt   int64
	ResultError   string
	FailureReason string
	CreatedAt     int64
	UpdatedAt     int64
}

type idempotencyRepositoryImpl struct {
	store *badgerhold.Store
}

// NewIdempotencyRepositoryImpl returns a badger IdempotencyStore. Reserve
// runs in a serializable transaction so only one caller can create a record.
func NewIdempotencyRepositoryImpl(
	store *badgerhold.Store,
) domain.IdempotencyStore {
	return idempotencyRepositoryImpl{store}
}

func (r idempotencyRepositoryImpl) Get(
	_ context.Context, requestID string,
) (*domain.IdempotencyRecord, error) {
	var rec idempotencyRecord
	if err := r.store.Get(requestID, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return rec.toDomain(), nil
}

func (r idempotencyRepositoryImpl) Reserve(
	_ context.Context, record domain.IdempotencyRecord,
) (*domain.IdempotencyRecord, bool, error) {
	if record.RequestID == "" {
		return nil, false, ErrEmptyRequestID
	}

	var stored *domain.IdempotencyRecord
	var created bool
	err := update(r.store, func(tx *badger.Txn) error {
		var existing idempotencyRecord
		err := r.store.TxGet(tx, record.RequestID, &existing)
		if err == nil {
			stored, created = existing.toDomain(), false
			return nil
		}
		if err != badgerhold.ErrNotFound {
			return err
		}

		rec := newIdempotencyRecord(record)
		if err := r.store.TxInsert(tx, record.RequestID, rec); err != nil {
			return err
		}
		stored, created = rec.toDomain(), true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r idempotencyRepositoryImpl) Commit(
	_ context.Context, requestID string, result domain.WithdrawalResult,
) (*domain.IdempotencyRecord, error) {
	return r.transition(requestID, func(rec *idempotencyRecord) {
		rec.Status = string(domain.IdempotencyCommitted)
		rec.setResult(result)
	})
}

func (r idempotencyRepositoryImpl) Fail(
	_ context.Context, requestID, reason string,
) (*domain.IdempotencyRecord, error) {
	return r.transition(requestID, func(rec *idempotencyRecord) {
		rec.Status = string(domain.IdempotencyFailed)
		rec.FailureReason = reason
	})
}

func (r idempotencyRepositoryImpl) transition(
	requestID string, apply func(*idempotencyRecord),
) (*domain.IdempotencyRecord, error) {
	var stored *domain.IdempotencyRecord
	err := update(r.store, func(tx *badger.Txn) error {
		var rec idempotencyRecord
		if err := r.store.TxGet(tx, requestID, &rec); err != nil {
			if err == badgerhold.ErrNotFound {
				return domain.ErrRecordNotFound
			}
			return err
		}
		if rec.toDomain().IsTerminal() {
			stored = rec.toDomain()
			return nil
		}

		apply(&rec)
		rec.UpdatedAt = toUnix(time.Now().UTC())
		if err := r.store.TxUpdate(tx, requestID, &rec); err != nil {
			return err
		}
		stored = rec.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func newIdempotencyRecord(r domain.IdempotencyRecord) *idempotencyRecord {
	rec := &idempotencyRecord{
		RequestID:     r.RequestID,
		Fingerprint:   r.Fingerprint,
		Status:        string(r.Status),
		FailureReason: r.FailureReason,
		CreatedAt:     toUnix(r.CreatedAt),
		UpdatedAt:     toUnix(r.UpdatedAt),
	}
	if r.Result != nil {
		rec.setResult(*r.Result)
	}
	return rec
}

func (r *idempotencyRecord) setResult(result domain.WithdrawalResult) {
	r.HasResult = true
	r.Success = result.Success
	r.TransactionID = result.TransactionID
	r.OperationID = result.OperationID
	r.Fee = result.Fee.String()
	r.CompletedAt = toUnix(result.CompletedAt)
	r.ResultError = result.Error
}

func (r idempotencyRecord) toDomain() *domain.IdempotencyRecord {
	rec := &domain.IdempotencyRecord{
		RequestID:     r.RequestID,
		Fingerprint:   r.Fingerprint,
		Status:        domain.IdempotencyStatus(r.Status),
		FailureReason: r.FailureReason,
		CreatedAt:     fromUnix(r.CreatedAt),
		UpdatedAt:     fromUnix(r.UpdatedAt),
	}
	if r.HasResult {
		fee, _ := decimal.NewFromString(r.Fee)
		rec.Result = &domain.WithdrawalResult{
			Success:       r.Success,
			TransactionID: r.TransactionID,
			OperationID:   r.OperationID,
			Fee:           fee,
			RequestID:     r.RequestID,
			CompletedAt:   fromUnix(r.CompletedAt),
			Error:         r.ResultError,
		}
	}
	return rec
}
