package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
)

type withdrawalRepositoryImpl struct {
	locker      *sync.RWMutex
	withdrawals map[string]domain.WithdrawalRecord
}

// NewWithdrawalRepositoryImpl returns an empty in-memory
// WithdrawalStatusStore.
func NewWithdrawalRepositoryImpl() domain.WithdrawalStatusStore {
	return &withdrawalRepositoryImpl{
		locker:      &sync.RWMutex{},
		withdrawals: make(map[string]domain.WithdrawalRecord),
	}
}

func (r *withdrawalRepositoryImpl) Get(
	_ context.Context, requestID string,
) (*domain.WithdrawalRecord, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	w, ok := r.withdrawals[requestID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &w, nil
}

func (r *withdrawalRepositoryImpl) Put(
	_ context.Context, record domain.WithdrawalRecord,
) error {
	if record.RequestID == "" {
		return ErrEmptyRequestID
	}

	r.locker.Lock()
	defer r.locker.Unlock()

	r.withdrawals[record.RequestID] = record
	return nil
}

func (r *withdrawalRepositoryImpl) GetByTransactionID(
	_ context.Context, txID string,
) (*domain.WithdrawalRecord, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	for _, w := range r.withdrawals {
		if txID != "" && w.TransactionID == txID {
			found := w
			return &found, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *withdrawalRepositoryImpl) ListByUser(
	_ context.Context, userID string, since time.Time,
) ([]domain.WithdrawalRecord, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	withdrawals := make([]domain.WithdrawalRecord, 0)
	for _, w := range r.withdrawals {
		if w.UserID == userID && !w.CreatedAt.Before(since) {
			withdrawals = append(withdrawals, w)
		}
	}
	sort.Slice(withdrawals, func(i, j int) bool {
		return withdrawals[i].CreatedAt.Before(withdrawals[j].CreatedAt)
	})
	return withdrawals, nil
}
