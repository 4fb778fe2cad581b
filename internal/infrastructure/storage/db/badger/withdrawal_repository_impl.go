package dbbadger

import (
	"context"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"
)

type withdrawal struct {
	RequestID     string
	UserID        string
	ToAddress     string
	Amount        string
	State         string
	TransactionID string
	OperationID   string
	Fee           string
	Confirmations int
	Error         string
	CreatedAt     int64
	UpdatedAt     int64
}

type withdrawalRepositoryImpl struct {
	store *badgerhold.Store
}

// NewWithdrawalRepositoryImpl returns a badger WithdrawalStatusStore.
func NewWithdrawalRepositoryImpl(
	store *badgerhold.Store,
) domain.WithdrawalStatusStore {
	return withdrawalRepositoryImpl{store}
}

func (r withdrawalRepositoryImpl) Get(
	_ context.Context, requestID string,
) (*domain.WithdrawalRecord, error) {
	var w withdrawal
	if err := r.store.Get(requestID, &w); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return w.toDomain(), nil
}

func (r withdrawalRepositoryImpl) Put(
	_ context.Context, record domain.WithdrawalRecord,
) error {
	if record.RequestID == "" {
		return ErrEmptyRequestID
	}
	return r.store.Upsert(record.RequestID, &withdrawal{
		RequestID:     record.RequestID,
		UserID:        record.UserID,
		ToAddress:     record.ToAddress,
		Amount:        record.Amount.String(),
		State:         string(record.State),
		TransactionID: record.TransactionID,
		OperationID:   record.OperationID,
		Fee:           record.Fee.String(),
		Confirmations: record.Confirmations,
		Error:         record.Error,
		CreatedAt:     toUnix(record.CreatedAt),
		UpdatedAt:     toUnix(record.UpdatedAt),
	})
}

func (r withdrawalRepositoryImpl) GetByTransactionID(
	_ context.Context, txID string,
) (*domain.WithdrawalRecord, error) {
	if txID == "" {
		return nil, domain.ErrRecordNotFound
	}
	query := badgerhold.Where("TransactionID").Eq(txID).Limit(1)

	withdrawals, err := r.findWithdrawals(query)
	if err != nil {
		return nil, err
	}
	if len(withdrawals) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return &withdrawals[0], nil
}

func (r withdrawalRepositoryImpl) ListByUser(
	_ context.Context, userID string, since time.Time,
) ([]domain.WithdrawalRecord, error) {
	query := badgerhold.Where("UserID").Eq(userID).
		And("CreatedAt").Ge(toUnix(since)).
		SortBy("CreatedAt")

	return r.findWithdrawals(query)
}

func (r withdrawalRepositoryImpl) findWithdrawals(
	query *badgerhold.Query,
) ([]domain.WithdrawalRecord, error) {
	var stored []withdrawal
	if err := r.store.Find(&stored, query); err != nil {
		return nil, err
	}

	withdrawals := make([]domain.WithdrawalRecord, 0, len(stored))
	for _, w := range stored {
		withdrawals = append(withdrawals, *w.toDomain())
	}
	return withdrawals, nil
}

func (w withdrawal) toDomain() *domain.WithdrawalRecord {
	amount, _ := decimal.NewFromString(w.Amount)
	fee, _ := decimal.NewFromString(w.Fee)
	return &domain.WithdrawalRecord{
		RequestID:     w.RequestID,
		UserID:        w.UserID,
		ToAddress:     w.ToAddress,
		Amount:        amount,
		State:         domain.WithdrawalState(w.State),
		TransactionID: w.TransactionID,
		OperationID:   w.OperationID,
		Fee:           fee,
		Confirmations: w.Confirmations,
		Error:         w.Error,
		CreatedAt:     fromUnix(w.CreatedAt),
		UpdatedAt:     fromUnix(w.UpdatedAt),
	}
}
