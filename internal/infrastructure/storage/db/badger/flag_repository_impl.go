package dbbadger

import (
	"context"

	"github.com/dgraph-io/badger/v3"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type suspiciousActivityFlag struct {
	ID         string
	UserID     string
	Reason     string
	Severity   string
	RiskScore  int
	DetectedAt int64
	Resolved   bool
}

type flagRepositoryImpl struct {
	store *badgerhold.Store
}

// NewFlagRepositoryImpl returns a badger FlagStore.
func NewFlagRepositoryImpl(store *badgerhold.Store) domain.FlagStore {
	return flagRepositoryImpl{store}
}

func (r flagRepositoryImpl) Add(
	_ context.Context, flag domain.SuspiciousActivityFlag,
) error {
	return r.store.Insert(flag.ID, &suspiciousActivityFlag{
		ID:         flag.ID,
		UserID:     flag.UserID,
		Reason:     flag.Reason,
		Severity:   string(flag.Severity),
		RiskScore:  flag.RiskScore,
		DetectedAt: toUnix(flag.DetectedAt),
		Resolved:   flag.Resolved,
	})
}

func (r flagRepositoryImpl) ListByUser(
	_ context.Context, userID string, unresolvedOnly bool,
) ([]domain.SuspiciousActivityFlag, error) {
	query := badgerhold.Where("UserID").Eq(userID)
	if unresolvedOnly {
		query = query.And("Resolved").Eq(false)
	}
	return r.findFlags(query.SortBy("DetectedAt"))
}

func (r flagRepositoryImpl) ListInRange(
	_ context.Context, dateRange domain.DateRange,
) ([]domain.SuspiciousActivityFlag, error) {
	query := badgerhold.Where("DetectedAt").Ge(toUnix(dateRange.Start)).
		And("DetectedAt").Le(toUnix(dateRange.End)).
		SortBy("DetectedAt")

	return r.findFlags(query)
}

func (r flagRepositoryImpl) Resolve(
	_ context.Context, flagID string,
) (*domain.SuspiciousActivityFlag, error) {
	var resolved *domain.SuspiciousActivityFlag
	err := update(r.store, func(tx *badger.Txn) error {
		var f suspiciousActivityFlag
		if err := r.store.TxGet(tx, flagID, &f); err != nil {
			if err == badgerhold.ErrNotFound {
				return domain.ErrRecordNotFound
			}
			return err
		}
		f.Resolved = true
		if err := r.store.TxUpdate(tx, flagID, &f); err != nil {
			return err
		}
		flag := f.toDomain()
		resolved = &flag
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (r flagRepositoryImpl) findFlags(
	query *badgerhold.Query,
) ([]domain.SuspiciousActivityFlag, error) {
	var stored []suspiciousActivityFlag
	if err := r.store.Find(&stored, query); err != nil {
		return nil, err
	}

	flags := make([]domain.SuspiciousActivityFlag, 0, len(stored))
	for _, f := range stored {
		flags = append(flags, f.toDomain())
	}
	return flags, nil
}

func (f suspiciousActivityFlag) toDomain() domain.SuspiciousActivityFlag {
	return domain.SuspiciousActivityFlag{
		ID:         f.ID,
		UserID:     f.UserID,
		Reason:     f.Reason,
		Severity:   domain.Severity(f.Severity),
		RiskScore:  f.RiskScore,
		DetectedAt: fromUnix(f.DetectedAt),
		Resolved:   f.Resolved,
	}
}
