package dbbadger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"
)

type usageEntry struct {
	Key       string
	RequestID string
	Amount    string
	Timestamp int64
}

type usageMarker struct {
	Key  string
	Last int64
}

type rateLimitRepositoryImpl struct {
	store *badgerhold.Store
}

// NewRateLimitRepositoryImpl returns a badger RateLimitStore. Every counted
// withdrawal is kept as an entry keyed by usage key and request id.
func NewRateLimitRepositoryImpl(store *badgerhold.Store) domain.RateLimitStore {
	return rateLimitRepositoryImpl{store}
}

func (r rateLimitRepositoryImpl) GetUsage(
	_ context.Context, key string, now time.Time,
) (*domain.RateLimitUsage, error) {
	query := badgerhold.Where("Key").Eq(key).
		And("Timestamp").Ge(toUnix(now.Add(-24 * time.Hour)))

	var stored []usageEntry
	if err := r.store.Find(&stored, query); err != nil {
		return nil, err
	}

	var marker usageMarker
	if err := r.store.Get(key, &marker); err != nil &&
		err != badgerhold.ErrNotFound {
		return nil, err
	}

	entries := make([]domain.UsageEntry, 0, len(stored))
	for _, e := range stored {
		amount, _ := decimal.NewFromString(e.Amount)
		entries = append(entries, domain.UsageEntry{
			RequestID: e.RequestID,
			Amount:    amount,
			Timestamp: fromUnix(e.Timestamp),
		})
	}
	usage := domain.NewRateLimitUsage(entries, fromUnix(marker.Last), now)
	return &usage, nil
}

func (r rateLimitRepositoryImpl) IncrementUsage(
	_ context.Context, key string, entry domain.UsageEntry,
) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if entry.RequestID == "" {
		return false, ErrEmptyRequestID
	}

	var counted bool
	err := update(r.store, func(tx *badger.Txn) error {
		err := r.store.TxInsert(tx, key+"/"+entry.RequestID, &usageEntry{
			Key:       key,
			RequestID: entry.RequestID,
			Amount:    entry.Amount.String(),
			Timestamp: toUnix(entry.Timestamp),
		})
		if err == badgerhold.ErrKeyExists {
			counted = false
			return nil
		}
		if err != nil {
			return err
		}

		var marker usageMarker
		if err := r.store.TxGet(tx, key, &marker); err != nil &&
			err != badgerhold.ErrNotFound {
			return err
		}
		if ts := toUnix(entry.Timestamp); ts > marker.Last {
			marker = usageMarker{Key: key, Last: ts}
			if err := r.store.TxUpsert(tx, key, &marker); err != nil {
				return err
			}
		}
		counted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return counted, nil
}
