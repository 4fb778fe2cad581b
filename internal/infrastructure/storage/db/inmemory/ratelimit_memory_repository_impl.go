package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
)

// entries older than this are dropped on write.
const usageRetention = 25 * time.Hour

type usageLedger struct {
	entries  []domain.UsageEntry
	recorded map[string]time.Time
	last     time.Time
}

type rateLimitRepositoryImpl struct {
	locker  *sync.RWMutex
	ledgers map[string]*usageLedger
}

// NewRateLimitRepositoryImpl returns an empty in-memory RateLimitStore.
func NewRateLimitRepositoryImpl() domain.RateLimitStore {
	return &rateLimitRepositoryImpl{
		locker:  &sync.RWMutex{},
		ledgers: make(map[string]*usageLedger),
	}
}

func (r *rateLimitRepositoryImpl) GetUsage(
	_ context.Context, key string, now time.Time,
) (*domain.RateLimitUsage, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	ledger, ok := r.ledgers[key]
	if !ok {
		usage := domain.NewRateLimitUsage(nil, time.Time{}, now)
		return &usage, nil
	}
	usage := domain.NewRateLimitUsage(ledger.entries, ledger.last, now)
	return &usage, nil
}

func (r *rateLimitRepositoryImpl) IncrementUsage(
	_ context.Context, key string, entry domain.UsageEntry,
) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if entry.RequestID == "" {
		return false, ErrEmptyRequestID
	}

	r.locker.Lock()
	defer r.locker.Unlock()

	ledger, ok := r.ledgers[key]
	if !ok {
		ledger = &usageLedger{recorded: make(map[string]time.Time)}
		r.ledgers[key] = ledger
	}
	if _, ok := ledger.recorded[entry.RequestID]; ok {
		return false, nil
	}

	ledger.prune(entry.Timestamp.Add(-usageRetention))
	ledger.entries = append(ledger.entries, entry)
	ledger.recorded[entry.RequestID] = entry.Timestamp
	if entry.Timestamp.After(ledger.last) {
		ledger.last = entry.Timestamp
	}
	return true, nil
}

func (l *usageLedger) prune(before time.Time) {
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.Timestamp.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	for id, ts := range l.recorded {
		if ts.Before(before) {
			delete(l.recorded, id)
		}
	}
}
