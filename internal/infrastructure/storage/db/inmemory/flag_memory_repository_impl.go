package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
)

type flagRepositoryImpl struct {
	locker *sync.RWMutex
	flags  []domain.SuspiciousActivityFlag
}

// NewFlagRepositoryImpl returns an empty in-memory FlagStore.
func NewFlagRepositoryImpl() domain.FlagStore {
	return &flagRepositoryImpl{locker: &sync.RWMutex{}}
}

func (r *flagRepositoryImpl) Add(
	_ context.Context, flag domain.SuspiciousActivityFlag,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	r.flags = append(r.flags, flag)
	return nil
}

func (r *flagRepositoryImpl) ListByUser(
	_ context.Context, userID string, unresolvedOnly bool,
) ([]domain.SuspiciousActivityFlag, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	flags := make([]domain.SuspiciousActivityFlag, 0)
	for _, f := range r.flags {
		if f.UserID != userID || (unresolvedOnly && f.Resolved) {
			continue
		}
		flags = append(flags, f)
	}
	return flags, nil
}

func (r *flagRepositoryImpl) ListInRange(
	_ context.Context, dateRange domain.DateRange,
) ([]domain.SuspiciousActivityFlag, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	flags := make([]domain.SuspiciousActivityFlag, 0)
	for _, f := range r.flags {
		if dateRange.Contains(f.DetectedAt) {
			flags = append(flags, f)
		}
	}
	sort.SliceStable(flags, func(i, j int) bool {
		return flags[i].DetectedAt.Before(flags[j].DetectedAt)
	})
	return flags, nil
}

func (r *flagRepositoryImpl) Resolve(
	_ context.Context, flagID string,
) (*domain.SuspiciousActivityFlag, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	for i := range r.flags {
		if r.flags[i].ID == flagID {
			r.flags[i].Resolved = true
			f := r.flags[i]
			return &f, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}
