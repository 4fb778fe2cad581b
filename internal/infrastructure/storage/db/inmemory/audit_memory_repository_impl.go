package inmemory

import (
	"context"
	"sync"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
)

type auditRepositoryImpl struct {
	locker *sync.RWMutex
	events []domain.AuditEvent
}

// NewAuditRepositoryImpl returns an empty in-memory AuditLogSink.
func NewAuditRepositoryImpl() domain.AuditLogSink {
	return &auditRepositoryImpl{locker: &sync.RWMutex{}}
}

func (r *auditRepositoryImpl) Append(
	_ context.Context, event domain.AuditEvent,
) error {
	r.locker.Lock()
	defer r.locker.Unlock()

	r.events = append(r.events, copyEvent(event))
	return nil
}

func (r *auditRepositoryImpl) Query(
	_ context.Context, filter domain.AuditFilter,
) ([]domain.AuditEvent, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	events := make([]domain.AuditEvent, 0)
	for _, e := range r.events {
		if filter.Matches(e) {
			events = append(events, copyEvent(e))
		}
	}
	domain.SortAuditEvents(events)
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

func (r *auditRepositoryImpl) Last(_ context.Context) (*domain.AuditEvent, error) {
	r.locker.RLock()
	defer r.locker.RUnlock()

	if len(r.events) == 0 {
		return nil, nil
	}
	last := r.events[0]
	for _, e := range r.events[1:] {
		if e.Sequence > last.Sequence {
			last = e
		}
	}
	ev := copyEvent(last)
	return &ev, nil
}

func copyEvent(e domain.AuditEvent) domain.AuditEvent {
	cp := e
	if e.Context != nil {
		cp.Context = make(map[string]string, len(e.Context))
		for k, v := range e.Context {
			cp.Context[k] = v
		}
	}
	return cp
}
