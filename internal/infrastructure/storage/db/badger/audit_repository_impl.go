package dbbadger

import (
	"context"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type auditEvent struct {
	ID               string
	Sequence         uint64
	Type             string
	Severity         string
	Timestamp        int64
	UserID           string
	Context          map[string]string
	RelatedRequestID string
	PrevHash         string
	Hash             string
}

type auditRepositoryImpl struct {
	store *badgerhold.Store
}

// NewAuditRepositoryImpl returns a badger AuditLogSink. Events are keyed by
// sequence and never updated.
func NewAuditRepositoryImpl(store *badgerhold.Store) domain.AuditLogSink {
	return auditRepositoryImpl{store}
}

func (r auditRepositoryImpl) Append(
	_ context.Context, event domain.AuditEvent,
) error {
	return r.store.Insert(event.Sequence, &auditEvent{
		ID:               event.ID,
		Sequence:         event.Sequence,
		Type:             string(event.Type),
		Severity:         string(event.Severity),
		Timestamp:        toUnix(event.Timestamp),
		UserID:           event.UserID,
		Context:          event.Context,
		RelatedRequestID: event.RelatedRequestID,
		PrevHash:         event.PrevHash,
		Hash:             event.Hash,
	})
}

func (r auditRepositoryImpl) Query(
	_ context.Context, filter domain.AuditFilter,
) ([]domain.AuditEvent, error) {
	query := &badgerhold.Query{}
	switch {
	case !filter.From.IsZero() && !filter.To.IsZero():
		query = badgerhold.Where("Timestamp").Ge(toUnix(filter.From)).
			And("Timestamp").Le(toUnix(filter.To))
	case !filter.From.IsZero():
		query = badgerhold.Where("Timestamp").Ge(toUnix(filter.From))
	case !filter.To.IsZero():
		query = badgerhold.Where("Timestamp").Le(toUnix(filter.To))
	}

	var stored []auditEvent
	if err := r.store.Find(&stored, query); err != nil {
		return nil, err
	}

	events := make([]domain.AuditEvent, 0, len(stored))
	for _, e := range stored {
		event := e.toDomain()
		if filter.Matches(event) {
			events = append(events, event)
		}
	}
	domain.SortAuditEvents(events)
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

func (r auditRepositoryImpl) Last(_ context.Context) (*domain.AuditEvent, error) {
	query := (&badgerhold.Query{}).SortBy("Sequence").Reverse().Limit(1)

	var stored []auditEvent
	if err := r.store.Find(&stored, query); err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}
	event := stored[0].toDomain()
	return &event, nil
}

func (e auditEvent) toDomain() domain.AuditEvent {
	return domain.AuditEvent{
		ID:               e.ID,
		Sequence:         e.Sequence,
		Type:             domain.EventType(e.Type),
		Severity:         domain.Severity(e.Severity),
		Timestamp:        fromUnix(e.Timestamp),
		UserID:           e.UserID,
		Context:          e.Context,
		RelatedRequestID: e.RelatedRequestID,
		PrevHash:         e.PrevHash,
		Hash:             e.Hash,
	}
}
