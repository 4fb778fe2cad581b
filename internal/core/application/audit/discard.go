package audit

import (
	"context"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
)

type discardSink struct{}

// NewDiscardSink returns a sink that drops every event, used when audit
// logging is disabled.
func NewDiscardSink() domain.AuditLogSink {
	return discardSink{}
}

func (discardSink) Append(context.Context, domain.AuditEvent) error {
	return nil
}

func (discardSink) Query(
	context.Context, domain.AuditFilter,
) ([]domain.AuditEvent, error) {
	return []domain.AuditEvent{}, nil
}

func (discardSink) Last(context.Context) (*domain.AuditEvent, error) {
	return nil, nil
}
