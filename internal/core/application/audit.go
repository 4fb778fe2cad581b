package application

import (
	"context"

	"github.com/shielded-exchange/withdrawd/internal/core/application/audit"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

type AuditService interface {
	Log(ctx context.Context, event domain.AuditEvent)
	LogSync(ctx context.Context, event domain.AuditEvent) (*domain.AuditEvent, error)
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
	Degraded() bool
	RedactSensitiveData(ctx map[string]string) map[string]string
}

func NewAuditService(
	sink domain.AuditLogSink, cfg audit.Config, logger *log.Entry,
) (AuditService, error) {
	return audit.NewService(sink, cfg, logger)
}
