package application

import (
	"context"

	"github.com/shielded-exchange/withdrawd/internal/core/application/audit"
	"github.com/shielded-exchange/withdrawd/internal/core/application/compliance"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type ComplianceService interface {
	Enabled() bool
	CheckVelocity(
		ctx context.Context, userID string, amount decimal.Decimal,
	) (*domain.VelocityCheckResult, error)
	GenerateComplianceReport(
		ctx context.Context, period domain.DateRange,
	) (*domain.ComplianceReport, error)
	ExportViewingKeys(
		ctx context.Context, scope domain.ViewingKeyScope,
	) (*domain.ViewingKeyBundle, error)
	ResolveFlag(
		ctx context.Context, flagID, resolvedBy string,
	) (*domain.SuspiciousActivityFlag, error)
}

func NewComplianceService(
	repoManager ports.RepoManager, keys ports.ViewingKeyProvider,
	auditSvc AuditService, cfg compliance.Config, logger *log.Entry,
) (ComplianceService, error) {
	a, _ := auditSvc.(*audit.Service)
	return compliance.NewService(
		repoManager.WithdrawalStatusStore(), repoManager.FlagStore(), keys, a,
		cfg, logger,
	)
}
