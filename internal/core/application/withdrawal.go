package application

import (
	"context"

	"github.com/shielded-exchange/withdrawd/internal/core/application/audit"
	"github.com/shielded-exchange/withdrawd/internal/core/application/compliance"
	"github.com/shielded-exchange/withdrawd/internal/core/application/idempotency"
	"github.com/shielded-exchange/withdrawd/internal/core/application/ratelimit"
	"github.com/shielded-exchange/withdrawd/internal/core/application/withdrawal"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type WithdrawalService interface {
	ProcessWithdrawal(
		ctx context.Context, req domain.WithdrawalRequest,
	) (*domain.WithdrawalOutcome, error)
	GetWithdrawalStatus(
		ctx context.Context, id string,
	) (*domain.WithdrawalStatus, error)
	EstimateWithdrawalFee(
		ctx context.Context, amount decimal.Decimal, destination string,
	) (*domain.FeeEstimate, error)
	ClassifyAddress(address string) ports.AddressClassification
	PrivacyPolicy() ports.PrivacyPolicy
}

// WithdrawalDeps are the collaborators of the withdrawal orchestrator.
type WithdrawalDeps struct {
	RepoManager  ports.RepoManager
	RateLimit    RateLimitService
	Compliance   ComplianceService
	Audit        AuditService
	Classifier   ports.AddressClassifier
	Submitter    ports.WithdrawalSubmitter
	FeeEstimator ports.FeeEstimator
	Metrics      *withdrawal.Metrics
}

func NewWithdrawalService(
	deps WithdrawalDeps, cfg withdrawal.Config, logger *log.Entry,
) (WithdrawalService, error) {
	idempotencySvc, err := idempotency.NewService(deps.RepoManager.IdempotencyStore())
	if err != nil {
		return nil, err
	}
	r, _ := deps.RateLimit.(*ratelimit.Service)
	c, _ := deps.Compliance.(*compliance.Service)
	a, _ := deps.Audit.(*audit.Service)

	return withdrawal.NewService(
		idempotencySvc, r, c, a, deps.RepoManager.WithdrawalStatusStore(),
		deps.Classifier, deps.Submitter, deps.FeeEstimator, deps.Metrics,
		cfg, logger,
	)
}
