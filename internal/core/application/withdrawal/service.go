package withdrawal

import (
	"fmt"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/application/audit"
	"github.com/shielded-exchange/withdrawd/internal/core/application/compliance"
	"github.com/shielded-exchange/withdrawd/internal/core/application/idempotency"
	"github.com/shielded-exchange/withdrawd/internal/core/application/ratelimit"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultSubmitTimeout = 2 * time.Minute
	DefaultMinConf       = 1

	// bound on the store writes that settle a submission once the caller's
	// context is gone.
	finalizeTimeout = 30 * time.Second

	velocityUnavailableReason = "velocity_check_unavailable"
)

// Config of the orchestrator.
type Config struct {
	// Network, when set, is the only network addresses may belong to.
	Network       ports.Network
	PrivacyPolicy ports.PrivacyPolicy
	// MinConf is the number of confirmations after which a withdrawal is
	// reported as completed.
	MinConf       int
	SubmitTimeout time.Duration
}

// Service is the withdrawal orchestrator. It runs every request through
// validation, the rate limiter, the velocity check and the idempotency
// guard before handing it to the wallet, and audits every transition.
type Service struct {
	idempotency *idempotency.Service
	rateLimiter *ratelimit.Service
	compliance  *compliance.Service
	audit       *audit.Service

	withdrawals  domain.WithdrawalStatusStore
	classifier   ports.AddressClassifier
	submitter    ports.WithdrawalSubmitter
	feeEstimator ports.FeeEstimator

	metrics *Metrics
	cfg     Config
	logger  *log.Entry
	now     func() time.Time
}

func NewService(
	idempotencySvc *idempotency.Service,
	rateLimitSvc *ratelimit.Service,
	complianceSvc *compliance.Service,
	auditSvc *audit.Service,
	withdrawals domain.WithdrawalStatusStore,
	classifier ports.AddressClassifier,
	submitter ports.WithdrawalSubmitter,
	feeEstimator ports.FeeEstimator,
	metrics *Metrics,
	cfg Config,
	logger *log.Entry,
) (*Service, error) {
	if idempotencySvc == nil {
		return nil, fmt.Errorf("missing idempotency service")
	}
	if rateLimitSvc == nil {
		return nil, fmt.Errorf("missing rate limit service")
	}
	if complianceSvc == nil {
		return nil, fmt.Errorf("missing compliance service")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("missing audit service")
	}
	if withdrawals == nil {
		return nil, fmt.Errorf("missing withdrawal status store")
	}
	if classifier == nil {
		return nil, fmt.Errorf("missing address classifier")
	}
	if submitter == nil {
		return nil, fmt.Errorf("missing withdrawal submitter")
	}

	if cfg.PrivacyPolicy == "" {
		cfg.PrivacyPolicy = ports.FullPrivacy
	}
	if _, err := ports.ParsePrivacyPolicy(string(cfg.PrivacyPolicy)); err != nil {
		return nil, &domain.ConfigurationError{Field: "privacyPolicy", Reason: err.Error()}
	}
	if cfg.MinConf < 0 {
		return nil, &domain.ConfigurationError{Field: "minconf", Reason: "must not be negative"}
	}
	if cfg.SubmitTimeout < 0 {
		return nil, &domain.ConfigurationError{
			Field: "submitTimeout", Reason: "must not be negative",
		}
	}
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = log.WithField("component", "withdrawal")
	}

	return &Service{
		idempotency:  idempotencySvc,
		rateLimiter:  rateLimitSvc,
		compliance:   complianceSvc,
		audit:        auditSvc,
		withdrawals:  withdrawals,
		classifier:   classifier,
		submitter:    submitter,
		feeEstimator: feeEstimator,
		metrics:      metrics,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// PrivacyPolicy returns the policy forwarded to the wallet.
func (s *Service) PrivacyPolicy() ports.PrivacyPolicy {
	return s.cfg.PrivacyPolicy
}
