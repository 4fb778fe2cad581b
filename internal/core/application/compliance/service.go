package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/application/audit"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// Config of the compliance engine. When Enabled is false the velocity check
// always passes and viewing key exports are refused.
type Config struct {
	Enabled    bool
	Thresholds domain.VelocityThresholds
}

// Service is the compliance engine.
type Service struct {
	withdrawals domain.WithdrawalStatusStore
	flags       domain.FlagStore
	keys        ports.ViewingKeyProvider
	audit       *audit.Service
	cfg         Config
	logger      *log.Entry
	now         func() time.Time
}

func NewService(
	withdrawals domain.WithdrawalStatusStore,
	flags domain.FlagStore,
	keys ports.ViewingKeyProvider,
	auditSvc *audit.Service,
	cfg Config,
	logger *log.Entry,
) (*Service, error) {
	if withdrawals == nil {
		return nil, fmt.Errorf("missing withdrawal status store")
	}
	if flags == nil {
		return nil, fmt.Errorf("missing flag store")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("missing audit service")
	}
	if cfg.Enabled {
		if err := cfg.Thresholds.Validate(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = log.WithField("component", "compliance")
	}

	return &Service{
		withdrawals: withdrawals,
		flags:       flags,
		keys:        keys,
		audit:       auditSvc,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Enabled returns whether compliance checks are active.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

// ResolveFlag marks the flag as resolved so that it no longer weighs on the
// user's risk score.
func (s *Service) ResolveFlag(
	ctx context.Context, flagID, resolvedBy string,
) (*domain.SuspiciousActivityFlag, error) {
	if flagID == "" {
		return nil, domain.NewValidationError("flagId", "must not be empty")
	}

	flag, err := s.flags.Resolve(ctx, flagID)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, domain.AuditEvent{
		Type:   domain.EventFlagResolved,
		UserID: flag.UserID,
		Context: map[string]string{
			"flagId":     flag.ID,
			"resolvedBy": resolvedBy,
			"riskScore":  fmt.Sprint(flag.RiskScore),
		},
	})
	return flag, nil
}
