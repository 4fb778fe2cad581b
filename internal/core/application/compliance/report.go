package compliance

import (
	"context"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"golang.org/x/sync/errgroup"
)

// GenerateComplianceReport aggregates the audit events and the suspicious
// activity flags of the period. It is a pure read.
func (s *Service) GenerateComplianceReport(
	ctx context.Context, period domain.DateRange,
) (*domain.ComplianceReport, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	var events []domain.AuditEvent
	var flags []domain.SuspiciousActivityFlag

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.audit.Query(gctx, domain.AuditFilter{
			From: period.Start,
			To:   period.End,
		})
		return err
	})
	g.Go(func() error {
		var err error
		flags, err = s.flags.ListInRange(gctx, period)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &domain.ComplianceReport{
		GeneratedAt:      s.now(),
		PeriodStart:      period.Start,
		PeriodEnd:        period.End,
		EventsByType:     make(map[domain.EventType]int),
		EventsBySeverity: make(map[domain.Severity]int),
		Flags:            flags,
		IntegrityCheck:   domain.VerifyChain(events),
	}
	if report.Flags == nil {
		report.Flags = []domain.SuspiciousActivityFlag{}
	}

	users := make(map[string]struct{})
	summary := &report.Summary
	summary.TotalEvents = len(events)
	summary.SuspiciousActivityFlags = len(flags)
	for _, e := range events {
		report.EventsByType[e.Type]++
		report.EventsBySeverity[e.Severity]++
		if e.UserID != "" {
			users[e.UserID] = struct{}{}
		}

		switch e.Type {
		case domain.EventWithdrawalRequested:
			summary.WithdrawalsRequested++
		case domain.EventWithdrawalCompleted:
			summary.WithdrawalsCompleted++
		case domain.EventWithdrawalFailed:
			summary.WithdrawalsFailed++
		case domain.EventRateLimitBlocked:
			summary.RateLimitBlocked++
		case domain.EventVelocityBlocked:
			summary.VelocityBlocked++
		case domain.EventComplianceExport:
			summary.ViewingKeyExports++
		}
	}
	summary.UniqueUsers = len(users)

	return report, nil
}
