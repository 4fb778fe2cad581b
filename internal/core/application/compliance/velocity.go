package compliance

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// only withdrawals that moved, or may have moved, funds count as history.
var countedStates = map[domain.WithdrawalState]struct{}{
	domain.StateReserved:  {},
	domain.StateSubmitted: {},
	domain.StateCompleted: {},
}

// CheckVelocity scores the risk of the user withdrawing amount given their
// recent history. The score is a weighted average of the withdrawal
// frequency in the trailing window, the ratio of amount to the historical
// average, the proximity to the window amount ceiling and the presence of
// unresolved flags. A flag is raised when the score reaches the warn
// threshold, the check fails when it reaches the block threshold.
func (s *Service) CheckVelocity(
	ctx context.Context, userID string, amount decimal.Decimal,
) (*domain.VelocityCheckResult, error) {
	if !s.cfg.Enabled {
		return &domain.VelocityCheckResult{Passed: true}, nil
	}
	if userID == "" {
		return nil, domain.NewValidationError("userId", "must not be empty")
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "must be positive")
	}

	th := s.cfg.Thresholds
	now := s.now()

	history, err := s.withdrawals.ListByUser(ctx, userID, now.Add(-th.HistoryWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load withdrawal history: %w", err)
	}
	unresolved, err := s.flags.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load suspicious activity flags: %w", err)
	}

	snapshot := domain.VelocitySnapshot{
		AmountInWindow:  decimal.Zero,
		AverageAmount:   decimal.Zero,
		UnresolvedFlags: len(unresolved),
	}
	windowStart := now.Add(-th.Window)
	total := decimal.Zero
	for _, w := range history {
		if _, ok := countedStates[w.State]; !ok {
			continue
		}
		snapshot.HistoricalCount++
		total = total.Add(w.Amount)
		if !w.CreatedAt.Before(windowStart) {
			snapshot.WithdrawalsInWindow++
			snapshot.AmountInWindow = snapshot.AmountInWindow.Add(w.Amount)
		}
	}
	if snapshot.HistoricalCount > 0 {
		snapshot.AverageAmount = total.Div(decimal.NewFromInt(int64(snapshot.HistoricalCount)))
	}

	score := RiskScore(th, snapshot, amount)
	result := &domain.VelocityCheckResult{
		Passed:    score < th.BlockScore,
		RiskScore: score,
		Velocity:  snapshot,
	}

	switch {
	case score >= th.BlockScore:
		result.Reason = fmt.Sprintf(
			"velocity risk score %d reached block threshold %d", score, th.BlockScore,
		)
	case score >= th.WarnScore:
		result.Reason = fmt.Sprintf(
			"elevated velocity risk score %d (warn threshold %d)", score, th.WarnScore,
		)
	}

	if score >= th.WarnScore {
		s.raiseFlag(ctx, userID, result)
	}
	return result, nil
}

// RiskScore returns the velocity risk score in [0, 100] of withdrawing
// amount given the snapshot. It is non-decreasing in the number of
// withdrawals in the window and in amount.
func RiskScore(
	th domain.VelocityThresholds, snapshot domain.VelocitySnapshot,
	amount decimal.Decimal,
) int {
	frequency := clamp(
		float64(snapshot.WithdrawalsInWindow) / float64(th.MaxWithdrawalsInWindow),
	)

	amountRatio := 0.0
	if snapshot.AverageAmount.IsPositive() {
		ratio, _ := amount.Div(snapshot.AverageAmount).Float64()
		amountRatio = clamp((ratio - 1) / (th.AmountRatioCeiling - 1))
	}

	proximity, _ := snapshot.AmountInWindow.Add(amount).
		Div(th.MaxAmountInWindow).Float64()
	proximity = clamp(proximity)

	flagged := 0.0
	if snapshot.UnresolvedFlags > 0 {
		flagged = 1
	}

	totalWeight := th.FrequencyWeight + th.AmountRatioWeight +
		th.ProximityWeight + th.FlagWeight
	weighted := th.FrequencyWeight*frequency +
		th.AmountRatioWeight*amountRatio +
		th.ProximityWeight*proximity +
		th.FlagWeight*flagged

	return int(math.Round(100 * weighted / totalWeight))
}

func (s *Service) raiseFlag(
	ctx context.Context, userID string, result *domain.VelocityCheckResult,
) {
	severity := domain.SeverityWarn
	if !result.Passed {
		severity = domain.SeverityCritical
	}

	flag := domain.SuspiciousActivityFlag{
		ID:         uuid.New().String(),
		UserID:     userID,
		Reason:     result.Reason,
		Severity:   severity,
		RiskScore:  result.RiskScore,
		DetectedAt: s.now(),
	}
	if err := s.flags.Add(ctx, flag); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"user_id":    userID,
			"risk_score": result.RiskScore,
		}).Error("failed to store suspicious activity flag")
	}

	s.audit.Log(ctx, domain.AuditEvent{
		Type:     domain.EventSuspiciousActivity,
		Severity: severity,
		UserID:   userID,
		Context: map[string]string{
			"flagId":              flag.ID,
			"riskScore":           fmt.Sprint(result.RiskScore),
			"reason":              result.Reason,
			"withdrawalsInWindow": fmt.Sprint(result.Velocity.WithdrawalsInWindow),
		},
	})
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
