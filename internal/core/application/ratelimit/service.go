package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// Service is the rate limiter. Checks are read-only; usage only grows when
// a completed withdrawal is recorded.
type Service struct {
	store  domain.RateLimitStore
	limits domain.RateLimits
	logger *log.Entry
	now    func() time.Time
}

func NewService(
	store domain.RateLimitStore, limits domain.RateLimits, logger *log.Entry,
) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("missing rate limit store")
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.WithField("component", "ratelimit")
	}
	return &Service{
		store:  store,
		limits: limits,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Limits returns the configured ceilings.
func (s *Service) Limits() domain.RateLimits {
	return s.limits
}

// CheckRateLimit evaluates, in order, the amount ceiling, the cooldown, the
// hourly and daily counts, the daily amount and finally the global
// ceilings. The first failing rule determines the reason. It never fails:
// a store error is reported as a block with reason rate_limit_unavailable.
func (s *Service) CheckRateLimit(
	ctx context.Context, userID string, amount decimal.Decimal,
) domain.RateLimitResult {
	now := s.now()
	if userID == "" || !amount.IsPositive() {
		return domain.RateLimitResult{
			Reason: domain.ReasonInvalidRequest,
			Usage:  domain.NewRateLimitUsage(nil, time.Time{}, now),
		}
	}

	usage, err := s.store.GetUsage(ctx, userID, now)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).
			Error("failed to load rate limit usage")
		return domain.RateLimitResult{
			Reason: domain.ReasonRateLimitUnavailable,
			Usage:  domain.NewRateLimitUsage(nil, time.Time{}, now),
		}
	}

	result := domain.RateLimitResult{Allowed: true, Usage: *usage}
	reason, retryAfter, blocked := s.checkUserLimits(*usage, amount, now)
	if blocked {
		return block(result, reason, retryAfter)
	}

	reason, retryAfter, blocked, err = s.checkGlobalLimits(ctx, amount, now)
	if err != nil {
		s.logger.WithError(err).Error("failed to load global rate limit usage")
		return block(result, domain.ReasonRateLimitUnavailable, 0)
	}
	if blocked {
		return block(result, reason, retryAfter)
	}

	return result
}

// RecordWithdrawal counts a completed withdrawal against the user and the
// global usage. It is keyed by request id: recording the same request
// twice counts it once.
func (s *Service) RecordWithdrawal(
	ctx context.Context, userID, requestID string, amount decimal.Decimal,
) error {
	if userID == "" {
		return domain.NewValidationError("userId", "must not be empty")
	}
	if requestID == "" {
		return domain.NewValidationError("requestId", "must not be empty")
	}
	entry := domain.UsageEntry{
		RequestID: requestID,
		Amount:    amount,
		Timestamp: s.now(),
	}

	counted, err := s.store.IncrementUsage(ctx, userID, entry)
	if err != nil {
		return fmt.Errorf("failed to record withdrawal: %w", err)
	}
	if !counted {
		s.logger.WithField("request_id", requestID).
			Debug("withdrawal already counted, skipping")
	}

	if _, err := s.store.IncrementUsage(ctx, domain.GlobalUsageKey, entry); err != nil {
		return fmt.Errorf("failed to record global withdrawal: %w", err)
	}
	return nil
}

func (s *Service) checkUserLimits(
	usage domain.RateLimitUsage, amount decimal.Decimal, now time.Time,
) (string, time.Duration, bool) {
	l := s.limits

	if amount.GreaterThan(l.MaxAmountPerWithdrawal) {
		return domain.ReasonAmountExceedsLimit, 0, true
	}

	if !usage.LastWithdrawalAt.IsZero() {
		elapsed := now.Sub(usage.LastWithdrawalAt)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed < l.Cooldown {
			return domain.ReasonCooldown, l.Cooldown - elapsed, true
		}
	}

	if usage.WithdrawalsThisHour >= l.MaxWithdrawalsPerHour {
		return domain.ReasonHourlyLimit,
			expiresIn(usage.OldestThisHour, hourWindow, now), true
	}

	if usage.WithdrawalsThisDay >= l.MaxWithdrawalsPerDay {
		return domain.ReasonDailyLimit,
			expiresIn(usage.OldestThisDay, dayWindow, now), true
	}

	if usage.AmountThisDay.Add(amount).GreaterThan(l.MaxTotalAmountPerDay) {
		return domain.ReasonDailyAmountLimit,
			expiresIn(usage.OldestThisDay, dayWindow, now), true
	}

	return "", 0, false
}

func (s *Service) checkGlobalLimits(
	ctx context.Context, amount decimal.Decimal, now time.Time,
) (string, time.Duration, bool, error) {
	l := s.limits
	if l.GlobalMaxWithdrawalsPerHour <= 0 && !l.GlobalMaxAmountPerDay.IsPositive() {
		return "", 0, false, nil
	}

	usage, err := s.store.GetUsage(ctx, domain.GlobalUsageKey, now)
	if err != nil {
		return "", 0, false, err
	}

	if l.GlobalMaxWithdrawalsPerHour > 0 &&
		usage.WithdrawalsThisHour >= l.GlobalMaxWithdrawalsPerHour {
		return domain.ReasonGlobalHourlyLimit,
			expiresIn(usage.OldestThisHour, hourWindow, now), true, nil
	}

	if l.GlobalMaxAmountPerDay.IsPositive() &&
		usage.AmountThisDay.Add(amount).GreaterThan(l.GlobalMaxAmountPerDay) {
		return domain.ReasonGlobalDailyAmountLimit,
			expiresIn(usage.OldestThisDay, dayWindow, now), true, nil
	}

	return "", 0, false, nil
}

// expiresIn returns the time left before an event at oldest leaves a window
// of the given size.
func expiresIn(oldest time.Time, window time.Duration, now time.Time) time.Duration {
	if oldest.IsZero() {
		return 0
	}
	d := oldest.Add(window).Sub(now)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func block(
	result domain.RateLimitResult, reason string, retryAfter time.Duration,
) domain.RateLimitResult {
	result.Allowed = false
	result.Reason = reason
	if retryAfter > 0 {
		result.RetryAfterMs = int64((retryAfter + time.Millisecond - 1) / time.Millisecond)
	}
	return result
}
