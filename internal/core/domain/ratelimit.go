package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GlobalUsageKey is the usage key shared by all users, used for the global
// ceilings of the rate limiter.
const GlobalUsageKey = "*"

// Rate limit block reasons.
const (
	ReasonInvalidRequest         = "invalid_request"
	ReasonAmountExceedsLimit     = "amount_exceeds_limit"
	ReasonCooldown               = "cooldown"
	ReasonHourlyLimit            = "hourly_limit"
	ReasonDailyLimit             = "daily_limit"
	ReasonDailyAmountLimit       = "daily_amount_limit"
	ReasonGlobalHourlyLimit      = "global_hourly_limit"
	ReasonGlobalDailyAmountLimit = "global_daily_amount_limit"
	ReasonRateLimitUnavailable   = "rate_limit_unavailable"
)

// RateLimits are the ceilings enforced by the rate limiter. Global ceilings
// are optional and disabled when zero.
type RateLimits struct {
	MaxWithdrawalsPerHour       int
	MaxWithdrawalsPerDay        int
	MaxAmountPerWithdrawal      decimal.Decimal
	MaxTotalAmountPerDay        decimal.Decimal
	Cooldown                    time.Duration
	GlobalMaxWithdrawalsPerHour int
	GlobalMaxAmountPerDay       decimal.Decimal
}

// Validate returns a ConfigurationError for the first non positive limit.
func (l RateLimits) Validate() error {
	if l.MaxWithdrawalsPerHour <= 0 {
		return &ConfigurationError{"maxWithdrawalsPerHour", "must be positive"}
	}
	if l.MaxWithdrawalsPerDay <= 0 {
		return &ConfigurationError{"maxWithdrawalsPerDay", "must be positive"}
	}
	if !l.MaxAmountPerWithdrawal.IsPositive() {
		return &ConfigurationError{"maxAmountPerWithdrawal", "must be positive"}
	}
	if !l.MaxTotalAmountPerDay.IsPositive() {
		return &ConfigurationError{"maxTotalAmountPerDay", "must be positive"}
	}
	if l.Cooldown <= 0 {
		return &ConfigurationError{"cooldownMs", "must be positive"}
	}
	if l.GlobalMaxWithdrawalsPerHour < 0 {
		return &ConfigurationError{"globalMaxWithdrawalsPerHour", "must not be negative"}
	}
	if l.GlobalMaxAmountPerDay.IsNegative() {
		return &ConfigurationError{"globalMaxAmountPerDay", "must not be negative"}
	}
	return nil
}

// UsageEntry is one committed withdrawal counted against a usage key.
type UsageEntry struct {
	RequestID string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// RateLimitUsage holds the rolling counters of a usage key as seen at a given
// instant T: only entries in [T - window, T) are counted.
type RateLimitUsage struct {
	WithdrawalsThisHour int             `json:"withdrawalsThisHour"`
	WithdrawalsThisDay  int             `json:"withdrawalsThisDay"`
	AmountThisDay       decimal.Decimal `json:"amountThisDay"`
	LastWithdrawalAt    time.Time       `json:"lastWithdrawalAt"`
	OldestThisHour      time.Time       `json:"-"`
	OldestThisDay       time.Time       `json:"-"`
}

// NewRateLimitUsage computes the usage at now from the given entries.
// lastWithdrawalAt is kept apart because it outlives the daily window.
func NewRateLimitUsage(
	entries []UsageEntry, lastWithdrawalAt, now time.Time,
) RateLimitUsage {
	usage := RateLimitUsage{
		AmountThisDay:    decimal.Zero,
		LastWithdrawalAt: lastWithdrawalAt,
	}
	hourStart := now.Add(-time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	for _, e := range entries {
		if e.Timestamp.Before(dayStart) || !e.Timestamp.Before(now) {
			continue
		}
		usage.WithdrawalsThisDay++
		usage.AmountThisDay = usage.AmountThisDay.Add(e.Amount)
		if usage.OldestThisDay.IsZero() || e.Timestamp.Before(usage.OldestThisDay) {
			usage.OldestThisDay = e.Timestamp
		}
		if e.Timestamp.Before(hourStart) {
			continue
		}
		usage.WithdrawalsThisHour++
		if usage.OldestThisHour.IsZero() || e.Timestamp.Before(usage.OldestThisHour) {
			usage.OldestThisHour = e.Timestamp
		}
	}
	return usage
}

// RateLimitResult is the outcome of a rate limit check. Usage always
// reflects the current counters whatever the outcome.
type RateLimitResult struct {
	Allowed      bool           `json:"allowed"`
	Reason       string         `json:"reason,omitempty"`
	RetryAfterMs int64          `json:"retryAfterMs,omitempty"`
	Usage        RateLimitUsage `json:"usage"`
}
