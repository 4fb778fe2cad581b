package application

import (
	"context"

	"github.com/shielded-exchange/withdrawd/internal/core/application/ratelimit"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type RateLimitService interface {
	CheckRateLimit(
		ctx context.Context, userID string, amount decimal.Decimal,
	) domain.RateLimitResult
	RecordWithdrawal(
		ctx context.Context, userID, requestID string, amount decimal.Decimal,
	) error
	Limits() domain.RateLimits
}

func NewRateLimitService(
	store domain.RateLimitStore, limits domain.RateLimits, logger *log.Entry,
) (RateLimitService, error) {
	return ratelimit.NewService(store, limits, logger)
}
