package dbredis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
)

// entries older than this are dropped on write.
const usageRetention = 25 * time.Hour

// ErrEmptyKey is returned when counting usage against an empty key.
var ErrEmptyKey = errors.New("usage key must not be empty")

// KEYS: entries zset, amounts hash, last withdrawal
// ARGV: request id, timestamp ms, amount, prune before ms
var incrementUsageScript = redis.NewScript(`
if redis.call('hsetnx', KEYS[2], ARGV[1], ARGV[3]) == 0 then
	return 0
end
redis.call('zadd', KEYS[1], ARGV[2], ARGV[1])

local last = tonumber(redis.call('get', KEYS[3]) or '0')
if tonumber(ARGV[2]) > last then
	redis.call('set', KEYS[3], ARGV[2])
end

local expired = redis.call('zrangebyscore', KEYS[1], '-inf', '(' .. ARGV[4])
for _, id in ipairs(expired) do
	redis.call('hdel', KEYS[2], id)
end
redis.call('zremrangebyscore', KEYS[1], '-inf', '(' .. ARGV[4])
return 1
`)

type rateLimitRepositoryImpl struct {
	client *redis.Client
	prefix string
}

// NewRateLimitRepositoryImpl returns a RateLimitStore backed by Redis. Each
// usage key maps to a sorted set of request ids scored by timestamp and a
// hash of their amounts, updated atomically by a script.
func NewRateLimitRepositoryImpl(
	client *redis.Client, prefix string,
) domain.RateLimitStore {
	return &rateLimitRepositoryImpl{client, prefix}
}

func (r *rateLimitRepositoryImpl) GetUsage(
	ctx context.Context, usageKey string, now time.Time,
) (*domain.RateLimitUsage, error) {
	entriesKey, amountsKey, lastKey := r.keys(usageKey)

	min := strconv.FormatInt(now.Add(-24*time.Hour).UnixMilli(), 10)
	members, err := r.client.ZRangeByScoreWithScores(ctx, entriesKey, &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}

	var last time.Time
	lastMs, err := r.client.Get(ctx, lastKey).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last withdrawal: %w", err)
	}
	if lastMs > 0 {
		last = time.UnixMilli(lastMs).UTC()
	}

	entries := make([]domain.UsageEntry, 0, len(members))
	if len(members) > 0 {
		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.Member.(string))
		}
		amounts, err := r.client.HMGet(ctx, amountsKey, ids...).Result()
		if err != nil {
			return nil, fmt.Errorf("get usage amounts: %w", err)
		}
		for i, m := range members {
			amount := decimal.Zero
			if s, ok := amounts[i].(string); ok {
				amount, _ = decimal.NewFromString(s)
			}
			entries = append(entries, domain.UsageEntry{
				RequestID: ids[i],
				Amount:    amount,
				Timestamp: time.UnixMilli(int64(m.Score)).UTC(),
			})
		}
	}

	usage := domain.NewRateLimitUsage(entries, last, now)
	return &usage, nil
}

func (r *rateLimitRepositoryImpl) IncrementUsage(
	ctx context.Context, usageKey string, entry domain.UsageEntry,
) (bool, error) {
	if usageKey == "" {
		return false, ErrEmptyKey
	}
	if entry.RequestID == "" {
		return false, ErrEmptyRequestID
	}

	entriesKey, amountsKey, lastKey := r.keys(usageKey)
	pruneBefore := entry.Timestamp.Add(-usageRetention).UnixMilli()

	counted, err := incrementUsageScript.Run(
		ctx, r.client, []string{entriesKey, amountsKey, lastKey},
		entry.RequestID, entry.Timestamp.UnixMilli(), entry.Amount.String(),
		pruneBefore,
	).Int()
	if err != nil {
		return false, fmt.Errorf("increment usage: %w", err)
	}
	return counted == 1, nil
}

func (r *rateLimitRepositoryImpl) keys(usageKey string) (string, string, string) {
	return key(r.prefix, "usage", usageKey, "entries"),
		key(r.prefix, "usage", usageKey, "amounts"),
		key(r.prefix, "usage", usageKey, "last")
}
