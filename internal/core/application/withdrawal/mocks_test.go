package withdrawal_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(
	ctx context.Context, req domain.WithdrawalRequest, policy ports.PrivacyPolicy,
) (*domain.WithdrawalResult, error) {
	args := m.Called(ctx, req, policy)

	var res *domain.WithdrawalResult
	if a := args.Get(0); a != nil {
		res = a.(*domain.WithdrawalResult)
	}
	return res, args.Error(1)
}

func (m *mockSubmitter) GetStatus(
	ctx context.Context, txID string,
) (ports.TxStatus, error) {
	args := m.Called(ctx, txID)
	return args.Get(0).(ports.TxStatus), args.Error(1)
}

// switchableSink fails appends while down.
type switchableSink struct {
	domain.AuditLogSink
	lock sync.Mutex
	down bool
}

func (s *switchableSink) setDown(down bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.down = down
}

func (s *switchableSink) Append(ctx context.Context, e domain.AuditEvent) error {
	s.lock.Lock()
	down := s.down
	s.lock.Unlock()
	if down {
		return errors.New("sink down")
	}
	return s.AuditLogSink.Append(ctx, e)
}

// hookedRateLimitStore runs before ahead of the first usage read only.
type hookedRateLimitStore struct {
	domain.RateLimitStore
	before func()
}

func (s *hookedRateLimitStore) GetUsage(
	ctx context.Context, key string, now time.Time,
) (*domain.RateLimitUsage, error) {
	if fn := s.before; fn != nil {
		s.before = nil
		fn()
	}
	return s.RateLimitStore.GetUsage(ctx, key, now)
}

// hookedHistory runs before ahead of the first history read only.
type hookedHistory struct {
	domain.WithdrawalStatusStore
	before func()
}

func (s *hookedHistory) ListByUser(
	ctx context.Context, userID string, since time.Time,
) ([]domain.WithdrawalRecord, error) {
	if fn := s.before; fn != nil {
		s.before = nil
		fn()
	}
	return s.WithdrawalStatusStore.ListByUser(ctx, userID, since)
}
