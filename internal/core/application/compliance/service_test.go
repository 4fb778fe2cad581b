package compliance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/application/audit"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/shielded-exchange/withdrawd/internal/infrastructure/storage/db/inmemory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	ctx     = context.Background()
	testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

type mockViewingKeyProvider struct {
	mock.Mock
}

func (m *mockViewingKeyProvider) ExportViewingKey(
	ctx context.Context, address string,
) (string, error) {
	args := m.Called(ctx, address)
	return args.String(0), args.Error(1)
}

// switchableSink fails appends while down.
type switchableSink struct {
	domain.AuditLogSink
	lock *sync.Mutex
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

type fixture struct {
	svc         *Service
	withdrawals domain.WithdrawalStatusStore
	flags       domain.FlagStore
	sink        *switchableSink
	auditSvc    *audit.Service
	keys        *mockViewingKeyProvider
}

func newFixture(t *testing.T, enabled bool) *fixture {
	sink := &switchableSink{
		AuditLogSink: inmemory.NewAuditRepositoryImpl(),
		lock:         &sync.Mutex{},
	}
	auditSvc, err := audit.NewService(sink, audit.Config{
		DisclosureThreshold: decimal.NewFromInt(1000),
	}, nil)
	require.NoError(t, err)

	withdrawals := inmemory.NewWithdrawalRepositoryImpl()
	flags := inmemory.NewFlagRepositoryImpl()
	keys := &mockViewingKeyProvider{}

	svc, err := NewService(withdrawals, flags, keys, auditSvc, Config{
		Enabled:    enabled,
		Thresholds: domain.DefaultVelocityThresholds(),
	}, nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }

	return &fixture{svc, withdrawals, flags, sink, auditSvc, keys}
}

func (f *fixture) addWithdrawal(
	t *testing.T, userID string, amount int64, ago time.Duration,
	state domain.WithdrawalState,
) {
	require.NoError(t, f.withdrawals.Put(ctx, domain.WithdrawalRecord{
		RequestID: fmt.Sprintf("%s-%d-%d", userID, amount, ago),
		UserID:    userID,
		Amount:    decimal.NewFromInt(amount),
		State:     state,
		CreatedAt: testNow.Add(-ago),
		UpdatedAt: testNow.Add(-ago),
	}))
}

func (f *fixture) auditEvents(t *testing.T, types ...domain.EventType) []domain.AuditEvent {
	events, err := f.auditSvc.Query(ctx, domain.AuditFilter{Types: types})
	require.NoError(t, err)
	return events
}

func TestNewService(t *testing.T) {
	auditSvc, err := audit.NewService(audit.NewDiscardSink(), audit.Config{}, nil)
	require.NoError(t, err)
	withdrawals := inmemory.NewWithdrawalRepositoryImpl()
	flags := inmemory.NewFlagRepositoryImpl()

	_, err = NewService(nil, flags, nil, auditSvc, Config{}, nil)
	require.Error(t, err)
	_, err = NewService(withdrawals, nil, nil, auditSvc, Config{}, nil)
	require.Error(t, err)
	_, err = NewService(withdrawals, flags, nil, nil, Config{}, nil)
	require.Error(t, err)

	th := domain.DefaultVelocityThresholds()
	th.WarnScore = 90
	_, err = NewService(withdrawals, flags, nil, auditSvc, Config{
		Enabled: true, Thresholds: th,
	}, nil)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	// thresholds are not used when disabled
	_, err = NewService(withdrawals, flags, nil, auditSvc, Config{Thresholds: th}, nil)
	require.NoError(t, err)
}

func TestCheckVelocity(t *testing.T) {
	t.Run("new user", func(t *testing.T) {
		f := newFixture(t, true)

		result, err := f.svc.CheckVelocity(ctx, "alice", decimal.NewFromInt(1))
		require.NoError(t, err)
		require.True(t, result.Passed)
		require.Equal(t, 0, result.RiskScore)
		require.Empty(t, result.Reason)
		require.Empty(t, f.auditEvents(t, domain.EventSuspiciousActivity))
	})

	t.Run("elevated score raises a flag", func(t *testing.T) {
		f := newFixture(t, true)
		for i := 1; i <= 4; i++ {
			f.addWithdrawal(t, "alice", 10, time.Duration(i)*10*time.Minute, domain.StateCompleted)
		}

		result, err := f.svc.CheckVelocity(ctx, "alice", decimal.NewFromInt(40))
		require.NoError(t, err)
		require.True(t, result.Passed)
		require.Equal(t, 56, result.RiskScore)
		require.NotEmpty(t, result.Reason)
		require.Equal(t, 4, result.Velocity.WithdrawalsInWindow)
		require.Equal(t, "10", result.Velocity.AverageAmount.String())

		flags, err := f.flags.ListByUser(ctx, "alice", true)
		require.NoError(t, err)
		require.Len(t, flags, 1)
		require.Equal(t, domain.SeverityWarn, flags[0].Severity)
		require.Equal(t, 56, flags[0].RiskScore)

		events := f.auditEvents(t, domain.EventSuspiciousActivity)
		require.Len(t, events, 1)
		require.Equal(t, domain.SeverityWarn, events[0].Severity)
		require.Equal(t, "alice", events[0].UserID)
	})

	t.Run("high score blocks", func(t *testing.T) {
		f := newFixture(t, true)
		for i := 1; i <= 5; i++ {
			f.addWithdrawal(t, "alice", 10, time.Duration(i)*5*time.Minute, domain.StateCompleted)
		}

		result, err := f.svc.CheckVelocity(ctx, "alice", decimal.NewFromInt(100))
		require.NoError(t, err)
		require.False(t, result.Passed)
		require.Equal(t, 85, result.RiskScore)
		require.Contains(t, result.Reason, "block threshold")

		flags, err := f.flags.ListByUser(ctx, "alice", true)
		require.NoError(t, err)
		require.Len(t, flags, 1)
		require.Equal(t, domain.SeverityCritical, flags[0].Severity)

		// the unresolved flag now weighs on the score
		result, err = f.svc.CheckVelocity(ctx, "alice", decimal.NewFromInt(100))
		require.NoError(t, err)
		require.Equal(t, 100, result.RiskScore)
		require.Equal(t, 1, result.Velocity.UnresolvedFlags)
	})

	t.Run("failed withdrawals are not history", func(t *testing.T) {
		f := newFixture(t, true)
		for i := 1; i <= 5; i++ {
			f.addWithdrawal(t, "alice", 10, time.Duration(i)*5*time.Minute, domain.StateFailed)
		}
		f.addWithdrawal(t, "alice", 10, 3*time.Hour, domain.StateRateLimited)

		result, err := f.svc.CheckVelocity(ctx, "alice", decimal.NewFromInt(1))
		require.NoError(t, err)
		require.Equal(t, 0, result.Velocity.HistoricalCount)
		require.Equal(t, 0, result.RiskScore)
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, false)
		for i := 1; i <= 5; i++ {
			f.addWithdrawal(t, "alice", 10, time.Duration(i)*5*time.Minute, domain.StateCompleted)
		}

		result, err := f.svc.CheckVelocity(ctx, "alice", decimal.NewFromInt(100))
		require.NoError(t, err)
		require.True(t, result.Passed)
		require.Zero(t, result.RiskScore)
	})
}

func TestRiskScoreIsMonotonic(t *testing.T) {
	th := domain.DefaultVelocityThresholds()

	t.Run("in amount", func(t *testing.T) {
		snapshot := domain.VelocitySnapshot{
			WithdrawalsInWindow: 2,
			AmountInWindow:      decimal.NewFromInt(20),
			AverageAmount:       decimal.NewFromInt(8),
			HistoricalCount:     10,
		}
		prev := -1
		for a := 1; a <= 500; a++ {
			score := RiskScore(th, snapshot, decimal.NewFromInt(int64(a)))
			require.GreaterOrEqual(t, score, prev, "amount %d", a)
			require.LessOrEqual(t, score, 100)
			prev = score
		}
	})

	t.Run("in frequency", func(t *testing.T) {
		prev := -1
		for n := 0; n <= 20; n++ {
			snapshot := domain.VelocitySnapshot{
				WithdrawalsInWindow: n,
				AmountInWindow:      decimal.NewFromInt(5),
				AverageAmount:       decimal.NewFromInt(5),
				HistoricalCount:     20,
			}
			score := RiskScore(th, snapshot, decimal.NewFromInt(5))
			require.GreaterOrEqual(t, score, prev, "withdrawals %d", n)
			prev = score
		}
	})
}

func TestResolveFlag(t *testing.T) {
	f := newFixture(t, true)
	for i := 1; i <= 5; i++ {
		f.addWithdrawal(t, "alice", 10, time.Duration(i)*5*time.Minute, domain.StateCompleted)
	}
	_, err := f.svc.CheckVelocity(ctx, "alice", decimal.NewFromInt(100))
	require.NoError(t, err)

	flags, err := f.flags.ListByUser(ctx, "alice", true)
	require.NoError(t, err)
	require.Len(t, flags, 1)

	flag, err := f.svc.ResolveFlag(ctx, flags[0].ID, "compliance-officer")
	require.NoError(t, err)
	require.True(t, flag.Resolved)

	result, err := f.svc.CheckVelocity(ctx, "alice", decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Equal(t, 85, result.RiskScore)

	events := f.auditEvents(t, domain.EventFlagResolved)
	require.Len(t, events, 1)
	require.Equal(t, "compliance-officer", events[0].Context["resolvedBy"])

	_, err = f.svc.ResolveFlag(ctx, "unknown", "compliance-officer")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestGenerateComplianceReport(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.GenerateComplianceReport(ctx, domain.DateRange{
		Start: testNow, End: testNow.Add(-time.Hour),
	})
	require.ErrorIs(t, err, domain.ErrInvalidRange)

	for _, e := range []domain.AuditEvent{
		{Type: domain.EventWithdrawalRequested, UserID: "alice", Timestamp: testNow.Add(-50 * time.Minute)},
		{Type: domain.EventWithdrawalCompleted, UserID: "alice", Timestamp: testNow.Add(-49 * time.Minute)},
		{Type: domain.EventWithdrawalRequested, UserID: "bob", Timestamp: testNow.Add(-40 * time.Minute)},
		{Type: domain.EventRateLimitBlocked, UserID: "bob", Timestamp: testNow.Add(-40 * time.Minute)},
		{Type: domain.EventWithdrawalRequested, UserID: "carol", Timestamp: testNow.Add(-30 * time.Minute)},
		{Type: domain.EventVelocityBlocked, UserID: "carol", Timestamp: testNow.Add(-30 * time.Minute)},
		{Type: domain.EventWithdrawalFailed, UserID: "dave", Timestamp: testNow.Add(-20 * time.Minute)},
		{Type: domain.EventComplianceExport, Timestamp: testNow.Add(-10 * time.Minute)},
		{Type: domain.EventAuth, UserID: "erin", Timestamp: testNow.Add(-48 * time.Hour)},
	} {
		f.auditSvc.Log(ctx, e)
	}
	require.NoError(t, f.flags.Add(ctx, domain.SuspiciousActivityFlag{
		ID: "flag-1", UserID: "carol", Severity: domain.SeverityCritical,
		RiskScore: 90, DetectedAt: testNow.Add(-30 * time.Minute),
	}))

	report, err := f.svc.GenerateComplianceReport(ctx, domain.DateRange{
		Start: testNow.Add(-time.Hour), End: testNow,
	})
	require.NoError(t, err)

	require.Equal(t, testNow, report.GeneratedAt)
	require.Equal(t, domain.ComplianceSummary{
		TotalEvents:             8,
		WithdrawalsRequested:    3,
		WithdrawalsCompleted:    1,
		WithdrawalsFailed:       1,
		RateLimitBlocked:        1,
		VelocityBlocked:         1,
		SuspiciousActivityFlags: 1,
		ViewingKeyExports:       1,
		UniqueUsers:             4,
	}, report.Summary)
	require.Equal(t, 3, report.EventsByType[domain.EventWithdrawalRequested])
	require.Equal(t, 1, report.EventsBySeverity[domain.SeverityCritical])
	require.Len(t, report.Flags, 1)
	require.True(t, report.IntegrityCheck.Valid)
	require.Equal(t, 8, report.IntegrityCheck.CheckedEvents)

	// pure read
	events, err := f.auditSvc.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 9)
}

func TestExportViewingKeys(t *testing.T) {
	scope := domain.ViewingKeyScope{
		UserID:     "alice",
		Addresses:  []string{"zs1first", "zs1second"},
		DateRange:  domain.DateRange{Start: testNow.Add(-24 * time.Hour), End: testNow},
		ExportedBy: "auditor",
		Reason:     "subpoena 42",
	}

	t.Run("valid", func(t *testing.T) {
		f := newFixture(t, true)
		f.keys.On("ExportViewingKey", mock.Anything, "zs1first").Return("zxviews1first", nil)
		f.keys.On("ExportViewingKey", mock.Anything, "zs1second").Return("zxviews1second", nil)

		bundle, err := f.svc.ExportViewingKeys(ctx, scope)
		require.NoError(t, err)
		require.NotEmpty(t, bundle.ID)
		require.Equal(t, "auditor", bundle.ExportedBy)
		require.Equal(t, []domain.ViewingKey{
			{Address: "zs1first", Key: "zxviews1first"},
			{Address: "zs1second", Key: "zxviews1second"},
		}, bundle.Keys)

		events := f.auditEvents(t)
		require.Len(t, events, 3)
		require.Equal(t, domain.EventKeyOperation, events[0].Type)
		require.Equal(t, domain.EventKeyOperation, events[1].Type)
		require.Equal(t, domain.EventComplianceExport, events[2].Type)
		require.Equal(t, domain.SeverityCritical, events[2].Severity)
		require.Equal(t, bundle.ID, events[2].Context["exportId"])
		require.Equal(t, "2", events[2].Context["addressCount"])
		f.keys.AssertExpectations(t)
	})

	t.Run("invalid", func(t *testing.T) {
		f := newFixture(t, true)

		noAddresses := scope
		noAddresses.Addresses = nil
		_, err := f.svc.ExportViewingKeys(ctx, noAddresses)
		require.ErrorIs(t, err, domain.ErrValidation)

		noExporter := scope
		noExporter.ExportedBy = ""
		_, err = f.svc.ExportViewingKeys(ctx, noExporter)
		require.ErrorIs(t, err, domain.ErrValidation)

		badRange := scope
		badRange.DateRange = domain.DateRange{Start: testNow, End: testNow.Add(-time.Hour)}
		_, err = f.svc.ExportViewingKeys(ctx, badRange)
		require.ErrorIs(t, err, domain.ErrInvalidRange)

		f.keys.AssertNotCalled(t, "ExportViewingKey", mock.Anything, mock.Anything)
	})

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.svc.ExportViewingKeys(ctx, scope)
		require.ErrorIs(t, err, domain.ErrComplianceDisabled)
	})

	t.Run("custody failure", func(t *testing.T) {
		f := newFixture(t, true)
		f.keys.On("ExportViewingKey", mock.Anything, "zs1first").
			Return("", errors.New("wallet locked"))

		_, err := f.svc.ExportViewingKeys(ctx, scope)
		require.Error(t, err)

		events := f.auditEvents(t, domain.EventKeyOperation)
		require.Len(t, events, 1)
		require.Equal(t, "wallet locked", events[0].Context["error"])
		require.Empty(t, f.auditEvents(t, domain.EventComplianceExport))
	})

	t.Run("audit unavailable", func(t *testing.T) {
		f := newFixture(t, true)
		f.keys.On("ExportViewingKey", mock.Anything, mock.Anything).Return("zxviews1key", nil)
		f.sink.setDown(true)

		bundle, err := f.svc.ExportViewingKeys(ctx, scope)
		require.ErrorIs(t, err, domain.ErrAuditUnavailable)
		require.Nil(t, bundle)
	})
}

var _ ports.ViewingKeyProvider = (*mockViewingKeyProvider)(nil)
