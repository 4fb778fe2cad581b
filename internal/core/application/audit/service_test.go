package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/infrastructure/storage/db/inmemory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

var errSinkDown = errors.New("sink down")

// flakySink wraps an in-memory sink and fails appends while down.
type flakySink struct {
	domain.AuditLogSink

	lock *sync.Mutex
	down bool
}

func newFlakySink() *flakySink {
	return &flakySink{
		AuditLogSink: inmemory.NewAuditRepositoryImpl(),
		lock:         &sync.Mutex{},
	}
}

func (s *flakySink) setDown(down bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.down = down
}

func (s *flakySink) Append(ctx context.Context, e domain.AuditEvent) error {
	s.lock.Lock()
	down := s.down
	s.lock.Unlock()
	if down {
		return errSinkDown
	}
	return s.AuditLogSink.Append(ctx, e)
}

func newTestService(t *testing.T, sink domain.AuditLogSink, bufferSize int) *Service {
	svc, err := NewService(sink, Config{
		AddressPrefixLength: 8,
		DisclosureThreshold: decimal.NewFromInt(100),
		BufferSize:          bufferSize,
	}, nil)
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	_, err := NewService(nil, Config{}, nil)
	require.Error(t, err)

	_, err = NewService(newFlakySink(), Config{
		DisclosureThreshold: decimal.NewFromInt(-1),
	}, nil)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLog(t *testing.T) {
	sink := newFlakySink()
	svc := newTestService(t, sink, 0)

	svc.Log(ctx, domain.AuditEvent{
		Type:   domain.EventWithdrawalRequested,
		UserID: "alice",
		Context: map[string]string{
			"toAddress": saplingAddress,
			"amount":    "1.5",
		},
		RelatedRequestID: "req-1",
	})
	svc.Log(ctx, domain.AuditEvent{
		Type:     domain.EventRateLimitBlocked,
		Severity: domain.Severity("bogus"),
		UserID:   "alice",
	})
	svc.Log(ctx, domain.AuditEvent{
		Type:     domain.EventWithdrawalCompleted,
		Severity: domain.SeverityCritical,
		UserID:   "alice",
	})

	events, err := svc.Query(ctx, domain.AuditFilter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, events, 3)

	first := events[0]
	require.NotEmpty(t, first.ID)
	require.False(t, first.Timestamp.IsZero())
	require.Equal(t, uint64(1), first.Sequence)
	require.Empty(t, first.PrevHash)
	require.Equal(t, domain.SeverityInfo, first.Severity)
	require.Equal(t, "zs1z7rej...", first.Context["toAddress"])
	require.Equal(t, "1.5", first.Context["amount"])

	require.Equal(t, domain.SeverityWarn, events[1].Severity)
	require.Equal(t, domain.SeverityCritical, events[2].Severity)
	require.Equal(t, first.Hash, events[1].PrevHash)

	check := domain.VerifyChain(events)
	require.True(t, check.Valid)
	require.Equal(t, 3, check.CheckedEvents)
}

func TestChainResumesFromSink(t *testing.T) {
	sink := newFlakySink()
	svc := newTestService(t, sink, 0)
	svc.Log(ctx, domain.AuditEvent{Type: domain.EventAuth})
	svc.Log(ctx, domain.AuditEvent{Type: domain.EventAuth})

	restarted := newTestService(t, sink, 0)
	restarted.Log(ctx, domain.AuditEvent{Type: domain.EventAuth})

	events, err := restarted.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, uint64(3), events[2].Sequence)
	require.True(t, domain.VerifyChain(events).Valid)
}

func TestDegradedMode(t *testing.T) {
	sink := newFlakySink()
	svc := newTestService(t, sink, 0)
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	svc.Log(ctx, domain.AuditEvent{Type: domain.EventWithdrawalRequested})
	require.False(t, svc.Degraded())

	sink.setDown(true)
	svc.Log(ctx, domain.AuditEvent{Type: domain.EventWithdrawalCompleted})
	svc.Log(ctx, domain.AuditEvent{Type: domain.EventWithdrawalFailed})
	require.True(t, svc.Degraded())

	// buffered events are still visible
	events, err := svc.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	_, err = svc.LogSync(ctx, domain.AuditEvent{Type: domain.EventComplianceExport})
	require.ErrorIs(t, err, domain.ErrAuditUnavailable)

	sink.setDown(false)
	svc.Log(ctx, domain.AuditEvent{Type: domain.EventAuth})
	require.False(t, svc.Degraded())

	stored, err := sink.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 5)

	types := make([]domain.EventType, 0, len(stored))
	for _, e := range stored {
		types = append(types, e.Type)
	}
	require.Equal(t, []domain.EventType{
		domain.EventWithdrawalRequested,
		domain.EventWithdrawalCompleted,
		domain.EventWithdrawalFailed,
		domain.EventAuditSinkRecovered,
		domain.EventAuth,
	}, types)

	recovered := stored[3]
	require.Equal(t, "2", recovered.Context["bufferedEvents"])
	require.Equal(t, "0", recovered.Context["droppedEvents"])
	require.Equal(t, now.Format(time.RFC3339Nano), recovered.Context["failedSince"])

	check := domain.VerifyChain(stored)
	require.True(t, check.Valid)
	require.Empty(t, check.BrokenEventIDs)
}

func TestDegradedBufferIsBounded(t *testing.T) {
	sink := newFlakySink()
	svc := newTestService(t, sink, 2)

	sink.setDown(true)
	for i := 0; i < 3; i++ {
		svc.Log(ctx, domain.AuditEvent{Type: domain.EventAuth})
	}
	sink.setDown(false)
	svc.Log(ctx, domain.AuditEvent{Type: domain.EventAuth})

	stored, err := sink.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	// 2 buffered, 1 recovery, 1 new
	require.Len(t, stored, 4)
	require.Equal(t, uint64(2), stored[0].Sequence)

	recovered, err := sink.Query(ctx, domain.AuditFilter{
		Types: []domain.EventType{domain.EventAuditSinkRecovered},
	})
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, "3", recovered[0].Context["bufferedEvents"])
	require.Equal(t, "1", recovered[0].Context["droppedEvents"])

	require.True(t, domain.VerifyChain(stored).Valid)
}

func TestLogSync(t *testing.T) {
	sink := newFlakySink()
	svc := newTestService(t, sink, 0)

	event, err := svc.LogSync(ctx, domain.AuditEvent{
		Type:    domain.EventComplianceExport,
		UserID:  "auditor",
		Context: map[string]string{"viewingKey": "zxviews1secret"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.SeverityCritical, event.Severity)
	require.Equal(t, RedactedMarker, event.Context["viewingKey"])

	sink.setDown(true)
	_, err = svc.LogSync(ctx, domain.AuditEvent{Type: domain.EventComplianceExport})
	require.ErrorIs(t, err, domain.ErrAuditUnavailable)
	require.True(t, svc.Degraded())

	sink.setDown(false)
	event, err = svc.LogSync(ctx, domain.AuditEvent{Type: domain.EventComplianceExport})
	require.NoError(t, err)

	stored, err := sink.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	require.Equal(t, domain.EventAuditSinkRecovered, stored[1].Type)
	require.Equal(t, uint64(3), event.Sequence)
	require.True(t, domain.VerifyChain(stored).Valid)
}

func TestDiscardSink(t *testing.T) {
	svc := newTestService(t, NewDiscardSink(), 0)
	svc.Log(ctx, domain.AuditEvent{Type: domain.EventAuth})

	events, err := svc.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Empty(t, events)
	require.False(t, svc.Degraded())
}
