package db_test

import (
	"testing"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestAuditRepositoryImplementations(t *testing.T) {
	repositories := createRepoManagers(t)

	for i := range repositories {
		repo := repositories[i]

		t.Run(repo.Name, func(t *testing.T) {
			sink := repo.DBManager.AuditLogSink()

			t.Run("testEmptySink", func(t *testing.T) {
				last, err := sink.Last(ctx)
				require.NoError(t, err)
				require.Nil(t, last)
			})

			t.Run("testAppendAndQuery", func(t *testing.T) {
				testAppendAndQuery(t, sink)
			})
		})
	}
}

func testAppendAndQuery(t *testing.T, sink domain.AuditLogSink) {
	base := time.Now().UTC().Truncate(time.Second)
	events := []domain.AuditEvent{
		{
			Sequence: 1, Type: domain.EventWithdrawalRequested,
			Severity: domain.SeverityInfo, Timestamp: base, UserID: "alice",
		},
		{
			Sequence: 2, Type: domain.EventRateLimitBlocked,
			Severity: domain.SeverityWarn, Timestamp: base.Add(time.Second),
			UserID: "alice", Context: map[string]string{"reason": "cooldown"},
		},
		// same timestamp as the previous one, ordered by sequence
		{
			Sequence: 3, Type: domain.EventWithdrawalRequested,
			Severity: domain.SeverityInfo, Timestamp: base.Add(time.Second),
			UserID: "bob",
		},
		{
			Sequence: 4, Type: domain.EventComplianceExport,
			Severity: domain.SeverityCritical, Timestamp: base.Add(time.Minute),
		},
	}
	for i := range events {
		events[i].ID = randomID()
		require.NoError(t, sink.Append(ctx, events[i]))
	}

	last, err := sink.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, uint64(4), last.Sequence)

	tests := []struct {
		name      string
		filter    domain.AuditFilter
		sequences []uint64
	}{
		{"all", domain.AuditFilter{}, []uint64{1, 2, 3, 4}},
		{"by user", domain.AuditFilter{UserID: "alice"}, []uint64{1, 2}},
		{
			"by type",
			domain.AuditFilter{Types: []domain.EventType{domain.EventWithdrawalRequested}},
			[]uint64{1, 3},
		},
		{
			"by severity",
			domain.AuditFilter{Severities: []domain.Severity{
				domain.SeverityWarn, domain.SeverityCritical,
			}},
			[]uint64{2, 4},
		},
		{
			"by time range",
			domain.AuditFilter{From: base.Add(time.Second), To: base.Add(time.Second)},
			[]uint64{2, 3},
		},
		{"with limit", domain.AuditFilter{Limit: 3}, []uint64{1, 2, 3}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := sink.Query(ctx, tt.filter)
			require.NoError(t, err)

			sequences := make([]uint64, 0, len(got))
			for _, e := range got {
				sequences = append(sequences, e.Sequence)
			}
			require.Equal(t, tt.sequences, sequences)
		})
	}

	got, err := sink.Query(ctx, domain.AuditFilter{UserID: "alice"})
	require.NoError(t, err)
	require.Equal(t, "cooldown", got[1].Context["reason"])
}
