package domain_test

import (
	"testing"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestDateRange(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	r := domain.DateRange{Start: start, End: end}

	require.NoError(t, r.Validate())
	require.True(t, r.Contains(start))
	require.True(t, r.Contains(end))
	require.False(t, r.Contains(start.Add(-time.Nanosecond)))
	require.False(t, r.Contains(end.Add(time.Nanosecond)))

	require.NoError(t, domain.DateRange{Start: start, End: start}.Validate())
	require.ErrorIs(t, domain.DateRange{Start: end, End: start}.Validate(), domain.ErrInvalidRange)
}

func TestVelocityThresholdsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, domain.DefaultVelocityThresholds().Validate())

	tests := []struct {
		name   string
		mutate func(v *domain.VelocityThresholds)
	}{
		{"window", func(v *domain.VelocityThresholds) { v.Window = 0 }},
		{"history", func(v *domain.VelocityThresholds) { v.HistoryWindow = time.Minute }},
		{"max withdrawals", func(v *domain.VelocityThresholds) { v.MaxWithdrawalsInWindow = 0 }},
		{"ratio ceiling", func(v *domain.VelocityThresholds) { v.AmountRatioCeiling = 1 }},
		{"negative weight", func(v *domain.VelocityThresholds) { v.FlagWeight = -0.1 }},
		{"zero weights", func(v *domain.VelocityThresholds) {
			v.FrequencyWeight, v.AmountRatioWeight, v.ProximityWeight, v.FlagWeight = 0, 0, 0, 0
		}},
		{"warn above block", func(v *domain.VelocityThresholds) { v.WarnScore = 90 }},
		{"block above 100", func(v *domain.VelocityThresholds) { v.BlockScore = 101 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			thresholds := domain.DefaultVelocityThresholds()
			tt.mutate(&thresholds)

			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, thresholds.Validate(), &cfgErr)
		})
	}
}
