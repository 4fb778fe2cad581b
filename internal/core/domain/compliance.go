package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRange is an inclusive time interval.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate returns ErrInvalidRange if the range starts after it ends.
func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return ErrInvalidRange
	}
	return nil
}

// Contains returns whether t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// VelocityThresholds configure the velocity risk score. Weights are relative
// to each other, the score is normalized on their sum.
type VelocityThresholds struct {
	Window                 time.Duration
	HistoryWindow          time.Duration
	MaxWithdrawalsInWindow int
	MaxAmountInWindow      decimal.Decimal
	AmountRatioCeiling     float64
	FrequencyWeight        float64
	AmountRatioWeight      float64
	ProximityWeight        float64
	FlagWeight             float64
	WarnScore              int
	BlockScore             int
}

// DefaultVelocityThresholds returns the thresholds used when none are
// configured.
func DefaultVelocityThresholds() VelocityThresholds {
	return VelocityThresholds{
		Window:                 time.Hour,
		HistoryWindow:          30 * 24 * time.Hour,
		MaxWithdrawalsInWindow: 5,
		MaxAmountInWindow:      decimal.NewFromInt(100),
		AmountRatioCeiling:     10,
		FrequencyWeight:        0.35,
		AmountRatioWeight:      0.25,
		ProximityWeight:        0.25,
		FlagWeight:             0.15,
		WarnScore:              50,
		BlockScore:             80,
	}
}

// Validate returns a ConfigurationError for the first inconsistent threshold.
func (t VelocityThresholds) Validate() error {
	if t.Window <= 0 {
		return &ConfigurationError{"velocityThresholds.window", "must be positive"}
	}
	if t.HistoryWindow < t.Window {
		return &ConfigurationError{
			"velocityThresholds.historyWindow", "must not be shorter than window",
		}
	}
	if t.MaxWithdrawalsInWindow <= 0 {
		return &ConfigurationError{
			"velocityThresholds.maxWithdrawalsInWindow", "must be positive",
		}
	}
	if !t.MaxAmountInWindow.IsPositive() {
		return &ConfigurationError{
			"velocityThresholds.maxAmountInWindow", "must be positive",
		}
	}
	if t.AmountRatioCeiling <= 1 {
		return &ConfigurationError{
			"velocityThresholds.amountRatioCeiling", "must be greater than 1",
		}
	}
	for field, w := range map[string]float64{
		"frequencyWeight":   t.FrequencyWeight,
		"amountRatioWeight": t.AmountRatioWeight,
		"proximityWeight":   t.ProximityWeight,
		"flagWeight":        t.FlagWeight,
	} {
		if w < 0 {
			return &ConfigurationError{"velocityThresholds." + field, "must not be negative"}
		}
	}
	if t.FrequencyWeight+t.AmountRatioWeight+t.ProximityWeight+t.FlagWeight <= 0 {
		return &ConfigurationError{"velocityThresholds", "weights must not all be zero"}
	}
	if t.WarnScore <= 0 || t.WarnScore > t.BlockScore || t.BlockScore > 100 {
		return &ConfigurationError{
			"velocityThresholds.warnScore", "must satisfy 0 < warn <= block <= 100",
		}
	}
	return nil
}

// VelocitySnapshot is the user's recent activity a velocity check was
// computed from.
type VelocitySnapshot struct {
	WithdrawalsInWindow int             `json:"withdrawalsInWindow"`
	AmountInWindow      decimal.Decimal `json:"amountInWindow"`
	AverageAmount       decimal.Decimal `json:"averageAmount"`
	HistoricalCount     int             `json:"historicalCount"`
	UnresolvedFlags     int             `json:"unresolvedFlags"`
}

// VelocityCheckResult is derived on every call, never persisted.
type VelocityCheckResult struct {
	Passed    bool             `json:"passed"`
	RiskScore int              `json:"riskScore"`
	Reason    string           `json:"reason,omitempty"`
	Velocity  VelocitySnapshot `json:"velocity"`
}

// SuspiciousActivityFlag is append-only apart from its resolution.
type SuspiciousActivityFlag struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Reason     string    `json:"reason"`
	Severity   Severity  `json:"severity"`
	RiskScore  int       `json:"riskScore"`
	DetectedAt time.Time `json:"detectedAt"`
	Resolved   bool      `json:"resolved"`
}

// ComplianceSummary aggregates the events of a report period.
type ComplianceSummary struct {
	TotalEvents             int `json:"totalEvents"`
	WithdrawalsRequested    int `json:"withdrawalsRequested"`
	WithdrawalsCompleted    int `json:"withdrawalsCompleted"`
	WithdrawalsFailed       int `json:"withdrawalsFailed"`
	RateLimitBlocked        int `json:"rateLimitBlocked"`
	VelocityBlocked         int `json:"velocityBlocked"`
	SuspiciousActivityFlags int `json:"suspiciousActivityFlags"`
	ViewingKeyExports       int `json:"viewingKeyExports"`
	UniqueUsers             int `json:"uniqueUsers"`
}

// IntegrityCheck is the result of verifying the audit hash chain over the
// events of a report.
type IntegrityCheck struct {
	Valid          bool     `json:"valid"`
	CheckedEvents  int      `json:"checkedEvents"`
	BrokenEventIDs []string `json:"brokenEventIds,omitempty"`
}

// ComplianceReport is a pure read over audit events and flags.
type ComplianceReport struct {
	GeneratedAt      time.Time                `json:"generatedAt"`
	PeriodStart      time.Time                `json:"periodStart"`
	PeriodEnd        time.Time                `json:"periodEnd"`
	Summary          ComplianceSummary        `json:"summary"`
	EventsByType     map[EventType]int        `json:"eventsByType"`
	EventsBySeverity map[Severity]int         `json:"eventsBySeverity"`
	Flags            []SuspiciousActivityFlag `json:"flags"`
	IntegrityCheck   IntegrityCheck           `json:"integrityCheck"`
}

// ViewingKeyScope selects what a viewing key export discloses.
type ViewingKeyScope struct {
	UserID     string
	Addresses  []string
	DateRange  DateRange
	ExportedBy string
	Reason     string
}

// ViewingKey is the read-only key of a single address.
type ViewingKey struct {
	Address string `json:"address"`
	Key     string `json:"key"`
}

// ViewingKeyBundle records a compliance disclosure.
type ViewingKeyBundle struct {
	ID         string       `json:"id"`
	UserID     string       `json:"userId,omitempty"`
	Keys       []ViewingKey `json:"keys"`
	DateRange  DateRange    `json:"dateRange"`
	ExportedAt time.Time    `json:"exportedAt"`
	ExportedBy string       `json:"exportedBy"`
}
