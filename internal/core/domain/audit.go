package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"time"
)

// EventType classifies audit events.
type EventType string

const (
	EventAuth                EventType = "AUTH"
	EventWithdrawalRequested EventType = "WITHDRAWAL_REQUESTED"
	EventWithdrawalRejected  EventType = "WITHDRAWAL_REJECTED"
	EventWithdrawalSubmitted EventType = "WITHDRAWAL_SUBMITTED"
	EventWithdrawalCompleted EventType = "WITHDRAWAL_COMPLETED"
	EventWithdrawalFailed    EventType = "WITHDRAWAL_FAILED"
	EventWithdrawalReplayed  EventType = "WITHDRAWAL_REPLAYED"
	EventDuplicateRequest    EventType = "DUPLICATE_REQUEST"
	EventRateLimitBlocked    EventType = "RATE_LIMIT_BLOCKED"
	EventVelocityBlocked     EventType = "VELOCITY_BLOCKED"
	EventSuspiciousActivity  EventType = "SUSPICIOUS_ACTIVITY"
	EventFlagResolved        EventType = "FLAG_RESOLVED"
	EventKeyOperation        EventType = "KEY_OPERATION"
	EventComplianceExport    EventType = "COMPLIANCE_EXPORT"
	EventAuditSinkRecovered  EventType = "AUDIT_SINK_RECOVERED"
)

// Severity of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityCritical Severity = "CRITICAL"
)

var defaultSeverityByType = map[EventType]Severity{
	EventAuth:                SeverityInfo,
	EventWithdrawalRequested: SeverityInfo,
	EventWithdrawalRejected:  SeverityWarn,
	EventWithdrawalSubmitted: SeverityInfo,
	EventWithdrawalCompleted: SeverityInfo,
	EventWithdrawalFailed:    SeverityWarn,
	EventWithdrawalReplayed:  SeverityInfo,
	EventDuplicateRequest:    SeverityWarn,
	EventRateLimitBlocked:    SeverityWarn,
	EventVelocityBlocked:     SeverityWarn,
	EventSuspiciousActivity:  SeverityCritical,
	EventFlagResolved:        SeverityInfo,
	EventKeyOperation:        SeverityWarn,
	EventComplianceExport:    SeverityCritical,
	EventAuditSinkRecovered:  SeverityWarn,
}

// DefaultSeverity returns the severity of events of the given type when the
// caller does not supply one. Unknown types default to INFO.
func DefaultSeverity(t EventType) Severity {
	if s, ok := defaultSeverityByType[t]; ok {
		return s
	}
	return SeverityInfo
}

// IsValid returns whether s is one of the known severities.
func (s Severity) IsValid() bool {
	return s == SeverityInfo || s == SeverityWarn || s == SeverityCritical
}

// AuditEvent is immutable once appended to a sink. Sequence, PrevHash and
// Hash are assigned by the audit logger and chain the events together.
type AuditEvent struct {
	ID               string            `json:"id"`
	Sequence         uint64            `json:"sequence"`
	Type             EventType         `json:"type"`
	Severity         Severity          `json:"severity"`
	Timestamp        time.Time         `json:"timestamp"`
	UserID           string            `json:"userId,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
	RelatedRequestID string            `json:"relatedRequestId,omitempty"`
	PrevHash         string            `json:"prevHash"`
	Hash             string            `json:"hash"`
}

// ComputeHash returns the chain hash of the event, covering the previous
// hash and every field but Hash itself.
func (e AuditEvent) ComputeHash() string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(e.PrevHash)
	write(e.ID)
	write(strconv.FormatUint(e.Sequence, 10))
	write(string(e.Type))
	write(string(e.Severity))
	write(e.Timestamp.UTC().Format(time.RFC3339Nano))
	write(e.UserID)
	write(e.RelatedRequestID)

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k)
		write(e.Context[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AuditFilter selects events in a query. Zero values match everything.
type AuditFilter struct {
	From       time.Time
	To         time.Time
	UserID     string
	Types      []EventType
	Severities []Severity
	Limit      int
}

// Matches returns whether the event satisfies the filter, ignoring Limit.
func (f AuditFilter) Matches(e AuditEvent) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	return true
}

// SortAuditEvents orders events by timestamp, then by sequence.
func SortAuditEvents(events []AuditEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Sequence < events[j].Sequence
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// VerifyChain checks the hash of every event and the link between events
// with consecutive sequence numbers. Events need not be contiguous nor
// sorted.
func VerifyChain(events []AuditEvent) IntegrityCheck {
	sorted := make([]AuditEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})

	check := IntegrityCheck{Valid: true, CheckedEvents: len(sorted)}
	for i, e := range sorted {
		broken := e.ComputeHash() != e.Hash
		if i > 0 {
			prev := sorted[i-1]
			if prev.Sequence+1 == e.Sequence && prev.Hash != e.PrevHash {
				broken = true
			}
		}
		if broken {
			check.Valid = false
			check.BrokenEventIDs = append(check.BrokenEventIDs, e.ID)
		}
	}
	return check
}

func containsType(list []EventType, t EventType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsSeverity(list []Severity, s Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
