package audit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const defaultBufferSize = 10000

// Config tunes the audit logger.
type Config struct {
	AddressPrefixLength int
	DisclosureThreshold decimal.Decimal
	// BufferSize bounds the events kept in memory while the sink is down.
	BufferSize int
}

// Service is the audit logger. It assigns identity, sequence and chain hash
// to events, redacts their context and appends them to the sink. When the
// sink fails it keeps events in memory and reports itself degraded until the
// sink accepts them again.
type Service struct {
	sink       domain.AuditLogSink
	redactor   Redactor
	bufferSize int
	logger     *log.Entry
	now        func() time.Time

	lock        *sync.Mutex
	sequence    uint64
	lastHash    string
	degraded    bool
	failedSince time.Time
	pending     []domain.AuditEvent
	buffered    int
	dropped     int
}

func NewService(
	sink domain.AuditLogSink, cfg Config, logger *log.Entry,
) (*Service, error) {
	if sink == nil {
		return nil, fmt.Errorf("missing audit sink")
	}
	if cfg.DisclosureThreshold.IsNegative() {
		return nil, &domain.ConfigurationError{
			Field: "disclosureThreshold", Reason: "must not be negative",
		}
	}
	if logger == nil {
		logger = log.WithField("component", "audit")
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	last, err := sink.Last(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to resume audit chain: %w", err)
	}

	svc := &Service{
		sink: sink,
		redactor: Redactor{
			AddressPrefixLength: cfg.AddressPrefixLength,
			DisclosureThreshold: cfg.DisclosureThreshold,
		},
		bufferSize: bufferSize,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		lock:       &sync.Mutex{},
	}
	if last != nil {
		svc.sequence = last.Sequence
		svc.lastHash = last.Hash
	}
	return svc, nil
}

// Log appends the event to the audit trail. It never fails: if the sink is
// unavailable the event is buffered and written to the fallback log.
func (s *Service) Log(ctx context.Context, event domain.AuditEvent) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.recover(ctx)

	e := s.prepare(event)
	if s.degraded {
		s.buffer(e)
		return
	}
	if err := s.sink.Append(ctx, e); err != nil {
		s.degrade(err)
		s.buffer(e)
	}
}

// LogSync appends the event and returns only once the sink accepted it. It
// fails with ErrAuditUnavailable if the sink is down, in which case the
// event is not recorded.
func (s *Service) LogSync(
	ctx context.Context, event domain.AuditEvent,
) (*domain.AuditEvent, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.recover(ctx)
	if s.degraded {
		s.logger.WithField("type", event.Type).
			Error("audit sink unavailable, refusing synchronous event")
		return nil, domain.ErrAuditUnavailable
	}

	prevSequence, prevHash := s.sequence, s.lastHash
	e := s.prepare(event)
	if err := s.sink.Append(ctx, e); err != nil {
		s.sequence, s.lastHash = prevSequence, prevHash
		s.degrade(err)
		return nil, fmt.Errorf("%w: %s", domain.ErrAuditUnavailable, err)
	}
	return &e, nil
}

// Query returns the events matching the filter ordered by timestamp, then
// sequence. Events still buffered because of a sink outage are included.
func (s *Service) Query(
	ctx context.Context, filter domain.AuditFilter,
) ([]domain.AuditEvent, error) {
	events, err := s.sink.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	for _, e := range s.pending {
		if filter.Matches(e) {
			events = append(events, e)
		}
	}
	s.lock.Unlock()

	domain.SortAuditEvents(events)
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}

// Degraded returns whether the sink is currently failing.
func (s *Service) Degraded() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.degraded
}

// RedactSensitiveData returns the redacted copy of ctx applied to every
// logged event.
func (s *Service) RedactSensitiveData(ctx map[string]string) map[string]string {
	return s.redactor.Redact(ctx)
}

func (s *Service) prepare(event domain.AuditEvent) domain.AuditEvent {
	e := event
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if !e.Severity.IsValid() {
		e.Severity = domain.DefaultSeverity(e.Type)
	}
	e.Context = s.redactor.Redact(event.Context)

	s.sequence++
	e.Sequence = s.sequence
	e.PrevHash = s.lastHash
	e.Hash = e.ComputeHash()
	s.lastHash = e.Hash
	return e
}

func (s *Service) degrade(err error) {
	if !s.degraded {
		s.degraded = true
		s.failedSince = s.now()
		s.logger.WithError(err).Error("audit sink unavailable, entering degraded mode")
	}
}

func (s *Service) buffer(e domain.AuditEvent) {
	s.logger.WithFields(log.Fields{
		"id":       e.ID,
		"sequence": e.Sequence,
		"type":     e.Type,
		"severity": e.Severity,
		"user_id":  e.UserID,
		"request":  e.RelatedRequestID,
		"context":  e.Context,
	}).Error("audit event not persisted")

	if len(s.pending) >= s.bufferSize {
		s.pending = s.pending[1:]
		s.dropped++
	}
	s.pending = append(s.pending, e)
	s.buffered++
}

// recover flushes the buffered events once the sink accepts them again and
// records the outage.
func (s *Service) recover(ctx context.Context) {
	if !s.degraded {
		return
	}

	for len(s.pending) > 0 {
		if err := s.sink.Append(ctx, s.pending[0]); err != nil {
			return
		}
		s.pending = s.pending[1:]
	}

	failedSince, buffered, dropped := s.failedSince, s.buffered, s.dropped
	s.degraded = false
	s.failedSince = time.Time{}
	s.buffered, s.dropped = 0, 0

	recovered := s.prepare(domain.AuditEvent{
		Type: domain.EventAuditSinkRecovered,
		Context: map[string]string{
			"failedSince":    failedSince.Format(time.RFC3339Nano),
			"bufferedEvents": strconv.Itoa(buffered),
			"droppedEvents":  strconv.Itoa(dropped),
		},
	})
	if err := s.sink.Append(ctx, recovered); err != nil {
		s.degrade(err)
		s.buffer(recovered)
		return
	}
	s.logger.WithFields(log.Fields{
		"buffered": buffered,
		"dropped":  dropped,
	}).Info("audit sink recovered")
}
