package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/application/idempotency"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

// ProcessWithdrawal runs the request through the gates and, if it passes
// them all, submits it to the wallet exactly once per request id.
//
// Policy blocks and replays of an already settled request id are reported
// in the returned outcome. Errors are reserved to invalid requests
// (ValidationError), a request id being processed by another caller
// (ErrConcurrentRequest), wallet failures (SubmissionError) and submissions
// whose outcome is unknown (UnknownOutcomeError).
func (s *Service) ProcessWithdrawal(
	ctx context.Context, req domain.WithdrawalRequest,
) (*domain.WithdrawalOutcome, error) {
	logger := s.logger.WithFields(log.Fields{
		"request_id": req.RequestID,
		"user_id":    req.UserID,
	})

	s.auditEvent(ctx, domain.EventWithdrawalRequested, "", req, map[string]string{
		"amount":      req.Amount.String(),
		"fromAddress": req.FromAddress,
		"toAddress":   req.ToAddress,
		"memoSize":    strconv.Itoa(len(req.Memo)),
	})

	if err := s.validate(req); err != nil {
		s.reject(ctx, req, err)
		return nil, err
	}
	fingerprint := req.Fingerprint()

	// A settled request id is replayed before the gates, its own success
	// must not put it on cooldown.
	rec, err := s.idempotency.Lookup(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up request: %w", err)
	}
	if rec != nil {
		if err := idempotency.CheckFingerprint(rec, fingerprint); err != nil {
			s.reject(ctx, req, err)
			return nil, err
		}
		if rec.IsTerminal() {
			return s.replay(ctx, req, rec), nil
		}
		return nil, s.duplicate(ctx, req)
	}

	rl := s.rateLimiter.CheckRateLimit(ctx, req.UserID, req.Amount)
	s.metrics.incRateLimitChecks(rl.Allowed)
	if !rl.Allowed {
		if outcome, settled, err := s.recheck(ctx, req, fingerprint); settled {
			return outcome, err
		}
		logger.WithField("reason", rl.Reason).Info("withdrawal rate limited")
		s.auditEvent(ctx, domain.EventRateLimitBlocked, "", req, map[string]string{
			"reason":       rl.Reason,
			"retryAfterMs": strconv.FormatInt(rl.RetryAfterMs, 10),
		})
		s.putBlockedRecord(ctx, req, domain.StateRateLimited, rl.Reason)
		return s.blocked(domain.StateRateLimited, rl.Reason, &rl, nil), nil
	}

	velocity, err := s.compliance.CheckVelocity(ctx, req.UserID, req.Amount)
	if err != nil {
		logger.WithError(err).Error("velocity check failed, blocking withdrawal")
		velocity = &domain.VelocityCheckResult{Reason: velocityUnavailableReason}
	}
	if !velocity.Passed {
		if outcome, settled, err := s.recheck(ctx, req, fingerprint); settled {
			return outcome, err
		}
		logger.WithField("risk_score", velocity.RiskScore).
			Warn("withdrawal blocked by velocity check")
		s.auditEvent(ctx, domain.EventVelocityBlocked, "", req, map[string]string{
			"reason":    velocity.Reason,
			"riskScore": strconv.Itoa(velocity.RiskScore),
		})
		s.putBlockedRecord(ctx, req, domain.StateVelocityBlocked, velocity.Reason)
		return s.blocked(domain.StateVelocityBlocked, velocity.Reason, &rl, velocity), nil
	}

	reservation, err := s.idempotency.Reserve(ctx, req.RequestID, fingerprint)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.reject(ctx, req, err)
			return nil, err
		}
		return nil, fmt.Errorf("failed to reserve request: %w", err)
	}
	switch reservation.Kind {
	case domain.AlreadyCommitted, domain.AlreadyFailed:
		return s.replay(ctx, req, &reservation.Record), nil
	case domain.AlreadyInProgress:
		return nil, s.duplicate(ctx, req)
	}

	record := newRecord(req, domain.StateReserved, "", reservation.Record.CreatedAt)
	s.putRecord(ctx, record)

	result, err := s.submit(ctx, req, &record)
	if err != nil {
		return nil, err
	}

	return &domain.WithdrawalOutcome{
		State:         domain.StateCompleted,
		Result:        result,
		RateLimit:     &rl,
		Velocity:      velocity,
		AuditDegraded: s.auditDegraded(),
	}, nil
}

// submit hands the reserved request to the wallet and settles the
// reservation whatever happens, with a context that outlives the caller's.
func (s *Service) submit(
	ctx context.Context, req domain.WithdrawalRequest, record *domain.WithdrawalRecord,
) (*domain.WithdrawalResult, error) {
	record.State = domain.StateSubmitted
	s.putRecord(ctx, *record)
	s.auditEvent(ctx, domain.EventWithdrawalSubmitted, "", req, map[string]string{
		"privacyPolicy": string(s.cfg.PrivacyPolicy),
	})

	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	start := time.Now()
	result, err := s.submitter.Submit(submitCtx, req, s.cfg.PrivacyPolicy)
	s.metrics.observeSubmitDuration(time.Since(start).Seconds())
	timedOut := submitCtx.Err() != nil
	cancel()

	finalizeCtx, cancelFinalize := context.WithTimeout(
		context.WithoutCancel(ctx), finalizeTimeout,
	)
	defer cancelFinalize()

	if err == nil && result == nil {
		err = fmt.Errorf("wallet returned no result")
	}
	if err == nil && !result.Success {
		err = errors.New(result.Error)
		if result.Error == "" {
			err = fmt.Errorf("wallet reported a failure")
		}
	}
	if err != nil {
		if timedOut || errors.Is(err, domain.ErrUnknownOutcome) {
			return nil, s.settleUnknown(finalizeCtx, req, record, err)
		}
		return nil, s.settleFailure(finalizeCtx, req, record, err)
	}

	return s.settleSuccess(finalizeCtx, req, record, *result), nil
}

func (s *Service) settleSuccess(
	ctx context.Context, req domain.WithdrawalRequest,
	record *domain.WithdrawalRecord, result domain.WithdrawalResult,
) *domain.WithdrawalResult {
	logger := s.logger.WithField("request_id", req.RequestID)

	result.RequestID = req.RequestID
	if result.CompletedAt.IsZero() {
		result.CompletedAt = s.now()
	}

	// Funds moved: from here on failures are logged, the reservation left
	// in progress blocks any resubmission.
	if _, err := s.idempotency.Commit(ctx, req.RequestID, result); err != nil {
		logger.WithError(err).WithField("tx_id", result.TransactionID).
			Error("failed to commit withdrawal result, reconcile manually")
	}
	if err := s.rateLimiter.RecordWithdrawal(
		ctx, req.UserID, req.RequestID, req.Amount,
	); err != nil {
		logger.WithError(err).Error("failed to record withdrawal usage")
	}

	record.State = domain.StateCompleted
	record.TransactionID = result.TransactionID
	record.OperationID = result.OperationID
	record.Fee = result.Fee
	s.putRecord(ctx, *record)

	s.auditEvent(ctx, domain.EventWithdrawalCompleted, "", req, map[string]string{
		"transactionId": result.TransactionID,
		"operationId":   result.OperationID,
		"amount":        req.Amount.String(),
		"fee":           result.Fee.String(),
	})
	s.metrics.incWithdrawals(OutcomeCompleted)

	logger.WithField("tx_id", result.TransactionID).Info("withdrawal completed")
	return &result
}

func (s *Service) settleFailure(
	ctx context.Context, req domain.WithdrawalRequest,
	record *domain.WithdrawalRecord, cause error,
) error {
	logger := s.logger.WithField("request_id", req.RequestID)
	logger.WithError(cause).Warn("withdrawal submission failed")

	stored, err := s.idempotency.Fail(ctx, req.RequestID, cause.Error())
	if err != nil {
		logger.WithError(err).Error("failed to record withdrawal failure")
	}

	record.State = domain.StateFailed
	record.Error = cause.Error()
	s.putRecord(ctx, *record)

	s.auditEvent(ctx, domain.EventWithdrawalFailed, "", req, map[string]string{
		"reason": cause.Error(),
	})
	s.metrics.incWithdrawals(OutcomeFailed)

	subErr := &domain.SubmissionError{RequestID: req.RequestID, Err: cause}
	if stored != nil {
		subErr.Result = stored.StoredResult()
	}
	return subErr
}

func (s *Service) settleUnknown(
	ctx context.Context, req domain.WithdrawalRequest,
	record *domain.WithdrawalRecord, cause error,
) error {
	unknownErr := &domain.UnknownOutcomeError{RequestID: req.RequestID, Err: cause}
	var walletErr *domain.UnknownOutcomeError
	if errors.As(cause, &walletErr) {
		unknownErr.OperationID = walletErr.OperationID
		unknownErr.Err = walletErr.Err
	}

	logger := s.logger.WithFields(log.Fields{
		"request_id":   req.RequestID,
		"operation_id": unknownErr.OperationID,
	})
	logger.WithError(cause).Error("withdrawal outcome unknown, reconcile manually")

	if _, err := s.idempotency.Fail(ctx, req.RequestID, domain.UnknownOutcomeReason); err != nil {
		logger.WithError(err).Error("failed to record unknown withdrawal outcome")
	}

	record.State = domain.StateFailed
	record.OperationID = unknownErr.OperationID
	record.Error = domain.UnknownOutcomeReason
	s.putRecord(ctx, *record)

	s.auditEvent(ctx, domain.EventWithdrawalFailed, domain.SeverityCritical, req,
		map[string]string{
			"reason":      domain.UnknownOutcomeReason,
			"operationId": unknownErr.OperationID,
			"error":       cause.Error(),
		},
	)
	s.metrics.incWithdrawals(OutcomeUnknown)

	return unknownErr
}

func (s *Service) replay(
	ctx context.Context, req domain.WithdrawalRequest, rec *domain.IdempotencyRecord,
) *domain.WithdrawalOutcome {
	s.auditEvent(ctx, domain.EventWithdrawalReplayed, "", req, map[string]string{
		"status": string(rec.Status),
	})
	s.metrics.incWithdrawals(OutcomeReplayed)

	return &domain.WithdrawalOutcome{
		State:         domain.StateReplayed,
		Result:        rec.StoredResult(),
		AuditDegraded: s.auditDegraded(),
	}
}

// recheck looks the request id up again after a gate blocked the request.
// Another caller with the same id may have reserved or settled it since the
// first lookup, and the block was then caused by that caller's withdrawal:
// the request is replayed or reported as in progress instead.
func (s *Service) recheck(
	ctx context.Context, req domain.WithdrawalRequest, fingerprint string,
) (*domain.WithdrawalOutcome, bool, error) {
	rec, err := s.idempotency.Lookup(ctx, req.RequestID)
	if err != nil {
		s.logger.WithError(err).WithField("request_id", req.RequestID).
			Warn("failed to look up blocked request")
		return nil, false, nil
	}
	if rec == nil {
		return nil, false, nil
	}
	if err := idempotency.CheckFingerprint(rec, fingerprint); err != nil {
		s.reject(ctx, req, err)
		return nil, true, err
	}
	if rec.IsTerminal() {
		return s.replay(ctx, req, rec), true, nil
	}
	return nil, true, s.duplicate(ctx, req)
}

func (s *Service) duplicate(ctx context.Context, req domain.WithdrawalRequest) error {
	s.auditEvent(ctx, domain.EventDuplicateRequest, "", req, nil)
	s.metrics.incWithdrawals(OutcomeDuplicate)
	return domain.ErrConcurrentRequest
}

func (s *Service) reject(
	ctx context.Context, req domain.WithdrawalRequest, err error,
) {
	s.auditEvent(ctx, domain.EventWithdrawalRejected, "", req, map[string]string{
		"reason": err.Error(),
	})
	s.metrics.incWithdrawals(OutcomeRejected)
}

func (s *Service) blocked(
	state domain.WithdrawalState, reason string,
	rl *domain.RateLimitResult, velocity *domain.VelocityCheckResult,
) *domain.WithdrawalOutcome {
	outcome := OutcomeRateLimited
	if state == domain.StateVelocityBlocked {
		outcome = OutcomeVelocityBlocked
	}
	s.metrics.incWithdrawals(outcome)

	return &domain.WithdrawalOutcome{
		State:         state,
		Reason:        reason,
		RateLimit:     rl,
		Velocity:      velocity,
		AuditDegraded: s.auditDegraded(),
	}
}

func (s *Service) auditEvent(
	ctx context.Context, eventType domain.EventType, severity domain.Severity,
	req domain.WithdrawalRequest, fields map[string]string,
) {
	s.audit.Log(ctx, domain.AuditEvent{
		Type:             eventType,
		Severity:         severity,
		UserID:           req.UserID,
		RelatedRequestID: req.RequestID,
		Context:          fields,
	})
}

func (s *Service) auditDegraded() bool {
	degraded := s.audit.Degraded()
	s.metrics.setAuditDegraded(degraded)
	return degraded
}

func (s *Service) putRecord(ctx context.Context, record domain.WithdrawalRecord) {
	record.UpdatedAt = s.now()
	if err := s.withdrawals.Put(ctx, record); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"request_id": record.RequestID,
			"state":      record.State,
		}).Warn("failed to persist withdrawal status")
	}
}

// putBlockedRecord stores the block unless the request id already belongs
// to a withdrawal that won its reservation.
func (s *Service) putBlockedRecord(
	ctx context.Context, req domain.WithdrawalRequest,
	state domain.WithdrawalState, reason string,
) {
	existing, err := s.withdrawals.Get(ctx, req.RequestID)
	if err == nil && existing.State.HoldsReservation() {
		s.logger.WithFields(log.Fields{
			"request_id": req.RequestID,
			"state":      existing.State,
		}).Debug("request id already reserved, keeping its status")
		return
	}
	s.putRecord(ctx, newRecord(req, state, reason, s.now()))
}

func newRecord(
	req domain.WithdrawalRequest, state domain.WithdrawalState, reason string,
	createdAt time.Time,
) domain.WithdrawalRecord {
	return domain.WithdrawalRecord{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		ToAddress: req.ToAddress,
		Amount:    req.Amount,
		State:     state,
		Error:     reason,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}
