package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
)

// Service is the idempotency guard. It binds every request id to a single
// outcome on top of the store's atomic Reserve.
type Service struct {
	store domain.IdempotencyStore
	now   func() time.Time
}

func NewService(store domain.IdempotencyStore) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("missing idempotency store")
	}
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Lookup returns the record of the request id, or nil if the id was never
// reserved. It never creates a record.
func (s *Service) Lookup(
	ctx context.Context, requestID string,
) (*domain.IdempotencyRecord, error) {
	rec, err := s.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Reserve claims the request id. Exactly one caller gets NewReservation,
// any other gets the state of the existing record. If fingerprint is not
// empty and differs from the stored one the request id is being reused for
// another payload, which is reported as a ValidationError.
func (s *Service) Reserve(
	ctx context.Context, requestID, fingerprint string,
) (*domain.ReservationOutcome, error) {
	if requestID == "" {
		return nil, domain.NewValidationError("requestId", "must not be empty")
	}

	now := s.now()
	rec, created, err := s.store.Reserve(ctx, domain.IdempotencyRecord{
		RequestID:   requestID,
		Fingerprint: fingerprint,
		Status:      domain.IdempotencyInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}
	if created {
		return &domain.ReservationOutcome{
			Kind: domain.NewReservation, Record: *rec,
		}, nil
	}

	if err := CheckFingerprint(rec, fingerprint); err != nil {
		return nil, err
	}
	return &domain.ReservationOutcome{
		Kind: domain.ReservationKindFor(rec.Status), Record: *rec,
	}, nil
}

// Commit binds the result to the request id. Committing an already terminal
// record returns it unchanged.
func (s *Service) Commit(
	ctx context.Context, requestID string, result domain.WithdrawalResult,
) (*domain.IdempotencyRecord, error) {
	return s.store.Commit(ctx, requestID, result)
}

// Fail records the failure of the request id. Failing an already terminal
// record returns it unchanged.
func (s *Service) Fail(
	ctx context.Context, requestID, reason string,
) (*domain.IdempotencyRecord, error) {
	return s.store.Fail(ctx, requestID, reason)
}

// CheckFingerprint returns a ValidationError wrapping
// ErrIdempotencyKeyMismatch if the record was created for another payload.
func CheckFingerprint(rec *domain.IdempotencyRecord, fingerprint string) error {
	if fingerprint == "" || rec.Fingerprint == "" || rec.Fingerprint == fingerprint {
		return nil
	}
	return &domain.ValidationError{
		Field:  "requestId",
		Reason: "already used for a different withdrawal",
		Err:    domain.ErrIdempotencyKeyMismatch,
	}
}
