package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/shopspring/decimal"
)

// GetWithdrawalStatus returns the status of the withdrawal with the given
// request id or, failing that, transaction id. A completed withdrawal is
// reported as processing until its transaction reaches MinConf
// confirmations.
func (s *Service) GetWithdrawalStatus(
	ctx context.Context, id string,
) (*domain.WithdrawalStatus, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "must not be empty")
	}

	rec, err := s.withdrawals.Get(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		rec, err = s.withdrawals.GetByTransactionID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if rec.State == domain.StateCompleted && rec.Confirmations < s.cfg.MinConf {
		s.refreshConfirmations(ctx, rec)
	}
	return s.statusOf(rec), nil
}

func (s *Service) refreshConfirmations(
	ctx context.Context, rec *domain.WithdrawalRecord,
) {
	if rec.TransactionID == "" {
		return
	}

	txStatus, err := s.submitter.GetStatus(ctx, rec.TransactionID)
	if err != nil {
		s.logger.WithError(err).WithField("tx_id", rec.TransactionID).
			Warn("failed to fetch transaction status")
		return
	}
	if txStatus.Confirmations <= rec.Confirmations {
		return
	}

	rec.Confirmations = txStatus.Confirmations
	rec.UpdatedAt = s.now()
	if err := s.withdrawals.Put(ctx, *rec); err != nil {
		s.logger.WithError(err).WithField("request_id", rec.RequestID).
			Warn("failed to persist withdrawal confirmations")
	}
}

func (s *Service) statusOf(rec *domain.WithdrawalRecord) *domain.WithdrawalStatus {
	status := &domain.WithdrawalStatus{
		TransactionID: rec.TransactionID,
		Confirmations: rec.Confirmations,
		Error:         rec.Error,
		UpdatedAt:     rec.UpdatedAt,
	}

	switch rec.State {
	case domain.StateReceived, domain.StateReserved:
		status.Status = domain.StatusPending
	case domain.StateSubmitted:
		status.Status = domain.StatusProcessing
	case domain.StateCompleted:
		status.Status = domain.StatusProcessing
		if rec.Confirmations >= s.cfg.MinConf {
			status.Status = domain.StatusCompleted
		}
	case domain.StateFailed, domain.StateRejected,
		domain.StateRateLimited, domain.StateVelocityBlocked:
		status.Status = domain.StatusFailed
	default:
		status.Status = domain.StatusUnknown
	}
	return status
}

// EstimateWithdrawalFee returns the fee the wallet is expected to pay to
// send amount to destination.
func (s *Service) EstimateWithdrawalFee(
	ctx context.Context, amount decimal.Decimal, destination string,
) (*domain.FeeEstimate, error) {
	if s.feeEstimator == nil {
		return nil, fmt.Errorf("missing fee estimator")
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if _, err := s.classify("destination", destination); err != nil {
		return nil, err
	}
	return s.feeEstimator.Estimate(ctx, amount, destination)
}

// ClassifyAddress exposes the configured classifier.
func (s *Service) ClassifyAddress(address string) ports.AddressClassification {
	return s.classifier.Classify(address)
}
