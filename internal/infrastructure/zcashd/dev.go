package zcashd

import (
	"context"
	"sync"
	"time"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/shielded-exchange/withdrawd/pkg/zip317"
	"github.com/thanhpk/randstr"
)

// DevWallet pretends to submit withdrawals. Transactions gain one
// confirmation per BlockTime elapsed since their submission. It is meant
// for development and tests, never for production.
type DevWallet struct {
	BlockTime time.Duration

	lock      sync.Mutex
	submitted map[string]time.Time
}

func NewDevWallet(blockTime time.Duration) *DevWallet {
	if blockTime <= 0 {
		blockTime = 75 * time.Second
	}
	return &DevWallet{
		BlockTime: blockTime,
		submitted: make(map[string]time.Time),
	}
}

func (w *DevWallet) Submit(
	ctx context.Context, req domain.WithdrawalRequest, _ ports.PrivacyPolicy,
) (*domain.WithdrawalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txID := randstr.Hex(32)
	now := time.Now().UTC()

	w.lock.Lock()
	w.submitted[txID] = now
	w.lock.Unlock()

	return &domain.WithdrawalResult{
		Success:       true,
		TransactionID: txID,
		OperationID:   "opid-" + randstr.Hex(16),
		Fee:           zip317.ToZec(zip317.ConventionalFee(zip317.GraceActions)),
		RequestID:     req.RequestID,
		CompletedAt:   now,
	}, nil
}

func (w *DevWallet) GetStatus(_ context.Context, txID string) (ports.TxStatus, error) {
	w.lock.Lock()
	submittedAt, ok := w.submitted[txID]
	w.lock.Unlock()

	if !ok {
		return ports.TxStatus{State: ports.TxStateUnknown}, nil
	}
	confirmations := int(time.Since(submittedAt) / w.BlockTime)
	if confirmations == 0 {
		return ports.TxStatus{State: ports.TxStatePending}, nil
	}
	return ports.TxStatus{
		State:         ports.TxStateConfirmed,
		Confirmations: confirmations,
	}, nil
}

func (w *DevWallet) ExportViewingKey(_ context.Context, address string) (string, error) {
	if address == "" {
		return "", domain.NewValidationError("address", "must not be empty")
	}
	return "zxviews1" + randstr.Hex(64), nil
}
