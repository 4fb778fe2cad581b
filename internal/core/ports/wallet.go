package ports

import (
	"context"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shopspring/decimal"
)

// WithdrawalSubmitter is the remote wallet that holds the keys, builds,
// signs and broadcasts shielded transactions.
type WithdrawalSubmitter interface {
	// Submit hands a validated request to the wallet. Implementations return
	// a *domain.UnknownOutcomeError when they cannot tell whether funds
	// moved.
	Submit(
		ctx context.Context, req domain.WithdrawalRequest, policy PrivacyPolicy,
	) (*domain.WithdrawalResult, error)
	GetStatus(ctx context.Context, txID string) (TxStatus, error)
}

// TxStatus is the chain status of a broadcast transaction.
type TxStatus struct {
	State         string
	Confirmations int
}

// Transaction states reported by a submitter.
const (
	TxStatePending   = "pending"
	TxStateConfirmed = "confirmed"
	TxStateUnknown   = "unknown"
)

// ViewingKeyProvider is the key custody capability used for compliance
// disclosures.
type ViewingKeyProvider interface {
	ExportViewingKey(ctx context.Context, address string) (string, error)
}

// FeeEstimator estimates the fee of sending amount to destination.
type FeeEstimator interface {
	Estimate(
		ctx context.Context, amount decimal.Decimal, destination string,
	) (*domain.FeeEstimate, error)
}

// AddressClassifier is a pure classification of an address string.
type AddressClassifier interface {
	Classify(address string) AddressClassification
}

// AddressClassification is the result of classifying an address.
type AddressClassification struct {
	Valid    bool
	Type     AddressType
	Shielded bool
	Network  Network
	Error    string
}

// AddressType is the kind of a Zcash address.
type AddressType string

const (
	AddressTransparent AddressType = "transparent"
	AddressSapling     AddressType = "sapling"
	AddressUnified     AddressType = "unified"
	AddressSprout      AddressType = "sprout"
	AddressUnknown     AddressType = "unknown"
)

// SupportsMemo returns whether outputs to this address type carry a memo.
func (t AddressType) SupportsMemo() bool {
	return t == AddressSapling || t == AddressUnified || t == AddressSprout
}

// Network an address belongs to.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)
