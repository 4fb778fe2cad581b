// Package zip317 estimates the conventional fee of a shielded payment as
// defined by ZIP-317.
package zip317

import (
	"context"
	"fmt"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/shopspring/decimal"
)

const (
	MarginalFee     = 5000
	GraceActions    = 2
	ZatoshisPerCoin = 100000000

	p2pkhOutputSize         = 34
	standardOutputSize      = 34
	minOrchardBundleActions = 2
)

var coin = decimal.NewFromInt(ZatoshisPerCoin)

// ConventionalFee returns the fee in zatoshis of a transaction with the
// given number of logical actions.
func ConventionalFee(logicalActions int) int64 {
	if logicalActions < GraceActions {
		logicalActions = GraceActions
	}
	return int64(MarginalFee * logicalActions)
}

// ToZec converts zatoshis to ZEC.
func ToZec(zatoshis int64) decimal.Decimal {
	return decimal.NewFromInt(zatoshis).Div(coin)
}

// TxShape counts the components of a transaction that weigh on its fee.
type TxShape struct {
	TransparentOutputs int
	SaplingSpends      int
	SaplingOutputs     int
	OrchardActions     int
}

// LogicalActions returns the ZIP-317 logical actions of the transaction.
func (s TxShape) LogicalActions() int {
	transparent := ceilDiv(s.TransparentOutputs*p2pkhOutputSize, standardOutputSize)
	orchard := s.OrchardActions
	if orchard > 0 && orchard < minOrchardBundleActions {
		orchard = minOrchardBundleActions
	}
	return transparent + max(s.SaplingSpends, s.SaplingOutputs) + orchard
}

// ShapeOf returns the shape of a payment spending one Sapling note, with
// Sapling change, to an address of the given type. Unified addresses are
// assumed to carry an Orchard receiver.
func ShapeOf(destination ports.AddressType) TxShape {
	shape := TxShape{SaplingSpends: 1, SaplingOutputs: 1}
	switch destination {
	case ports.AddressTransparent:
		shape.TransparentOutputs = 1
	case ports.AddressUnified:
		shape.OrchardActions = 1
	default:
		shape.SaplingOutputs++
	}
	return shape
}

// Estimator is the reference ports.FeeEstimator. It does not know the
// wallet's notes so every estimate is approximate.
type Estimator struct {
	classifier ports.AddressClassifier
}

func NewEstimator(classifier ports.AddressClassifier) (*Estimator, error) {
	if classifier == nil {
		return nil, fmt.Errorf("missing address classifier")
	}
	return &Estimator{classifier}, nil
}

func (e *Estimator) Estimate(
	_ context.Context, amount decimal.Decimal, destination string,
) (*domain.FeeEstimate, error) {
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "must be positive")
	}
	c := e.classifier.Classify(destination)
	if !c.Valid {
		return nil, domain.NewValidationError("destination", c.Error)
	}

	actions := ShapeOf(c.Type).LogicalActions()
	fee := ConventionalFee(actions)
	return &domain.FeeEstimate{
		FeeZec:         ToZec(fee),
		FeeZatoshis:    fee,
		LogicalActions: actions,
		IsApproximate:  true,
	}, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
