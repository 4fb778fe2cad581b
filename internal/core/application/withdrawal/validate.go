package withdrawal

import (
	"fmt"

	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/shopspring/decimal"
)

const zatoshiPrecision = 8

var maxMoney = decimal.NewFromInt(21000000)

func (s *Service) validate(req domain.WithdrawalRequest) error {
	if req.RequestID == "" {
		return domain.NewValidationError("requestId", "must not be empty")
	}
	if req.UserID == "" {
		return domain.NewValidationError("userId", "must not be empty")
	}
	if err := validateAmount(req.Amount); err != nil {
		return err
	}

	from, err := s.classify("fromAddress", req.FromAddress)
	if err != nil {
		return err
	}
	to, err := s.classify("toAddress", req.ToAddress)
	if err != nil {
		return err
	}
	if from.Network != to.Network {
		return domain.NewValidationError(
			"toAddress", fmt.Sprintf("belongs to %s, source is on %s", to.Network, from.Network),
		)
	}

	policy := s.cfg.PrivacyPolicy
	if policy.RequiresShieldedSource() && !from.Shielded {
		return domain.NewValidationError(
			"fromAddress", fmt.Sprintf("must be shielded under %s policy", policy),
		)
	}
	if policy.RequiresShieldedDestination() && !to.Shielded {
		return domain.NewValidationError(
			"toAddress", fmt.Sprintf("must be shielded under %s policy", policy),
		)
	}

	if len(req.Memo) > 0 {
		if !to.Type.SupportsMemo() {
			return domain.NewValidationError(
				"memo", fmt.Sprintf("not supported by %s addresses", to.Type),
			)
		}
		if len(req.Memo) > domain.MaxMemoSize {
			return domain.NewValidationError(
				"memo", fmt.Sprintf("must not exceed %d bytes", domain.MaxMemoSize),
			)
		}
	}
	return nil
}

func (s *Service) classify(
	field, address string,
) (ports.AddressClassification, error) {
	c := s.classifier.Classify(address)
	if !c.Valid {
		reason := "is not a valid address"
		if c.Error != "" {
			reason = fmt.Sprintf("is not a valid address: %s", c.Error)
		}
		return c, domain.NewValidationError(field, reason)
	}
	if s.cfg.Network != "" && c.Network != s.cfg.Network {
		return c, domain.NewValidationError(
			field, fmt.Sprintf("must be a %s address", s.cfg.Network),
		)
	}
	return c, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.NewValidationError("amount", "must be positive")
	}
	if !amount.Equal(amount.Truncate(zatoshiPrecision)) {
		return domain.NewValidationError(
			"amount", fmt.Sprintf("must not have more than %d decimals", zatoshiPrecision),
		)
	}
	if amount.GreaterThan(maxMoney) {
		return domain.NewValidationError("amount", "exceeds the coin supply")
	}
	return nil
}
