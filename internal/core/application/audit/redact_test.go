package audit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	saplingAddress     = "zs1z7rejlpsa98s2rrrfkwmaxu53e4ue0ulcrw0h4x5g8jl04tak0d3mm47vdtahatqrlkngh9sly"
	transparentAddress = "t1Rv4exT7bqhZqi2j7xz8bUHDMxwosrjADU"
)

func TestRedact(t *testing.T) {
	redactor := Redactor{
		AddressPrefixLength: 8,
		DisclosureThreshold: decimal.NewFromInt(100),
	}

	tests := []struct {
		name     string
		key      string
		value    string
		expected string
	}{
		{"address key", "toAddress", saplingAddress, "zs1z7rej..."},
		{"address value", "destination", transparentAddress, "t1Rv4exT..."},
		{"short address", "fromAddress", "zs1abc", "zs1abc"},
		{"memo", "memo", "thanks for all the fish", RedactedMarker},
		{"viewing key", "viewingKey", "zxviews1q0duytgcqqqqpqre26wkl45", RedactedMarker},
		{"seed", "seedPhrase", "abandon abandon", RedactedMarker},
		{"password", "rpcPassword", "hunter2", RedactedMarker},
		{"small amount", "amount", "1.5", "1.5"},
		{"threshold amount", "amount", "100", "100"},
		{"large amount", "amount", "100.00000001", RedactedMarker},
		{"large fee", "fee", "250", RedactedMarker},
		{"not an amount", "amount", "n/a", "n/a"},
		{"plain value", "reason", "cooldown", "cooldown"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			redacted := redactor.Redact(map[string]string{tt.key: tt.value})
			require.Equal(t, tt.expected, redacted[tt.key])
		})
	}
}

func TestRedactIsIdempotent(t *testing.T) {
	redactor := Redactor{DisclosureThreshold: decimal.NewFromInt(10)}

	ctx := map[string]string{
		"toAddress":   saplingAddress,
		"fromAddress": transparentAddress,
		"counterpart": saplingAddress,
		"memo":        "hello",
		"privkey":     "secret-extended-key-main1qwerty",
		"amount":      "42",
		"fee":         "0.0001",
		"reason":      "hourly_limit",
	}

	once := redactor.Redact(ctx)
	twice := redactor.Redact(once)
	require.Equal(t, once, twice)
	require.Equal(t, "zs1z7rej...", once["toAddress"])
	require.Equal(t, "0.0001", once["fee"])
	require.Equal(t, saplingAddress, ctx["toAddress"])

	require.Nil(t, redactor.Redact(nil))
}
