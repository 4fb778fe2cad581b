package audit

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RedactedMarker replaces values that must never reach the audit log.
const RedactedMarker = "[REDACTED]"

const (
	truncationSuffix           = "..."
	minAddressLength           = 35
	defaultAddressPrefixLength = 8
)

var (
	addressPrefixes = []string{"zs", "u1", "t1", "t3", "zc", "tm", "t2", "utest", "ztestsapling"}
	secretKeywords  = []string{"key", "secret", "seed", "mnemonic", "password", "privkey"}
)

// Redactor strips identifying and secret data from event contexts.
type Redactor struct {
	// AddressPrefixLength is the number of characters of an address kept in
	// the log.
	AddressPrefixLength int
	// DisclosureThreshold is the largest amount logged in clear.
	DisclosureThreshold decimal.Decimal
}

// Redact returns a redacted copy of ctx. Redacting an already redacted
// context is a no-op.
func (r Redactor) Redact(ctx map[string]string) map[string]string {
	if ctx == nil {
		return nil
	}

	redacted := make(map[string]string, len(ctx))
	for k, v := range ctx {
		redacted[k] = r.redactValue(k, v)
	}
	return redacted
}

func (r Redactor) redactValue(key, value string) string {
	lkey := strings.ToLower(key)

	if lkey == "memo" || containsAny(lkey, secretKeywords) {
		return RedactedMarker
	}
	if strings.Contains(lkey, "address") || looksLikeAddress(value) {
		return r.truncate(value)
	}
	if strings.Contains(lkey, "amount") || lkey == "fee" {
		amount, err := decimal.NewFromString(value)
		if err == nil && amount.GreaterThan(r.DisclosureThreshold) {
			return RedactedMarker
		}
	}
	return value
}

func (r Redactor) truncate(address string) string {
	n := r.AddressPrefixLength
	if n <= 0 {
		n = defaultAddressPrefixLength
	}
	if len(address) <= n+len(truncationSuffix) {
		return address
	}
	return address[:n] + truncationSuffix
}

func looksLikeAddress(value string) bool {
	if len(value) < minAddressLength {
		return false
	}
	for _, prefix := range addressPrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
