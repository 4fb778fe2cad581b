// Package zaddr classifies Zcash address strings by prefix and length. It
// does not decode nor checksum addresses, the wallet does that on submission.
package zaddr

import (
	"strings"

	"github.com/shielded-exchange/withdrawd/internal/core/ports"
)

type rule struct {
	prefix   string
	minLen   int
	maxLen   int
	addrType ports.AddressType
	network  ports.Network
}

// longer prefixes first, "ztestsapling" must win over "zs" and "zc".
var rules = []rule{
	{"ztestsapling", 70, 110, ports.AddressSapling, ports.NetworkTestnet},
	{"utest", 50, 500, ports.AddressUnified, ports.NetworkTestnet},
	{"t1", 35, 35, ports.AddressTransparent, ports.NetworkMainnet},
	{"t3", 35, 35, ports.AddressTransparent, ports.NetworkMainnet},
	{"tm", 35, 35, ports.AddressTransparent, ports.NetworkTestnet},
	{"t2", 35, 35, ports.AddressTransparent, ports.NetworkTestnet},
	{"zs", 70, 90, ports.AddressSapling, ports.NetworkMainnet},
	{"u1", 50, 500, ports.AddressUnified, ports.NetworkMainnet},
	{"zc", 95, 95, ports.AddressSprout, ports.NetworkMainnet},
}

type classifier struct{}

// NewClassifier returns the reference ports.AddressClassifier.
func NewClassifier() ports.AddressClassifier {
	return classifier{}
}

func (classifier) Classify(address string) ports.AddressClassification {
	return Classify(address)
}

// Classify returns the type and network of the address, or an invalid
// classification of type unknown.
func Classify(address string) ports.AddressClassification {
	address = strings.TrimSpace(address)
	if address == "" {
		return invalid("address is empty")
	}

	for _, r := range rules {
		if !strings.HasPrefix(address, r.prefix) {
			continue
		}
		if l := len(address); l < r.minLen || l > r.maxLen {
			return invalid("invalid length for " + string(r.addrType) + " address")
		}
		return ports.AddressClassification{
			Valid:    true,
			Type:     r.addrType,
			Shielded: r.addrType != ports.AddressTransparent,
			Network:  r.network,
		}
	}
	return invalid("unrecognized address prefix")
}

func invalid(reason string) ports.AddressClassification {
	return ports.AddressClassification{
		Type:  ports.AddressUnknown,
		Error: reason,
	}
}
