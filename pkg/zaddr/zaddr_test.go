package zaddr_test

import (
	"strings"
	"testing"

	"github.com/shielded-exchange/withdrawd/internal/core/ports"
	"github.com/shielded-exchange/withdrawd/pkg/zaddr"
	"github.com/stretchr/testify/require"
)

func addr(prefix string, length int) string {
	return prefix + strings.Repeat("q", length-len(prefix))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		valid    bool
		addrType ports.AddressType
		shielded bool
		network  ports.Network
	}{
		{"mainnet p2pkh", addr("t1", 35), true, ports.AddressTransparent, false, ports.NetworkMainnet},
		{"mainnet p2sh", addr("t3", 35), true, ports.AddressTransparent, false, ports.NetworkMainnet},
		{"testnet transparent", addr("tm", 35), true, ports.AddressTransparent, false, ports.NetworkTestnet},
		{"sapling", addr("zs", 78), true, ports.AddressSapling, true, ports.NetworkMainnet},
		{"testnet sapling", addr("ztestsapling", 88), true, ports.AddressSapling, true, ports.NetworkTestnet},
		{"unified", addr("u1", 141), true, ports.AddressUnified, true, ports.NetworkMainnet},
		{"testnet unified", addr("utest", 141), true, ports.AddressUnified, true, ports.NetworkTestnet},
		{"sprout", addr("zc", 95), true, ports.AddressSprout, true, ports.NetworkMainnet},
		{"short transparent", addr("t1", 34), false, ports.AddressUnknown, false, ""},
		{"long sapling", addr("zs", 91), false, ports.AddressUnknown, false, ""},
		{"unknown prefix", addr("bc1", 42), false, ports.AddressUnknown, false, ""},
		{"empty", "", false, ports.AddressUnknown, false, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := zaddr.Classify(tt.address)
			require.Equal(t, tt.valid, c.Valid)
			require.Equal(t, tt.addrType, c.Type)
			require.Equal(t, tt.shielded, c.Shielded)
			require.Equal(t, tt.network, c.Network)
			if !tt.valid {
				require.NotEmpty(t, c.Error)
			}
		})
	}
}

func TestClassifierTrimsSpaces(t *testing.T) {
	c := zaddr.NewClassifier().Classify("  " + addr("zs", 78) + "\n")
	require.True(t, c.Valid)
	require.True(t, c.Type.SupportsMemo())
}
