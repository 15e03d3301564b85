package config

import (
	"errors"
	"testing"

	"poolScope/internal/model"
)

func TestParsePools(t *testing.T) {
	ids, err := ParsePools([]string{
		"evm:0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc",
		"account:So11111111111111111111111111111111111111112",
	})
	if err != nil {
		t.Fatalf("ParsePools: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d identifiers, want 2", len(ids))
	}
	if ids[0].Chain != model.ChainEVM {
		t.Fatalf("ids[0].Chain = %s, want evm", ids[0].Chain)
	}
	if ids[1].Chain != model.ChainAccountModel {
		t.Fatalf("ids[1].Chain = %s, want account", ids[1].Chain)
	}
	if got := ids[0].AddressText(); got != "0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc" {
		t.Fatalf("ids[0] address round trip = %s", got)
	}
}

func TestParsePoolsRejectsBadSpecs(t *testing.T) {
	cases := []struct {
		name string
		spec string
	}{
		{"missing separator", "0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc"},
		{"unknown family", "cosmos:whatever"},
		{"bad evm address", "evm:nothex"},
		{"truncated evm address", "evm:0xb4e16d"},
		{"bad account address", "account:0OIl"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePools([]string{tc.spec}); err == nil {
				t.Fatalf("ParsePools(%q) accepted a bad spec", tc.spec)
			}
		})
	}
}

func TestParsePoolsWrapsMalformedIdentifier(t *testing.T) {
	_, err := ParsePools([]string{"evm:0x1234"})
	if !errors.Is(err, model.ErrMalformedIdentifier) {
		t.Fatalf("ParsePools error = %v, want malformed identifier", err)
	}
}
