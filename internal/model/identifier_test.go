package model

import (
	"errors"
	"strings"
	"testing"
)

const (
	evmAddrText     = "0x1f98431c8ad98523631ae4a59f267346ea31f984"
	accountAddrText = "So11111111111111111111111111111111111111112"
)

func TestParsePoolIdentifierEVM(t *testing.T) {
	id, err := ParsePoolIdentifier(ChainEVM, evmAddrText)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := len(id.Address); got != EVMAddressLen {
		t.Fatalf("address length = %d, want %d", got, EVMAddressLen)
	}
	if got := id.AddressText(); got != evmAddrText {
		t.Fatalf("round trip = %q, want %q", got, evmAddrText)
	}
	if got := id.String(); got != "evm:"+evmAddrText {
		t.Fatalf("string form = %q", got)
	}
}

func TestParsePoolIdentifierAccount(t *testing.T) {
	id, err := ParsePoolIdentifier(ChainAccountModel, accountAddrText)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := len(id.Address); got != AccountAddressLen {
		t.Fatalf("address length = %d, want %d", got, AccountAddressLen)
	}
	if got := id.AddressText(); got != accountAddrText {
		t.Fatalf("round trip = %q, want %q", got, accountAddrText)
	}
}

func TestParsePoolIdentifierRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		chain ChainFamily
		text  string
	}{
		{"evm missing prefix", ChainEVM, strings.TrimPrefix(evmAddrText, "0x")},
		{"evm short", ChainEVM, "0x1f98431c8ad985"},
		{"evm long", ChainEVM, evmAddrText + "ff"},
		{"evm non hex", ChainEVM, "0x1f98431c8ad98523631ae4a59f267346ea31fzzz"},
		{"account short", ChainAccountModel, "abc"},
		{"account bad alphabet", ChainAccountModel, "0OIl"},
		{"unknown family", ChainUnknown, evmAddrText},
	}
	for _, tc := range cases {
		if _, err := ParsePoolIdentifier(tc.chain, tc.text); !errors.Is(err, ErrMalformedIdentifier) {
			t.Fatalf("%s: err = %v, want ErrMalformedIdentifier", tc.name, err)
		}
	}
}

func TestValidateLengthPerFamily(t *testing.T) {
	if err := (PoolIdentifier{Chain: ChainEVM, Address: string(make([]byte, 32))}).Validate(); !errors.Is(err, ErrMalformedIdentifier) {
		t.Fatalf("32-byte evm address accepted: %v", err)
	}
	if err := (PoolIdentifier{Chain: ChainAccountModel, Address: string(make([]byte, 20))}).Validate(); !errors.Is(err, ErrMalformedIdentifier) {
		t.Fatalf("20-byte account address accepted: %v", err)
	}
}

func TestPoolIdentifierIsMapKey(t *testing.T) {
	a, err := ParsePoolIdentifier(ChainEVM, evmAddrText)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	b, err := ParsePoolIdentifier(ChainEVM, "0x"+strings.ToUpper(strings.TrimPrefix(evmAddrText, "0x")))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	m := map[PoolIdentifier]int{a: 1}
	m[b]++
	if len(m) != 1 || m[a] != 2 {
		t.Fatalf("case variants of one address produced distinct keys: %v", m)
	}
}
