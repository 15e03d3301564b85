package model

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Address lengths in bytes per chain family.
const (
	EVMAddressLen     = 20
	AccountAddressLen = 32
)

// PoolIdentifier names one pool on one chain. Address holds the raw
// address bytes (20 for EVM, 32 for account-model) in a string so the
// struct stays comparable and usable as a map key.
type PoolIdentifier struct {
	Chain   ChainFamily
	Address string
}

// NewPoolIdentifier builds an identifier from raw address bytes,
// validating the length against the chain family.
func NewPoolIdentifier(chain ChainFamily, addr []byte) (PoolIdentifier, error) {
	id := PoolIdentifier{Chain: chain, Address: string(addr)}
	if err := id.Validate(); err != nil {
		return PoolIdentifier{}, err
	}
	return id, nil
}

// ParsePoolIdentifier parses the chain-native text form of an address:
// 0x-prefixed hex for EVM, base58 for account-model.
func ParsePoolIdentifier(chain ChainFamily, text string) (PoolIdentifier, error) {
	switch chain {
	case ChainEVM:
		if !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") {
			return PoolIdentifier{}, fmt.Errorf("%w: evm address %q missing 0x prefix", ErrMalformedIdentifier, text)
		}
		raw, err := hex.DecodeString(text[2:])
		if err != nil {
			return PoolIdentifier{}, fmt.Errorf("%w: evm address %q: %v", ErrMalformedIdentifier, text, err)
		}
		return NewPoolIdentifier(ChainEVM, raw)
	case ChainAccountModel:
		raw, err := base58.Decode(text)
		if err != nil {
			return PoolIdentifier{}, fmt.Errorf("%w: account address %q: %v", ErrMalformedIdentifier, text, err)
		}
		return NewPoolIdentifier(ChainAccountModel, raw)
	default:
		return PoolIdentifier{}, fmt.Errorf("%w: unknown chain family %d", ErrMalformedIdentifier, chain)
	}
}

// Validate checks the chain family and the address length for that family.
func (id PoolIdentifier) Validate() error {
	switch id.Chain {
	case ChainEVM:
		if len(id.Address) != EVMAddressLen {
			return fmt.Errorf("%w: evm address is %d bytes, want %d", ErrMalformedIdentifier, len(id.Address), EVMAddressLen)
		}
	case ChainAccountModel:
		if len(id.Address) != AccountAddressLen {
			return fmt.Errorf("%w: account address is %d bytes, want %d", ErrMalformedIdentifier, len(id.Address), AccountAddressLen)
		}
	default:
		return fmt.Errorf("%w: unknown chain family %d", ErrMalformedIdentifier, id.Chain)
	}
	return nil
}

// AddressBytes returns a copy of the raw address bytes.
func (id PoolIdentifier) AddressBytes() []byte {
	return []byte(id.Address)
}

// AddressText renders the address in its chain-native text form:
// lowercase 0x-hex for EVM, base58 for account-model.
func (id PoolIdentifier) AddressText() string {
	switch id.Chain {
	case ChainAccountModel:
		return base58.Encode([]byte(id.Address))
	default:
		return "0x" + hex.EncodeToString([]byte(id.Address))
	}
}

func (id PoolIdentifier) String() string {
	return id.Chain.String() + ":" + id.AddressText()
}
