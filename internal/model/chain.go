package model

import "fmt"

// ChainFamily identifies the execution model a pool lives on. The set is
// closed: supporting a new family means a new constant plus an adapter and
// decoder registered for it.
type ChainFamily uint8

const (
	ChainUnknown ChainFamily = iota
	ChainEVM
	ChainAccountModel
)

// Families lists the supported chain families.
func Families() []ChainFamily {
	return []ChainFamily{ChainEVM, ChainAccountModel}
}

// Valid reports whether c is a known chain family.
func (c ChainFamily) Valid() bool {
	return c == ChainEVM || c == ChainAccountModel
}

func (c ChainFamily) String() string {
	switch c {
	case ChainEVM:
		return "evm"
	case ChainAccountModel:
		return "account"
	default:
		return "unknown"
	}
}

// ParseChainFamily maps the wire name of a chain family to its constant.
func ParseChainFamily(s string) (ChainFamily, error) {
	switch s {
	case "evm":
		return ChainEVM, nil
	case "account":
		return ChainAccountModel, nil
	default:
		return ChainUnknown, fmt.Errorf("%w: unknown chain family %q", ErrMalformedIdentifier, s)
	}
}
