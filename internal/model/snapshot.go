package model

import (
	"fmt"
	"math/big"
	"time"
)

// priceScale is the digit count used when rendering prices as decimal
// strings. The in-memory price stays an exact rational.
const priceScale = 18

// TokenInfo describes one side of a pool: the token address in its
// chain-native text form and its display decimals.
type TokenInfo struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// PoolSnapshot is the normalized state of one pool at one observation
// point. Values are read-only after construction; the cache hands the same
// snapshot to every caller.
type PoolSnapshot struct {
	Identifier PoolIdentifier
	TokenA     TokenInfo
	TokenB     TokenInfo
	ReserveA   *big.Int
	ReserveB   *big.Int
	// Price is reserveB over reserveA adjusted for decimals, kept exact.
	// Nil when ReserveA is zero: an empty pool has no defined price.
	Price      *big.Rat
	ObservedAt uint64
	FetchedAt  time.Time
}

// NewPoolSnapshot validates the inputs and derives the price. All snapshot
// construction goes through here so the price invariant holds everywhere.
func NewPoolSnapshot(id PoolIdentifier, tokenA, tokenB TokenInfo, reserveA, reserveB *big.Int, observedAt uint64, fetchedAt time.Time) (*PoolSnapshot, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if reserveA == nil || reserveB == nil {
		return nil, fmt.Errorf("%w: nil reserve for %s", ErrDecode, id)
	}
	if reserveA.Sign() < 0 || reserveB.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative reserve for %s", ErrDecode, id)
	}
	snap := &PoolSnapshot{
		Identifier: id,
		TokenA:     tokenA,
		TokenB:     tokenB,
		ReserveA:   new(big.Int).Set(reserveA),
		ReserveB:   new(big.Int).Set(reserveB),
		ObservedAt: observedAt,
		FetchedAt:  fetchedAt,
	}
	if snap.ReserveA.Sign() != 0 {
		num := new(big.Int).Mul(snap.ReserveB, pow10(tokenA.Decimals))
		den := new(big.Int).Mul(snap.ReserveA, pow10(tokenB.Decimals))
		snap.Price = new(big.Rat).SetFrac(num, den)
	}
	return snap, nil
}

// PriceString renders the price as a fixed-point decimal string, or nil
// for an empty pool.
func (s *PoolSnapshot) PriceString() *string {
	if s.Price == nil {
		return nil
	}
	v := s.Price.FloatString(priceScale)
	return &v
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
