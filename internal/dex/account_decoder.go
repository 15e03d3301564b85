package dex

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"poolScope/internal/chain"
	"poolScope/internal/model"
)

// AccountDecoder decodes concatenated account-model payloads: one pool
// record followed by its two vault accounts. Decimals are embedded in the
// record, so no side queries happen on this family.
type AccountDecoder struct {
	logger *zap.Logger
}

// NewAccountDecoder builds the account-model payload decoder.
func NewAccountDecoder(logger *zap.Logger) *AccountDecoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountDecoder{logger: logger}
}

// Family reports the chain family this decoder understands.
func (d *AccountDecoder) Family() model.ChainFamily { return model.ChainAccountModel }

// Decode validates the record and vault layouts and produces the
// snapshot. Reserves are the vault token amounts.
func (d *AccountDecoder) Decode(_ context.Context, raw model.RawQueryResult) (*model.PoolSnapshot, error) {
	id := raw.Identifier
	if id.Chain != model.ChainAccountModel {
		return nil, fmt.Errorf("%w: %s payload routed to account decoder", model.ErrDecode, id.Chain)
	}

	payload := raw.Payload
	want := chain.PoolRecordLen + 2*chain.TokenAccountLen
	if len(payload) != want {
		return nil, fmt.Errorf("%w: payload is %d bytes, want %d", model.ErrDecode, len(payload), want)
	}

	record := payload[:chain.PoolRecordLen]
	if record[0] != chain.PoolRecordDiscriminator {
		return nil, fmt.Errorf("%w: pool record discriminator 0x%02x", model.ErrDecode, record[0])
	}

	mintA := record[chain.PoolMintAOffset : chain.PoolMintAOffset+chain.PubkeyLen]
	mintB := record[chain.PoolMintBOffset : chain.PoolMintBOffset+chain.PubkeyLen]
	decimalsA := record[chain.PoolDecimalsAOffset]
	decimalsB := record[chain.PoolDecimalsBOffset]

	vaultA := payload[chain.PoolRecordLen : chain.PoolRecordLen+chain.TokenAccountLen]
	vaultB := payload[chain.PoolRecordLen+chain.TokenAccountLen:]

	amountA, err := vaultAmount(vaultA, mintA)
	if err != nil {
		return nil, fmt.Errorf("vault a: %w", err)
	}
	amountB, err := vaultAmount(vaultB, mintB)
	if err != nil {
		return nil, fmt.Errorf("vault b: %w", err)
	}

	tokenA := model.TokenInfo{Address: base58.Encode(mintA), Decimals: decimalsA}
	tokenB := model.TokenInfo{Address: base58.Encode(mintB), Decimals: decimalsB}

	return model.NewPoolSnapshot(
		id,
		tokenA, tokenB,
		new(big.Int).SetUint64(amountA), new(big.Int).SetUint64(amountB),
		raw.ObservedAt, time.Now().UTC(),
	)
}

// vaultAmount extracts the token amount from a vault account after
// checking it is an initialized token account holding the pool's mint.
func vaultAmount(acct, wantMint []byte) (uint64, error) {
	if len(acct) != chain.TokenAccountLen {
		return 0, fmt.Errorf("%w: vault account is %d bytes, want %d", model.ErrDecode, len(acct), chain.TokenAccountLen)
	}
	if acct[chain.TokenAccountStateOffset] != chain.TokenAccountStateInitialized {
		return 0, fmt.Errorf("%w: vault account not initialized", model.ErrDecode)
	}
	mint := acct[chain.TokenAccountMintOffset : chain.TokenAccountMintOffset+chain.PubkeyLen]
	if !bytes.Equal(mint, wantMint) {
		return 0, fmt.Errorf("%w: vault mint %s does not match pool mint %s",
			model.ErrDecode, base58.Encode(mint), base58.Encode(wantMint))
	}
	return binary.LittleEndian.Uint64(acct[chain.TokenAccountAmountOffset : chain.TokenAccountAmountOffset+8]), nil
}
