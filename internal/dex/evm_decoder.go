package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolScope/internal/model"
)

const (
	evmWordLen         = 32
	reserveReturnWords = 3
)

// EVMDecoder decodes selector-prefixed reserve-query returns into
// snapshots. Token composition and decimals come from the injected
// metadata source.
type EVMDecoder struct {
	meta   MetadataSource
	logger *zap.Logger
}

// NewEVMDecoder builds the EVM payload decoder.
func NewEVMDecoder(meta MetadataSource, logger *zap.Logger) *EVMDecoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EVMDecoder{meta: meta, logger: logger}
}

// Family reports the chain family this decoder understands.
func (d *EVMDecoder) Family() model.ChainFamily { return model.ChainEVM }

// Decode validates the payload shape and produces the snapshot. The
// payload must carry the reserve-query selector followed by exactly the
// three-word return tuple.
func (d *EVMDecoder) Decode(ctx context.Context, raw model.RawQueryResult) (*model.PoolSnapshot, error) {
	id := raw.Identifier
	if id.Chain != model.ChainEVM {
		return nil, fmt.Errorf("%w: %s payload routed to evm decoder", model.ErrDecode, id.Chain)
	}

	selector, err := ReserveQueryCalldata()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	payload := raw.Payload
	if len(payload) < len(selector) {
		return nil, fmt.Errorf("%w: payload is %d bytes, shorter than the selector", model.ErrDecode, len(payload))
	}
	if !bytes.Equal(payload[:len(selector)], selector) {
		return nil, fmt.Errorf("%w: payload selector %x does not match the reserve query", model.ErrDecode, payload[:len(selector)])
	}

	body := payload[len(selector):]
	if len(body) != evmWordLen*reserveReturnWords {
		return nil, fmt.Errorf("%w: reserve return is %d bytes, want %d", model.ErrDecode, len(body), evmWordLen*reserveReturnWords)
	}

	reserveA := wordToBig(body[:evmWordLen])
	reserveB := wordToBig(body[evmWordLen : 2*evmWordLen])
	// The third word is the pair's own last-update timestamp; the
	// observation height comes from the adapter.

	meta, err := d.meta.PoolMetadata(ctx, common.BytesToAddress(id.AddressBytes()))
	if err != nil {
		return nil, err
	}

	return model.NewPoolSnapshot(id, meta.TokenA, meta.TokenB, reserveA, reserveB, raw.ObservedAt, time.Now().UTC())
}

func wordToBig(word []byte) *big.Int {
	return new(uint256.Int).SetBytes(word).ToBig()
}
