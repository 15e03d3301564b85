package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolScope/internal/model"
)

// EVMAdapter reads pool reserve state with a single eth_call pinned to
// the latest height.
type EVMAdapter struct {
	caller      ContractCaller
	reserveCall []byte
	logger      *zap.Logger
}

// NewEVMAdapter builds an adapter around an EVM read client. reserveCall
// is the ABI calldata of the pool reserve query; its 4-byte selector is
// carried into the payload so the decoder can verify what was asked.
func NewEVMAdapter(caller ContractCaller, reserveCall []byte, logger *zap.Logger) (*EVMAdapter, error) {
	if len(reserveCall) < 4 {
		return nil, fmt.Errorf("reserve calldata too short: %d bytes", len(reserveCall))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EVMAdapter{caller: caller, reserveCall: reserveCall, logger: logger}, nil
}

// Family reports the chain family this adapter serves.
func (a *EVMAdapter) Family() model.ChainFamily { return model.ChainEVM }

// Ping reports endpoint liveness.
func (a *EVMAdapter) Ping(ctx context.Context) error {
	if _, err := a.caller.LatestBlockNumber(ctx); err != nil {
		return ClassifyRPCError(err)
	}
	return nil
}

// FetchRaw issues the reserve query against the pool address. The latest
// height is resolved first and the call pinned to it, so ObservedAt names
// exactly the state that was read.
func (a *EVMAdapter) FetchRaw(ctx context.Context, id model.PoolIdentifier, timeout time.Duration) (model.RawQueryResult, error) {
	if id.Chain != model.ChainEVM {
		return model.RawQueryResult{}, fmt.Errorf("%w: %s identifier routed to evm adapter", model.ErrMalformedIdentifier, id.Chain)
	}
	if err := id.Validate(); err != nil {
		return model.RawQueryResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	height, err := a.caller.LatestBlockNumber(ctx)
	if err != nil {
		return model.RawQueryResult{}, ClassifyRPCError(err)
	}

	pool := common.BytesToAddress(id.AddressBytes())
	msg := ethereum.CallMsg{To: &pool, Data: a.reserveCall}
	ret, err := a.caller.CallContract(ctx, msg, new(big.Int).SetUint64(height))
	if err != nil {
		if isRevert(err) {
			return model.RawQueryResult{}, fmt.Errorf("%w: %s rejected the reserve query", model.ErrAccountNotFound, id)
		}
		return model.RawQueryResult{}, ClassifyRPCError(err)
	}
	if len(ret) == 0 {
		// eth_call against an address without code returns empty data.
		return model.RawQueryResult{}, fmt.Errorf("%w: no contract code at %s", model.ErrAccountNotFound, id)
	}

	payload := make([]byte, 0, 4+len(ret))
	payload = append(payload, a.reserveCall[:4]...)
	payload = append(payload, ret...)

	latency := time.Since(start)
	a.logger.Debug("reserve query complete",
		zap.String("pool", id.String()),
		zap.Uint64("height", height),
		zap.Duration("latency", latency),
	)

	return model.RawQueryResult{
		Identifier:   id,
		Payload:      payload,
		ObservedAt:   height,
		FetchLatency: latency,
	}, nil
}

// isRevert detects an execution revert: the address holds a contract that
// does not answer the reserve query.
func isRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}
