package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolScope/internal/chain"
	"poolScope/internal/model"
)

// PoolMetadata is the immutable per-pool context the EVM decoder needs:
// which tokens sit on each side and their decimals.
type PoolMetadata struct {
	TokenA model.TokenInfo
	TokenB model.TokenInfo
}

// MetadataSource resolves pool metadata for EVM pools.
type MetadataSource interface {
	PoolMetadata(ctx context.Context, pool common.Address) (PoolMetadata, error)
}

// ChainMetadataSource resolves metadata with token0/token1/decimals
// side-queries and caches results forever; pool composition and token
// decimals are immutable on chain.
type ChainMetadataSource struct {
	caller chain.ContractCaller
	logger *zap.Logger

	mu       sync.RWMutex
	pools    map[common.Address]PoolMetadata
	decimals map[common.Address]uint8
}

// NewChainMetadataSource builds a metadata source over an EVM read client.
func NewChainMetadataSource(caller chain.ContractCaller, logger *zap.Logger) *ChainMetadataSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainMetadataSource{
		caller:   caller,
		logger:   logger,
		pools:    make(map[common.Address]PoolMetadata),
		decimals: make(map[common.Address]uint8),
	}
}

// PoolMetadata returns the cached metadata for pool, resolving it on
// first sight.
func (s *ChainMetadataSource) PoolMetadata(ctx context.Context, pool common.Address) (PoolMetadata, error) {
	s.mu.RLock()
	meta, ok := s.pools[pool]
	s.mu.RUnlock()
	if ok {
		return meta, nil
	}

	parsed, err := PairABI()
	if err != nil {
		return PoolMetadata{}, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := callPoolMethod(ctx, s.caller, pool, parsed, "token0")
	if err != nil {
		return PoolMetadata{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return PoolMetadata{}, fmt.Errorf("%w: token0: %v", model.ErrDecode, err)
	}

	values, err = callPoolMethod(ctx, s.caller, pool, parsed, "token1")
	if err != nil {
		return PoolMetadata{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return PoolMetadata{}, fmt.Errorf("%w: token1: %v", model.ErrDecode, err)
	}

	decimals0, err := s.lookupDecimals(ctx, token0)
	if err != nil {
		return PoolMetadata{}, err
	}
	decimals1, err := s.lookupDecimals(ctx, token1)
	if err != nil {
		return PoolMetadata{}, err
	}

	meta = PoolMetadata{
		TokenA: model.TokenInfo{Address: token0.Hex(), Decimals: decimals0},
		TokenB: model.TokenInfo{Address: token1.Hex(), Decimals: decimals1},
	}

	s.mu.Lock()
	s.pools[pool] = meta
	s.mu.Unlock()

	s.logger.Debug("pool metadata resolved",
		zap.String("pool", pool.Hex()),
		zap.String("token0", meta.TokenA.Address),
		zap.String("token1", meta.TokenB.Address),
	)
	return meta, nil
}

func (s *ChainMetadataSource) lookupDecimals(ctx context.Context, token common.Address) (uint8, error) {
	s.mu.RLock()
	dec, ok := s.decimals[token]
	s.mu.RUnlock()
	if ok {
		return dec, nil
	}

	parsed, err := erc20ABIInstance()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callPoolMethod(ctx, s.caller, token, parsed, "decimals")
	if err != nil {
		return 0, err
	}
	dec, err = asUint8(values[0])
	if err != nil {
		return 0, fmt.Errorf("%w: decimals: %v", model.ErrDecode, err)
	}

	s.mu.Lock()
	s.decimals[token] = dec
	s.mu.Unlock()
	return dec, nil
}

// StaticMetadataSource serves pre-resolved metadata. Useful when the pool
// set is known up front and for tests.
type StaticMetadataSource struct {
	pools map[common.Address]PoolMetadata
}

// NewStaticMetadataSource builds a source from a fixed metadata map.
func NewStaticMetadataSource(pools map[common.Address]PoolMetadata) *StaticMetadataSource {
	return &StaticMetadataSource{pools: pools}
}

// PoolMetadata returns the configured metadata for pool.
func (s *StaticMetadataSource) PoolMetadata(_ context.Context, pool common.Address) (PoolMetadata, error) {
	meta, ok := s.pools[pool]
	if !ok {
		return PoolMetadata{}, fmt.Errorf("%w: no metadata for pool %s", model.ErrDecode, pool.Hex())
	}
	return meta, nil
}

func callPoolMethod(ctx context.Context, caller chain.ContractCaller, target common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &target, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, target.Hex(), chain.ClassifyRPCError(err))
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w: %s returned no data for %s", model.ErrDecode, method, target.Hex())
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", model.ErrDecode, method, err)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
