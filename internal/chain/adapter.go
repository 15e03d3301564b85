package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"

	"poolScope/internal/model"
)

// Adapter fetches the raw state of one pool on one chain family. Adapters
// are stateless and safe for concurrent use; they apply the caller's
// timeout, never retry and never cache. Retry policy belongs to the
// orchestrator.
type Adapter interface {
	Family() model.ChainFamily
	FetchRaw(ctx context.Context, id model.PoolIdentifier, timeout time.Duration) (model.RawQueryResult, error)
	Ping(ctx context.Context) error
}

// ContractCaller is the EVM read capability the adapter depends on.
// *EVMClient implements it; tests substitute doubles.
type ContractCaller interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// AccountReader is the account-model read capability the adapter depends
// on. *AccountClient implements it; tests substitute doubles.
type AccountReader interface {
	AccountData(ctx context.Context, pubkey string) ([]byte, uint64, error)
	MultipleAccountData(ctx context.Context, pubkeys []string) ([][]byte, uint64, error)
	Slot(ctx context.Context) (uint64, error)
}

// ClassifyRPCError separates deadline expiry from plain unreachability so
// the retry layer can tell them apart in logs. Both are transient.
func ClassifyRPCError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", model.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", model.ErrChainUnreachable, err)
}
