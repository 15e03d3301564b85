package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"poolScope/internal/model"
)

// AccountAdapter reads pool state from an account-model chain: the pool
// record first, then the two vault accounts it names, concatenated into
// one payload for the decoder.
type AccountAdapter struct {
	reader AccountReader
	logger *zap.Logger
}

// NewAccountAdapter builds an adapter around an account-model read client.
func NewAccountAdapter(reader AccountReader, logger *zap.Logger) *AccountAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountAdapter{reader: reader, logger: logger}
}

// Family reports the chain family this adapter serves.
func (a *AccountAdapter) Family() model.ChainFamily { return model.ChainAccountModel }

// Ping reports endpoint liveness.
func (a *AccountAdapter) Ping(ctx context.Context) error {
	if _, err := a.reader.Slot(ctx); err != nil {
		return err
	}
	return nil
}

// FetchRaw reads the pool record and its two vaults. The payload is pool
// record then vault A then vault B; ObservedAt is the slot the vault read
// was served at, since the vaults carry the reserves.
func (a *AccountAdapter) FetchRaw(ctx context.Context, id model.PoolIdentifier, timeout time.Duration) (model.RawQueryResult, error) {
	if id.Chain != model.ChainAccountModel {
		return model.RawQueryResult{}, fmt.Errorf("%w: %s identifier routed to account adapter", model.ErrMalformedIdentifier, id.Chain)
	}
	if err := id.Validate(); err != nil {
		return model.RawQueryResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	poolData, _, err := a.reader.AccountData(ctx, id.AddressText())
	if err != nil {
		return model.RawQueryResult{}, err
	}

	// A record too short to name its vaults is handed to the decoder
	// as-is; shape rejection is the decoder's call.
	if len(poolData) < PoolRecordLen {
		return model.RawQueryResult{
			Identifier:   id,
			Payload:      poolData,
			FetchLatency: time.Since(start),
		}, nil
	}

	vaultA := base58.Encode(poolData[PoolVaultAOffset : PoolVaultAOffset+PubkeyLen])
	vaultB := base58.Encode(poolData[PoolVaultBOffset : PoolVaultBOffset+PubkeyLen])
	vaults, slot, err := a.reader.MultipleAccountData(ctx, []string{vaultA, vaultB})
	if err != nil {
		return model.RawQueryResult{}, err
	}

	payload := make([]byte, 0, len(poolData)+len(vaults[0])+len(vaults[1]))
	payload = append(payload, poolData...)
	payload = append(payload, vaults[0]...)
	payload = append(payload, vaults[1]...)

	latency := time.Since(start)
	a.logger.Debug("account read complete",
		zap.String("pool", id.String()),
		zap.Uint64("slot", slot),
		zap.Duration("latency", latency),
	)

	return model.RawQueryResult{
		Identifier:   id,
		Payload:      payload,
		ObservedAt:   slot,
		FetchLatency: latency,
	}, nil
}
