package dex

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"testing"

	"github.com/mr-tron/base58"

	"poolScope/internal/chain"
	"poolScope/internal/model"
)

func accountKey(seed byte) []byte {
	b := make([]byte, chain.PubkeyLen)
	for i := range b {
		b[i] = seed
	}
	return b
}

func accountID(t *testing.T, seed byte) model.PoolIdentifier {
	t.Helper()
	id, err := model.NewPoolIdentifier(model.ChainAccountModel, accountKey(seed))
	if err != nil {
		t.Fatalf("identifier: %v", err)
	}
	return id
}

func poolRecord(mintA, mintB []byte, decA, decB byte) []byte {
	rec := make([]byte, chain.PoolRecordLen)
	rec[0] = chain.PoolRecordDiscriminator
	copy(rec[chain.PoolMintAOffset:], mintA)
	copy(rec[chain.PoolMintBOffset:], mintB)
	copy(rec[chain.PoolVaultAOffset:], accountKey(0x0A))
	copy(rec[chain.PoolVaultBOffset:], accountKey(0x0B))
	rec[chain.PoolDecimalsAOffset] = decA
	rec[chain.PoolDecimalsBOffset] = decB
	return rec
}

func tokenAccount(mint []byte, amount uint64) []byte {
	acct := make([]byte, chain.TokenAccountLen)
	copy(acct[chain.TokenAccountMintOffset:], mint)
	binary.LittleEndian.PutUint64(acct[chain.TokenAccountAmountOffset:], amount)
	acct[chain.TokenAccountStateOffset] = chain.TokenAccountStateInitialized
	return acct
}

func accountPayload(record, vaultA, vaultB []byte) []byte {
	payload := make([]byte, 0, len(record)+len(vaultA)+len(vaultB))
	payload = append(payload, record...)
	payload = append(payload, vaultA...)
	payload = append(payload, vaultB...)
	return payload
}

func TestAccountDecodeBuildsSnapshot(t *testing.T) {
	mintA, mintB := accountKey(0x01), accountKey(0x02)
	payload := accountPayload(
		poolRecord(mintA, mintB, 9, 6),
		tokenAccount(mintA, 5_000_000_000),
		tokenAccount(mintB, 750_000),
	)

	decoder := NewAccountDecoder(nil)
	snap, err := decoder.Decode(context.Background(), model.RawQueryResult{
		Identifier: accountID(t, 0xA0),
		Payload:    payload,
		ObservedAt: 255_000_000,
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ReserveA.Uint64() != 5_000_000_000 || snap.ReserveB.Uint64() != 750_000 {
		t.Fatalf("reserves = %s / %s", snap.ReserveA, snap.ReserveB)
	}
	if snap.TokenA.Address != base58.Encode(mintA) || snap.TokenA.Decimals != 9 {
		t.Fatalf("token a = %+v", snap.TokenA)
	}
	if snap.TokenB.Address != base58.Encode(mintB) || snap.TokenB.Decimals != 6 {
		t.Fatalf("token b = %+v", snap.TokenB)
	}
	if snap.ObservedAt != 255_000_000 {
		t.Fatalf("observed_at = %d", snap.ObservedAt)
	}
	// 750000/5000000000 scaled by 10^9 / 10^6 = 0.15
	want := big.NewRat(15, 100)
	if snap.Price == nil || snap.Price.Cmp(want) != 0 {
		t.Fatalf("price = %v, want 0.15", snap.Price)
	}
}

func TestAccountDecodeEmptyVaultAGivesNilPrice(t *testing.T) {
	mintA, mintB := accountKey(0x01), accountKey(0x02)
	payload := accountPayload(
		poolRecord(mintA, mintB, 6, 6),
		tokenAccount(mintA, 0),
		tokenAccount(mintB, 42),
	)

	snap, err := NewAccountDecoder(nil).Decode(context.Background(), model.RawQueryResult{
		Identifier: accountID(t, 0xA0),
		Payload:    payload,
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Price != nil {
		t.Fatalf("price = %v, want nil", snap.Price)
	}
}

func TestAccountDecodeRejectsBadShapes(t *testing.T) {
	mintA, mintB := accountKey(0x01), accountKey(0x02)
	good := accountPayload(
		poolRecord(mintA, mintB, 6, 6),
		tokenAccount(mintA, 1),
		tokenAccount(mintB, 1),
	)

	short := good[:len(good)-1]

	badDiscriminator := append([]byte{}, good...)
	badDiscriminator[0] = 0x07

	uninitVault := accountPayload(
		poolRecord(mintA, mintB, 6, 6),
		tokenAccount(mintA, 1),
		tokenAccount(mintB, 1),
	)
	uninitVault[chain.PoolRecordLen+chain.TokenAccountStateOffset] = 0

	mintMismatch := accountPayload(
		poolRecord(mintA, mintB, 6, 6),
		tokenAccount(accountKey(0x33), 1),
		tokenAccount(mintB, 1),
	)

	decoder := NewAccountDecoder(nil)
	cases := []struct {
		name    string
		payload []byte
	}{
		{"truncated payload", short},
		{"unknown discriminator", badDiscriminator},
		{"uninitialized vault", uninitVault},
		{"vault mint mismatch", mintMismatch},
	}
	for _, tc := range cases {
		_, err := decoder.Decode(context.Background(), model.RawQueryResult{
			Identifier: accountID(t, 0xA0),
			Payload:    tc.payload,
		})
		if !errors.Is(err, model.ErrDecode) {
			t.Fatalf("%s: err = %v, want ErrDecode", tc.name, err)
		}
	}
}
