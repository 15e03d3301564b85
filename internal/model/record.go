package model

import (
	"sort"
	"time"
)

// SnapshotRecord is the JSON representation of a pool snapshot. Reserves
// are decimal strings so values above 64 bits survive serialization; the
// price is a fixed-point decimal string and null for an empty pool.
type SnapshotRecord struct {
	Chain      string    `json:"chain"`
	Address    string    `json:"address"`
	TokenA     TokenInfo `json:"token_a"`
	TokenB     TokenInfo `json:"token_b"`
	ReserveA   string    `json:"reserve_a"`
	ReserveB   string    `json:"reserve_b"`
	Price      *string   `json:"price"`
	ObservedAt uint64    `json:"observed_at"`
	FetchedAt  string    `json:"fetched_at"`
}

// ToRecord converts a snapshot to its JSON form.
func (s *PoolSnapshot) ToRecord() SnapshotRecord {
	return SnapshotRecord{
		Chain:      s.Identifier.Chain.String(),
		Address:    s.Identifier.AddressText(),
		TokenA:     s.TokenA,
		TokenB:     s.TokenB,
		ReserveA:   s.ReserveA.String(),
		ReserveB:   s.ReserveB.String(),
		Price:      s.PriceString(),
		ObservedAt: s.ObservedAt,
		FetchedAt:  s.FetchedAt.UTC().Format(time.RFC3339),
	}
}

// ErrorRecord is the JSON form of a per-identifier failure.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultRecord pairs an identifier with either its snapshot or its error.
type ResultRecord struct {
	Chain    string          `json:"chain"`
	Address  string          `json:"address"`
	Snapshot *SnapshotRecord `json:"snapshot,omitempty"`
	Error    *ErrorRecord    `json:"error,omitempty"`
}

// BatchResult is the serialized result set for one aggregate call.
type BatchResult struct {
	Requested int            `json:"requested"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Results   []ResultRecord `json:"results"`
}

// BuildBatchResult flattens a result map into its JSON form with a
// deterministic order (chain, then address).
func BuildBatchResult(results map[PoolIdentifier]Result) BatchResult {
	batch := BatchResult{
		Requested: len(results),
		Results:   make([]ResultRecord, 0, len(results)),
	}
	for id, res := range results {
		rec := ResultRecord{
			Chain:   id.Chain.String(),
			Address: id.AddressText(),
		}
		if res.Ok() {
			snap := res.Snapshot.ToRecord()
			rec.Snapshot = &snap
			batch.Succeeded++
		} else {
			rec.Error = &ErrorRecord{
				Code:    ErrorCode(res.Err),
				Message: res.Err.Error(),
			}
			batch.Failed++
		}
		batch.Results = append(batch.Results, rec)
	}
	sort.Slice(batch.Results, func(i, j int) bool {
		if batch.Results[i].Chain != batch.Results[j].Chain {
			return batch.Results[i].Chain < batch.Results[j].Chain
		}
		return batch.Results[i].Address < batch.Results[j].Address
	})
	return batch
}
