package model

import "time"

// RawQueryResult is the undecoded answer of one chain read. For EVM the
// payload is the 4-byte request selector followed by the raw return data;
// for account-model it is the concatenated account records. ObservedAt is
// the chain-native height the state was read at (block number or slot).
type RawQueryResult struct {
	Identifier   PoolIdentifier
	Payload      []byte
	ObservedAt   uint64
	FetchLatency time.Duration
}
