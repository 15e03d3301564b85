package model

import "errors"

// Error kinds surfaced by adapters, decoders, the orchestrator and the
// cache. Callers classify with errors.Is; wrapping sites add context with
// fmt.Errorf and %w so the kind survives the whole call chain.
var (
	// ErrMalformedIdentifier marks an identifier whose address length or
	// encoding does not match its chain family. Never retried.
	ErrMalformedIdentifier = errors.New("malformed pool identifier")

	// ErrChainUnreachable marks transport-level failure talking to a chain
	// endpoint. Transient.
	ErrChainUnreachable = errors.New("chain unreachable")

	// ErrTimeout marks a fetch attempt that exceeded its deadline. Transient.
	ErrTimeout = errors.New("fetch timed out")

	// ErrAccountNotFound marks a pool that does not exist on chain. Never
	// retried.
	ErrAccountNotFound = errors.New("pool account not found")

	// ErrDecode marks a payload whose shape does not match the expected
	// layout. Deterministic, never retried.
	ErrDecode = errors.New("payload decode failed")

	// ErrCacheCorruption marks a cache entry that violated an internal
	// invariant. Fatal to the single lookup that hit it.
	ErrCacheCorruption = errors.New("cache entry corrupted")
)

// Retryable reports whether err is transient and worth another attempt.
// Only unreachability and timeouts qualify; everything else is
// deterministic and retrying would waste the budget.
func Retryable(err error) bool {
	return errors.Is(err, ErrChainUnreachable) || errors.Is(err, ErrTimeout)
}

// Stable error codes used in serialized result sets and metric labels.
const (
	CodeMalformedIdentifier = "malformed_identifier"
	CodeChainUnreachable    = "chain_unreachable"
	CodeTimeout             = "timeout"
	CodeAccountNotFound     = "account_not_found"
	CodeDecode              = "decode_error"
	CodeCacheCorruption     = "cache_corruption"
	CodeInternal            = "internal"
)

// ErrorCode maps err to its stable code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedIdentifier):
		return CodeMalformedIdentifier
	case errors.Is(err, ErrChainUnreachable):
		return CodeChainUnreachable
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrAccountNotFound):
		return CodeAccountNotFound
	case errors.Is(err, ErrDecode):
		return CodeDecode
	case errors.Is(err, ErrCacheCorruption):
		return CodeCacheCorruption
	default:
		return CodeInternal
	}
}
