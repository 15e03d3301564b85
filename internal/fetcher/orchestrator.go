package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"poolScope/internal/chain"
	"poolScope/internal/dex"
	"poolScope/internal/model"
)

// taskState tracks a single identifier through its fetch pipeline.
type taskState uint8

const (
	taskPending taskState = iota
	taskInFlight
	taskDecoded
	taskFailed
)

func (s taskState) String() string {
	switch s {
	case taskPending:
		return "pending"
	case taskInFlight:
		return "in_flight"
	case taskDecoded:
		return "decoded"
	case taskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	defaultRetryBudget    = 2
	defaultRetryBackoff   = 200 * time.Millisecond
	defaultItemTimeout    = 5 * time.Second
	defaultMaxConcurrency = 8
)

// Config holds orchestration limits. Zero values fall back to defaults;
// RequestsPerSecond == 0 disables rate limiting.
type Config struct {
	// RetryBudget is the number of additional attempts after the first
	// for transient failures. Deterministic failures are never retried.
	RetryBudget int
	// RetryBackoff is the delay before the first retry; it doubles on
	// each subsequent one.
	RetryBackoff time.Duration
	// ItemTimeout bounds each individual fetch attempt.
	ItemTimeout time.Duration
	// MaxConcurrency caps in-flight fetches per chain family.
	MaxConcurrency int
	// RequestsPerSecond throttles outbound requests per chain family.
	RequestsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.RetryBudget < 0 {
		c.RetryBudget = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = defaultItemTimeout
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	return c
}

// BatchOptions tune a single FetchOne or FetchBatch call.
type BatchOptions struct {
	// ItemTimeout overrides Config.ItemTimeout when positive.
	ItemTimeout time.Duration
	// MaxConcurrency caps the batch fan-out when positive. The
	// per-chain limits still apply underneath it.
	MaxConcurrency int
}

// Orchestrator fans pool fetches out across chain adapters under
// per-chain concurrency and rate limits, retrying transient failures
// with exponential backoff and decoding raw payloads into snapshots.
type Orchestrator struct {
	cfg      Config
	adapters map[model.ChainFamily]chain.Adapter
	decoders *dex.Registry
	slots    map[model.ChainFamily]chan struct{}
	limiters map[model.ChainFamily]*rate.Limiter
	logger   *zap.Logger
}

// New builds an orchestrator over the given adapters and decoder
// registry. Concurrency slots and rate limiters are allocated per
// registered chain family.
func New(cfg Config, adapters []chain.Adapter, decoders *dex.Registry, logger *zap.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		cfg:      cfg,
		adapters: make(map[model.ChainFamily]chain.Adapter, len(adapters)),
		decoders: decoders,
		slots:    make(map[model.ChainFamily]chan struct{}, len(adapters)),
		limiters: make(map[model.ChainFamily]*rate.Limiter, len(adapters)),
		logger:   logger,
	}
	for _, a := range adapters {
		family := a.Family()
		o.adapters[family] = a
		o.slots[family] = make(chan struct{}, cfg.MaxConcurrency)
		if cfg.RequestsPerSecond > 0 {
			burst := int(cfg.RequestsPerSecond)
			if burst < 1 {
				burst = 1
			}
			o.limiters[family] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
		}
	}
	return o
}

// Adapter returns the registered adapter for a chain family, or nil.
func (o *Orchestrator) Adapter(family model.ChainFamily) chain.Adapter {
	return o.adapters[family]
}

// Families lists the chain families with a registered adapter, in
// stable order.
func (o *Orchestrator) Families() []model.ChainFamily {
	families := make([]model.ChainFamily, 0, len(o.adapters))
	for family := range o.adapters {
		families = append(families, family)
	}
	sort.Slice(families, func(i, j int) bool { return families[i] < families[j] })
	return families
}

// FetchOne runs the full pipeline for a single pool: acquire the chain's
// worker slot, fetch the raw payload with retries for transient errors,
// then decode it. The returned error always carries one of the model
// error kinds.
func (o *Orchestrator) FetchOne(ctx context.Context, id model.PoolIdentifier, opts BatchOptions) (*model.PoolSnapshot, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	adapter, ok := o.adapters[id.Chain]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for %s", model.ErrChainUnreachable, id.Chain)
	}

	timeout := o.cfg.ItemTimeout
	if opts.ItemTimeout > 0 {
		timeout = opts.ItemTimeout
	}

	slots := o.slots[id.Chain]
	select {
	case slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for %s worker slot: %v", model.ErrTimeout, id.Chain, ctx.Err())
	}
	defer func() { <-slots }()

	state := taskPending
	start := time.Now()
	defer func() {
		o.logger.Debug("fetch task finished",
			zap.String("pool", id.String()),
			zap.String("state", state.String()),
			zap.Duration("elapsed", time.Since(start)))
	}()

	var snapshot *model.PoolSnapshot
	err := withRetry(ctx, o.cfg.RetryBudget, o.cfg.RetryBackoff, model.Retryable, func(ctx context.Context) error {
		if limiter := o.limiters[id.Chain]; limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		state = taskInFlight

		raw, err := adapter.FetchRaw(ctx, id, timeout)
		if err != nil {
			o.logger.Warn("fetch attempt failed",
				zap.String("pool", id.String()),
				zap.Error(err))
			return err
		}
		snapshot, err = o.decoders.Decode(ctx, raw)
		return err
	})
	if err != nil {
		state = taskFailed
		return nil, kindedError(err)
	}

	state = taskDecoded
	return snapshot, nil
}

// FetchBatch fetches every identifier concurrently and returns a result
// per unique identifier. Individual failures land in the result map and
// never abort sibling fetches; the returned error is non-nil only when
// the batch context dies before all items could be dispatched.
func (o *Orchestrator) FetchBatch(ctx context.Context, ids []model.PoolIdentifier, opts BatchOptions) (map[model.PoolIdentifier]model.Result, error) {
	results := make(map[model.PoolIdentifier]model.Result, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	unique := make([]model.PoolIdentifier, 0, len(ids))
	seen := make(map[model.PoolIdentifier]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	fanout := opts.MaxConcurrency
	if fanout <= 0 {
		fanout = o.cfg.MaxConcurrency * len(o.adapters)
		if fanout <= 0 {
			fanout = o.cfg.MaxConcurrency
		}
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		batchErr error
	)
	dispatch := make(chan struct{}, fanout)
	for _, id := range unique {
		if batchErr == nil {
			select {
			case dispatch <- struct{}{}:
			case <-ctx.Done():
				batchErr = fmt.Errorf("batch dispatch: %w", ctx.Err())
			}
		}
		if batchErr != nil {
			mu.Lock()
			results[id] = model.Result{Err: fmt.Errorf("%w: batch dispatch: %v", model.ErrTimeout, ctx.Err())}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(id model.PoolIdentifier) {
			defer wg.Done()
			defer func() { <-dispatch }()

			snapshot, err := o.FetchOne(ctx, id, opts)
			mu.Lock()
			results[id] = model.Result{Snapshot: snapshot, Err: err}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	return results, batchErr
}

// kindedError maps stray context errors onto the model error kinds so
// every failure a caller sees classifies cleanly. Errors that already
// carry a kind pass through untouched.
func kindedError(err error) error {
	if err == nil {
		return nil
	}
	if model.ErrorCode(err) != model.CodeInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", model.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", model.ErrChainUnreachable, err)
}
