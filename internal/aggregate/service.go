package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"poolScope/internal/cache"
	"poolScope/internal/chain"
	"poolScope/internal/fetcher"
	"poolScope/internal/model"
)

const (
	healthPingTimeout = 2 * time.Second
	defaultFanout     = 16
)

// Options tune a single Aggregate call. Zero values fall back to the
// wired defaults.
type Options struct {
	// TTL is the freshness bound applied to snapshots served and
	// inserted by this call.
	TTL time.Duration
	// Timeout bounds each individual fetch attempt.
	Timeout time.Duration
	// MaxConcurrency caps the call's fan-out.
	MaxConcurrency int
}

// Service resolves batches of pool identifiers through the snapshot
// cache and the fetch orchestrator and serializes the outcome.
type Service struct {
	orch    *fetcher.Orchestrator
	cache   *cache.Cache
	metrics *Metrics
	logger  *zap.Logger
}

// NewService wires the aggregation service. metrics may be nil.
func NewService(orch *fetcher.Orchestrator, snapshots *cache.Cache, metrics *Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{orch: orch, cache: snapshots, metrics: metrics, logger: logger}
}

// Aggregate resolves every requested pool and returns the result set.
// Duplicates collapse to one lookup, fresh cache entries are served
// without touching the chain, and per-pool failures ride in the result
// set without aborting siblings. The returned error is non-nil only
// when ctx died before every item could be dispatched; undispatched
// items still appear in the result set as timeouts.
func (s *Service) Aggregate(ctx context.Context, ids []model.PoolIdentifier, opts Options) (model.BatchResult, error) {
	unique := dedupe(ids)
	s.metrics.observeBatch(len(unique))

	results := make(map[model.PoolIdentifier]model.Result, len(unique))
	if len(unique) == 0 {
		return model.BuildBatchResult(results), nil
	}

	fanout := opts.MaxConcurrency
	if fanout <= 0 {
		fanout = defaultFanout
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		batchErr error
	)
	slots := make(chan struct{}, fanout)
	for _, id := range unique {
		if batchErr == nil {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				batchErr = fmt.Errorf("aggregate dispatch: %w", ctx.Err())
			}
		}
		if batchErr != nil {
			mu.Lock()
			results[id] = model.Result{Err: fmt.Errorf("%w: aggregate dispatch: %v", model.ErrTimeout, ctx.Err())}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(id model.PoolIdentifier) {
			defer wg.Done()
			defer func() { <-slots }()

			res := s.resolve(ctx, id, opts)
			mu.Lock()
			results[id] = res
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	batch := model.BuildBatchResult(results)
	s.logger.Info("aggregate complete",
		zap.Int("requested", batch.Requested),
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed))
	return batch, batchErr
}

// resolve answers one identifier from the cache, falling back to an
// orchestrated fetch on a miss. Concurrent calls for the same pool
// share the fetch through the cache's in-flight slot.
func (s *Service) resolve(ctx context.Context, id model.PoolIdentifier, opts Options) model.Result {
	if err := id.Validate(); err != nil {
		return model.Result{Err: err}
	}

	s.metrics.observeCache(cacheEventLookup)
	snap, err := s.cache.GetOrFetch(ctx, id, opts.TTL, func(ctx context.Context) (*model.PoolSnapshot, error) {
		s.metrics.observeCache(cacheEventMiss)
		start := time.Now()
		snap, err := s.orch.FetchOne(ctx, id, fetcher.BatchOptions{ItemTimeout: opts.Timeout})
		code := "ok"
		if err != nil {
			code = model.ErrorCode(err)
		}
		s.metrics.observeFetch(id.Chain, code, time.Since(start))
		return snap, err
	})
	if err != nil {
		if errors.Is(err, model.ErrDecode) {
			s.logger.Error("pool payload rejected",
				zap.String("pool", id.String()),
				zap.Error(err))
		} else {
			s.logger.Warn("pool resolution failed",
				zap.String("pool", id.String()),
				zap.String("code", model.ErrorCode(err)),
				zap.Error(err))
		}
		return model.Result{Err: err}
	}
	return model.Result{Snapshot: snap}
}

// Invalidate drops cached snapshots for the given identifiers and
// returns the number of unique pools affected.
func (s *Service) Invalidate(ids []model.PoolIdentifier) int {
	unique := dedupe(ids)
	for _, id := range unique {
		s.cache.Invalidate(id)
	}
	return len(unique)
}

// Health pings every registered chain adapter concurrently and reports
// reachability per family.
func (s *Service) Health(ctx context.Context) map[model.ChainFamily]bool {
	families := s.orch.Families()
	out := make(map[model.ChainFamily]bool, len(families))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, family := range families {
		adapter := s.orch.Adapter(family)
		if adapter == nil {
			continue
		}
		wg.Add(1)
		go func(family model.ChainFamily, adapter chain.Adapter) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
			defer cancel()

			err := adapter.Ping(pingCtx)
			if err != nil {
				s.logger.Warn("health ping failed",
					zap.String("chain", family.String()),
					zap.Error(err))
			}
			mu.Lock()
			out[family] = err == nil
			mu.Unlock()
		}(family, adapter)
	}
	wg.Wait()
	return out
}

func dedupe(ids []model.PoolIdentifier) []model.PoolIdentifier {
	unique := make([]model.PoolIdentifier, 0, len(ids))
	seen := make(map[model.PoolIdentifier]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
