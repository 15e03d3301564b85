package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"poolScope/internal/aggregate"
	"poolScope/internal/model"
	"poolScope/internal/storage/postgres"
)

// poolRef is the wire form of a pool identifier.
type poolRef struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
}

type aggregateRequest struct {
	Pools      []poolRef `json:"pools"`
	TTLSeconds int       `json:"ttl_seconds,omitempty"`
	TimeoutMS  int       `json:"timeout_ms,omitempty"`
}

type invalidateRequest struct {
	Pools []poolRef `json:"pools"`
}

type httpHandlers struct {
	svc    *aggregate.Service
	store  *postgres.Store
	logger *zap.Logger
}

func newHTTPHandler(svc *aggregate.Service, store *postgres.Store, registry *prometheus.Registry, logger *zap.Logger) http.Handler {
	h := &httpHandlers{svc: svc, store: store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/aggregate", h.handleAggregate)
	mux.HandleFunc("/v1/invalidate", h.handleInvalidate)
	mux.HandleFunc("/health/live", h.handleLive)
	mux.HandleFunc("/health/ready", h.handleReady)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if store != nil {
		mux.HandleFunc("/v1/snapshots", h.handleSnapshots)
	}
	return mux
}

func (h *httpHandlers) handleAggregate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req aggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Pools) == 0 {
		http.Error(w, "pools list is required", http.StatusBadRequest)
		return
	}

	// Unparseable references become per-item errors so one bad entry
	// never sinks the rest of the request.
	ids := make([]model.PoolIdentifier, 0, len(req.Pools))
	var malformed []model.ResultRecord
	for _, ref := range req.Pools {
		id, err := parsePoolRef(ref)
		if err != nil {
			malformed = append(malformed, model.ResultRecord{
				Chain:   ref.Chain,
				Address: ref.Address,
				Error:   &model.ErrorRecord{Code: model.CodeMalformedIdentifier, Message: err.Error()},
			})
			continue
		}
		ids = append(ids, id)
	}

	opts := aggregate.Options{
		TTL:     time.Duration(req.TTLSeconds) * time.Second,
		Timeout: time.Duration(req.TimeoutMS) * time.Millisecond,
	}
	batch, err := h.svc.Aggregate(r.Context(), ids, opts)
	if err != nil {
		h.logger.Warn("aggregate call ended early", zap.Error(err))
	}

	if len(malformed) > 0 {
		batch.Results = append(batch.Results, malformed...)
		batch.Requested += len(malformed)
		batch.Failed += len(malformed)
		sortResults(batch.Results)
	}

	h.persistAsync(batch)
	respondJSON(w, http.StatusOK, batch, h.logger)
}

func (h *httpHandlers) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ids := make([]model.PoolIdentifier, 0, len(req.Pools))
	for _, ref := range req.Pools {
		id, err := parsePoolRef(ref)
		if err != nil {
			http.Error(w, "invalid pool reference: "+err.Error(), http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}

	n := h.svc.Invalidate(ids)
	respondJSON(w, http.StatusOK, map[string]int{"invalidated": n}, h.logger)
}

func (h *httpHandlers) handleLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

func (h *httpHandlers) handleReady(w http.ResponseWriter, r *http.Request) {
	health := h.svc.Health(r.Context())

	ready := len(health) > 0
	chains := make(map[string]bool, len(health))
	for family, ok := range health {
		chains[family.String()] = ok
		if !ok {
			ready = false
		}
	}

	status := http.StatusOK
	body := map[string]any{"status": "ready", "chains": chains}
	if !ready {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	respondJSON(w, status, body, h.logger)
}

func (h *httpHandlers) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.store.LatestSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("load latest snapshots", zap.Error(err))
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"snapshots": records}, h.logger)
}

// persistAsync upserts the successful snapshots of a batch without
// blocking the response.
func (h *httpHandlers) persistAsync(batch model.BatchResult) {
	if h.store == nil || batch.Succeeded == 0 {
		return
	}
	records := make([]model.SnapshotRecord, 0, batch.Succeeded)
	for _, res := range batch.Results {
		if res.Snapshot != nil {
			records = append(records, *res.Snapshot)
		}
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.store.UpsertSnapshots(ctx, records); err != nil {
			h.logger.Warn("persist snapshots", zap.Error(err))
		}
	}()
}

func parsePoolRef(ref poolRef) (model.PoolIdentifier, error) {
	family, err := model.ParseChainFamily(ref.Chain)
	if err != nil {
		return model.PoolIdentifier{}, err
	}
	return model.ParsePoolIdentifier(family, ref.Address)
}

func sortResults(results []model.ResultRecord) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Chain != results[j].Chain {
			return results[i].Chain < results[j].Chain
		}
		return results[i].Address < results[j].Address
	})
}

func respondJSON(w http.ResponseWriter, status int, data any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}
