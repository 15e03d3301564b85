package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolScope/internal/model"
)

// Store keeps the latest snapshot per pool in Postgres. It is a
// current-state table, not a history: each upsert replaces the previous
// row for the pool unless the incoming observation is older.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the snapshot table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pool_snapshots (
			chain            TEXT NOT NULL,
			pool_address     TEXT NOT NULL,
			token_a          TEXT NOT NULL,
			token_a_decimals SMALLINT NOT NULL,
			token_b          TEXT NOT NULL,
			token_b_decimals SMALLINT NOT NULL,
			reserve_a        NUMERIC NOT NULL,
			reserve_b        NUMERIC NOT NULL,
			price            NUMERIC,
			observed_at      BIGINT NOT NULL,
			fetched_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (chain, pool_address)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertSnapshots inserts or replaces the current snapshot per pool.
// Rows carrying an older observation than the stored one are dropped.
func (s *Store) UpsertSnapshots(ctx context.Context, records []model.SnapshotRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		fetchedAt, err := time.Parse(time.RFC3339, rec.FetchedAt)
		if err != nil {
			return fmt.Errorf("fetched_at for %s:%s: %w", rec.Chain, rec.Address, err)
		}
		batch.Queue(`
			INSERT INTO pool_snapshots (
				chain, pool_address, token_a, token_a_decimals, token_b, token_b_decimals,
				reserve_a, reserve_b, price, observed_at, fetched_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (chain, pool_address)
			DO UPDATE SET
				token_a = EXCLUDED.token_a,
				token_a_decimals = EXCLUDED.token_a_decimals,
				token_b = EXCLUDED.token_b,
				token_b_decimals = EXCLUDED.token_b_decimals,
				reserve_a = EXCLUDED.reserve_a,
				reserve_b = EXCLUDED.reserve_b,
				price = EXCLUDED.price,
				observed_at = EXCLUDED.observed_at,
				fetched_at = EXCLUDED.fetched_at,
				updated_at = now()
			WHERE pool_snapshots.observed_at <= EXCLUDED.observed_at
		`,
			rec.Chain,
			rec.Address,
			rec.TokenA.Address,
			int16(rec.TokenA.Decimals),
			rec.TokenB.Address,
			int16(rec.TokenB.Decimals),
			rec.ReserveA,
			rec.ReserveB,
			rec.Price,
			int64(rec.ObservedAt),
			fetchedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LatestSnapshots returns the most recently fetched rows, newest first.
func (s *Store) LatestSnapshots(ctx context.Context, limit int) ([]model.SnapshotRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT chain, pool_address, token_a, token_a_decimals, token_b, token_b_decimals,
		       reserve_a::text, reserve_b::text, price::text, observed_at, fetched_at
		FROM pool_snapshots
		ORDER BY fetched_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.SnapshotRecord, 0, limit)
	for rows.Next() {
		var (
			rec        model.SnapshotRecord
			decimalsA  int16
			decimalsB  int16
			observedAt int64
			fetchedAt  time.Time
		)
		if err := rows.Scan(
			&rec.Chain, &rec.Address,
			&rec.TokenA.Address, &decimalsA,
			&rec.TokenB.Address, &decimalsB,
			&rec.ReserveA, &rec.ReserveB, &rec.Price,
			&observedAt, &fetchedAt,
		); err != nil {
			return nil, err
		}
		rec.TokenA.Decimals = uint8(decimalsA)
		rec.TokenB.Decimals = uint8(decimalsB)
		rec.ObservedAt = uint64(observedAt)
		rec.FetchedAt = fetchedAt.UTC().Format(time.RFC3339)
		records = append(records, rec)
	}
	return records, rows.Err()
}
