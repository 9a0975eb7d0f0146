// Package pgtier implements the legacy, restart-surviving storage tier on
// PostgreSQL. Carts written by earlier releases live here; the store consults
// it once at first load and migrates anything found into the primary tier.
package pgtier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/cartstore/internal/storage"
	"github.com/utafrali/cartstore/pkg/database"
)

// Tier is a PostgreSQL-backed storage tier over a single key-value table.
//
// Schema:
//
//	CREATE TABLE legacy_carts (
//	    key        TEXT PRIMARY KEY,
//	    data       BYTEA NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type Tier struct {
	pool database.DBTX
}

// New creates a PostgreSQL tier.
func New(pool database.DBTX) *Tier {
	return &Tier{pool: pool}
}

// EnsureSchema creates the legacy_carts table if it does not exist.
func EnsureSchema(ctx context.Context, pool database.DBTX) error {
	_, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS legacy_carts (
		    key        TEXT PRIMARY KEY,
		    data       BYTEA NOT NULL,
		    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create legacy_carts table: %w", err)
	}
	return nil
}

// Name identifies the tier in logs and metrics.
func (t *Tier) Name() string { return "postgres" }

// Read returns the value stored under key.
func (t *Tier) Read(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := t.pool.QueryRow(ctx,
		`SELECT data FROM legacy_carts WHERE key = $1`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("select legacy cart %s: %w", key, err)
	}
	return data, nil
}

// Write upserts the value under key.
func (t *Tier) Write(ctx context.Context, key string, value []byte) error {
	_, err := t.pool.Exec(ctx,
		`INSERT INTO legacy_carts (key, data, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("upsert legacy cart %s: %w", key, err)
	}
	return nil
}

// Delete removes the value under key.
func (t *Tier) Delete(ctx context.Context, key string) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM legacy_carts WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete legacy cart %s: %w", key, err)
	}
	return nil
}

// Reclaim removes every row except keep.
func (t *Tier) Reclaim(ctx context.Context, keep string) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM legacy_carts WHERE key <> $1`, keep)
	if err != nil {
		return fmt.Errorf("reclaim legacy carts: %w", err)
	}
	return nil
}

// Ping checks connectivity for health reporting.
func (t *Tier) Ping(ctx context.Context) error {
	return t.pool.Ping(ctx)
}
