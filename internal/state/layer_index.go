package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LayerRecord is one row of the layer index: a cache key mapped to the
// content digest of the layer blob it produced.
type LayerRecord struct {
	CacheKey  string
	Digest    string
	Parent    string
	Size      int64
	CreatedAt time.Time
	LastUsed  time.Time
}

type LayerIndex struct {
	db *DB
}

// NewLayerIndex creates the index and ensures the table exists.
func NewLayerIndex(ctx context.Context, database *DB) (*LayerIndex, error) {
	if database == nil {
		return nil, errors.New("layer index requires a database")
	}
	idx := &LayerIndex{db: database}
	if err := idx.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *LayerIndex) ensureSchema(ctx context.Context) error {
	const createTable = `
CREATE TABLE IF NOT EXISTS layers (
	cache_key  TEXT PRIMARY KEY,
	digest     TEXT NOT NULL,
	parent     TEXT NOT NULL,
	size       INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	last_used  INTEGER NOT NULL
);
`
	if _, err := idx.db.Raw().ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("layer index: ensure schema: %w", err)
	}
	return nil
}

// Get returns the record for cacheKey and refreshes its last_used stamp.
func (idx *LayerIndex) Get(ctx context.Context, cacheKey string) (*LayerRecord, bool, error) {
	const query = `SELECT cache_key, digest, parent, size, created_at, last_used FROM layers WHERE cache_key = ?`

	var rec LayerRecord
	var created, used int64
	err := idx.db.Raw().QueryRowContext(ctx, query, cacheKey).
		Scan(&rec.CacheKey, &rec.Digest, &rec.Parent, &rec.Size, &created, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("layer index: get: %w", err)
	}
	rec.CreatedAt = time.Unix(created, 0)
	rec.LastUsed = time.Unix(used, 0)

	now := time.Now().Unix()
	_, _ = idx.db.Raw().ExecContext(ctx, `UPDATE layers SET last_used = ? WHERE cache_key = ?`, now, cacheKey)

	return &rec, true, nil
}

// Put records cacheKey -> digest. The arena is append-only with idempotent,
// content-identical writes, so concurrent builds racing on the same key may
// both insert; last write wins and both digests are identical by contract.
func (idx *LayerIndex) Put(ctx context.Context, rec *LayerRecord) error {
	const upsert = `
INSERT INTO layers (cache_key, digest, parent, size, created_at, last_used)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
	digest = excluded.digest,
	size = excluded.size,
	last_used = excluded.last_used;
`
	now := time.Now().Unix()
	_, err := idx.db.Raw().ExecContext(ctx, upsert,
		rec.CacheKey, rec.Digest, rec.Parent, rec.Size, now, now)
	if err != nil {
		return fmt.Errorf("layer index: put: %w", err)
	}
	return nil
}

// Purge drops every record. Blob removal is the store's job.
func (idx *LayerIndex) Purge(ctx context.Context) error {
	if _, err := idx.db.Raw().ExecContext(ctx, `DELETE FROM layers`); err != nil {
		return fmt.Errorf("layer index: purge: %w", err)
	}
	return nil
}

// Count reports how many layers are indexed.
func (idx *LayerIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := idx.db.Raw().QueryRowContext(ctx, `SELECT COUNT(*) FROM layers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("layer index: count: %w", err)
	}
	return n, nil
}
