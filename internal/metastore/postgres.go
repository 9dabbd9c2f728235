// Package metastore persists per-URL crawl metadata so later runs can
// issue conditional requests and audit past decisions.
package metastore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harvestkit/harvestkit/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool used for page metadata.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// PostgresStore writes page metadata rows into Postgres.
type PostgresStore struct {
	pool  pgPool
	table string
}

// NewPostgresStore connects a pool using cfg.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgPool, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert inserts or refreshes the metadata row keyed by URL.
func (s *PostgresStore) Upsert(ctx context.Context, meta crawler.PageMeta) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("metadata store is not configured")
	}
	if meta.URL == "" {
		return fmt.Errorf("page url is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	domain,
	status,
	quality,
	word_count,
	etag,
	last_modified,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (url) DO UPDATE SET
	domain = EXCLUDED.domain,
	status = EXCLUDED.status,
	quality = EXCLUDED.quality,
	word_count = EXCLUDED.word_count,
	etag = EXCLUDED.etag,
	last_modified = EXCLUDED.last_modified,
	updated_at = EXCLUDED.updated_at`, s.table)

	args := []any{
		meta.URL,
		meta.Domain,
		meta.Status,
		meta.Quality,
		meta.WordCount,
		meta.ETag,
		meta.LastModified,
		meta.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert page meta: %w", err)
	}
	return nil
}

// Headers returns the stored validators for a URL; empty strings when
// the URL was never recorded.
func (s *PostgresStore) Headers(ctx context.Context, rawURL string) (etag, lastModified string, err error) {
	if s == nil || s.pool == nil {
		return "", "", fmt.Errorf("metadata store is not configured")
	}
	query := fmt.Sprintf(`SELECT etag, last_modified FROM %s WHERE url = $1`, s.table)
	err = s.pool.QueryRow(ctx, query, rawURL).Scan(&etag, &lastModified)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", "", nil
		}
		return "", "", fmt.Errorf("query page headers: %w", err)
	}
	return etag, lastModified, nil
}
