// Package postgres provides a Postgres-backed manifest store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mboyd/paperflow/internal/manifest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for manifest rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store persists one row per manifest task.
//
// Expected schema:
//
//	CREATE TABLE paper_manifests (
//	    run_date   DATE NOT NULL,
//	    paper_id   TEXT NOT NULL,
//	    title      TEXT NOT NULL DEFAULT '',
//	    source_url TEXT NOT NULL DEFAULT '',
//	    pdf_url    TEXT NOT NULL DEFAULT '',
//	    path       TEXT NOT NULL DEFAULT '',
//	    status     TEXT NOT NULL,
//	    attempts   INT NOT NULL DEFAULT 0,
//	    error      TEXT NOT NULL DEFAULT '',
//	    dispatched BOOLEAN NOT NULL DEFAULT FALSE,
//	    updated_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (run_date, paper_id)
//	);
type Store struct {
	pool  pgxPool
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("manifest.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "paper_manifests"
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
	return &Store{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "paper_manifests"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// Load reads the manifest rows for date.
func (s *Store) Load(ctx context.Context, date string) (*manifest.Manifest, error) {
	query := fmt.Sprintf(`
SELECT paper_id, title, source_url, pdf_url, path, status, attempts, error, dispatched, updated_at
FROM %s WHERE run_date = $1`, s.table)

	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("query manifest: %w", err)
	}
	defer rows.Close()

	m := manifest.New(date)
	for rows.Next() {
		var (
			t      manifest.Task
			status string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.SourceURL, &t.PDFURL, &t.Path,
			&status, &t.Attempts, &t.Error, &t.Dispatched, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan manifest row: %w", err)
		}
		t.Status = manifest.TaskStatus(status)
		m.Upsert(t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest rows: %w", err)
	}
	if len(m.Tasks) == 0 {
		return nil, manifest.ErrNotFound
	}
	return m, nil
}

// Save replaces the stored rows for the manifest's date in one transaction.
func (s *Store) Save(ctx context.Context, m *manifest.Manifest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin manifest save: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE run_date = $1", s.table), m.Date); err != nil {
		return fmt.Errorf("clear manifest rows: %w", err)
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (run_date, paper_id, title, source_url, pdf_url, path, status, attempts, error, dispatched, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, s.table)

	ids := make([]string, 0, len(m.Tasks))
	for id := range m.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := m.Tasks[id]
		if _, err := tx.Exec(ctx, insert,
			m.Date, t.ID, t.Title, t.SourceURL, t.PDFURL, t.Path,
			string(t.Status), t.Attempts, t.Error, t.Dispatched, t.UpdatedAt); err != nil {
			return fmt.Errorf("insert manifest row %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit manifest save: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
