// Package pgvector stores documents in PostgreSQL with the pgvector
// extension and ranks them with the <=> cosine distance operator.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"technews/internal/domain"
	"technews/internal/vectorstore"
)

// undefinedTable is the SQLSTATE for a relation that does not exist yet.
const undefinedTable = "42P01"

// Config contains connection details. Collection names the table.
type Config struct {
	DSN        string
	Collection string
}

// Storage implements vectorstore.Storage on a pgx pool.
type Storage struct {
	pool      *pgxpool.Pool
	name      string
	table     string
	dimension int
}

var _ vectorstore.Storage = (*Storage)(nil)

// Open connects to the database. The table is created by Init.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "tech_updates"
	}
	return &Storage{pool: pool, name: collection, table: pgx.Identifier{collection}.Sanitize()}, nil
}

// Init creates the extension and table for vectors of the given size.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if s.dimension == dimension {
		return nil
	}
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			ts TIMESTAMPTZ NOT NULL,
			embedding VECTOR(%d) NOT NULL
		)`, s.table, dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (source)", pgx.Identifier{s.name + "_source_idx"}.Sanitize(), s.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (ts DESC)", pgx.Identifier{s.name + "_ts_idx"}.Sanitize(), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	var have int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'
	`, s.table).Scan(&have)
	if err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}
	if have > 0 && have != dimension {
		return fmt.Errorf("%w: table %s has %d, got %d", vectorstore.ErrDimensionMismatch, s.table, have, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, s.table), ids)
	if missingTable(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check ids: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if missingTable(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check ids: %w", err)
	}
	for _, id := range existing {
		out[id] = true
	}
	return out, nil
}

func (s *Storage) Add(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		if s.dimension > 0 && len(r.Vector) != s.dimension {
			return vectorstore.ErrDimensionMismatch
		}
		d := r.Document
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (id, title, content, url, source, summary, ts, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, s.table), r.ID, d.Title, d.Content, d.URL, d.Source, d.Summary, d.Timestamp, pgvector.NewVector(r.Vector))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert documents: %w", err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, title, content, url, source, summary, ts, (embedding <=> $1::vector) AS distance
		FROM %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, s.table), pgvector.NewVector(vector), k)
	if missingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query similar documents: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.Match
	for rows.Next() {
		var (
			m  vectorstore.Match
			ts time.Time
		)
		d := &m.Document
		if err := rows.Scan(&m.ID, &d.Title, &d.Content, &d.URL, &d.Source, &d.Summary, &ts, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan similar document: %w", err)
		}
		d.Timestamp = ts.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil && !missingTable(err) {
		return nil, err
	}
	return out, nil
}

func (s *Storage) List(ctx context.Context, f vectorstore.Filter) ([]vectorstore.Record, error) {
	query := fmt.Sprintf(`SELECT id, title, content, url, source, summary, ts FROM %s WHERE true`, s.table)
	var args []any
	if f.Source != "" {
		args = append(args, f.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if !f.Before.IsZero() {
		args = append(args, f.Before)
		query += fmt.Sprintf(" AND ts < $%d", len(args))
	}
	query += " ORDER BY ts DESC, id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if missingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorstore.Record, error) {
		var (
			r  vectorstore.Record
			d  domain.Document
			ts time.Time
		)
		if err := row.Scan(&r.ID, &d.Title, &d.Content, &d.URL, &d.Source, &d.Summary, &ts); err != nil {
			return r, err
		}
		d.Timestamp = ts.UTC()
		r.Document = d
		return r, nil
	})
	if missingTable(err) {
		return nil, nil
	}
	return records, err
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n)
	if missingTable(err) {
		return 0, nil
	}
	return n, err
}

func (s *Storage) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table), ids)
	if missingTable(err) {
		return nil
	}
	return err
}

// Reset drops the table. The next Init recreates it.
func (s *Storage) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return err
	}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func missingTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
