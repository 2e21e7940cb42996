// Package sqlite is the default vector store: an embedded database file
// holding documents and their embeddings. Similarity is computed in Go
// over the whole collection, which is fine at news-feed scale.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"technews/internal/domain"
	"technews/internal/vectorstore"
	"technews/internal/vectorstore/sqlite/migrations"
)

const dbFile = "technews.db"

// Config places the database and names the collection inside it.
type Config struct {
	Dir        string
	Collection string
}

// Storage implements vectorstore.Storage on top of SQLite.
type Storage struct {
	mu         sync.Mutex
	db         *sql.DB
	path       string
	collection string
	dimension  int
}

var _ vectorstore.Storage = (*Storage)(nil)

// Open creates the data directory if needed, opens the database and applies
// pending migrations. An empty Dir opens a private in-memory database.
func Open(cfg Config) (*Storage, error) {
	if cfg.Collection == "" {
		cfg.Collection = "tech_updates"
	}
	dsn := ":memory:"
	path := ":memory:"
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(cfg.Dir, dbFile)
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, path: path, collection: cfg.Collection}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.db.QueryRow(`SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&s.dimension); err != nil && !errors.Is(err, sql.ErrNoRows) {
		db.Close()
		return nil, fmt.Errorf("reading collection: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Init records the collection dimension. A collection that already holds
// vectors of another size is rejected.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == dimension {
		return nil
	}
	if s.dimension != 0 {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, s.collection).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: collection %s has %d, got %d", vectorstore.ErrDimensionMismatch, s.collection, s.dimension, dimension)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, dimension) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET dimension = excluded.dimension
	`, s.collection, dimension)
	if err != nil {
		return fmt.Errorf("saving collection: %w", err)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(ids))
	const batch = 500
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		chunk := ids[start:end]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, s.collection)
		for _, id := range chunk {
			args = append(args, id)
		}
		query := `SELECT id FROM documents WHERE collection = ? AND id IN (` + placeholders(len(chunk)) + `)`
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("checking ids: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			out[id] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Add inserts records in one transaction. Existing IDs are left untouched.
func (s *Storage) Add(ctx context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if s.dimension > 0 && len(r.Vector) != s.dimension {
			return vectorstore.ErrDimensionMismatch
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO documents (collection, id, title, content, url, source, summary, ts, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		d := r.Document
		if _, err := stmt.ExecContext(ctx, s.collection, r.ID, d.Title, d.Content, d.URL, d.Source, d.Summary,
			d.Timestamp.UnixNano(), encodeVector(r.Vector)); err != nil {
			return fmt.Errorf("inserting %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	records, err := s.scan(ctx, true, `WHERE collection = ?`, s.collection)
	if err != nil {
		return nil, err
	}
	return vectorstore.Nearest(records, vector, k), nil
}

func (s *Storage) List(ctx context.Context, f vectorstore.Filter) ([]vectorstore.Record, error) {
	where := `WHERE collection = ?`
	args := []any{s.collection}
	if f.Source != "" {
		where += ` AND source = ?`
		args = append(args, f.Source)
	}
	if !f.Before.IsZero() {
		where += ` AND ts < ?`
		args = append(args, f.Before.UnixNano())
	}
	where += ` ORDER BY ts DESC, id ASC`
	if f.Limit > 0 {
		where += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.scan(ctx, false, where, args...)
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, s.collection).Scan(&n)
	return n, err
}

func (s *Storage) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, s.collection, id); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Reset drops every record of the collection and forgets its dimension.
func (s *Storage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, s.collection); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return err
	}
	s.dimension = 0
	return nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) scan(ctx context.Context, withVectors bool, where string, args ...any) ([]vectorstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cols := `id, title, content, url, source, summary, ts`
	if withVectors {
		cols += `, embedding`
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+cols+` FROM documents `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vectorstore.Record
	for rows.Next() {
		var (
			r    vectorstore.Record
			d    domain.Document
			ts   int64
			blob []byte
		)
		dest := []any{&r.ID, &d.Title, &d.Content, &d.URL, &d.Source, &d.Summary, &ts}
		if withVectors {
			dest = append(dest, &blob)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		d.Timestamp = time.Unix(0, ts).UTC()
		r.Document = d
		if withVectors {
			r.Vector = decodeVector(blob)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
