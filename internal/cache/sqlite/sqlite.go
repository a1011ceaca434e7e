package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/siftlab/sift/internal/cache"
	"github.com/siftlab/sift/internal/card"
	_ "modernc.org/sqlite"
)

// ensure sqliteStore implements cache.Store
var _ cache.Store = (*sqliteStore)(nil)

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	records TEXT NOT NULL,
	fetched_at DATETIME NOT NULL
);
`

// New creates a SQLite-backed cache.Store at the given DSN.
func New(dsn string) (cache.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	query := `SELECT key, source, records, fetched_at FROM cache_entries WHERE key = ?`

	var e cache.Entry
	var source, recordsJSON string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&e.Key, &source, &recordsJSON, &e.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	e.Source = card.Type(source)
	if err := json.Unmarshal([]byte(recordsJSON), &e.Records); err != nil {
		return nil, fmt.Errorf("decode cached records: %w", err)
	}
	return &e, nil
}

func (s *sqliteStore) Put(ctx context.Context, entry *cache.Entry) error {
	recordsJSON, err := json.Marshal(entry.Records)
	if err != nil {
		return fmt.Errorf("encode cache records: %w", err)
	}

	query := `
	INSERT INTO cache_entries (key, source, records, fetched_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		source = excluded.source,
		records = excluded.records,
		fetched_at = excluded.fetched_at
	`

	if _, err := s.db.ExecContext(ctx, query,
		entry.Key,
		string(entry.Source),
		string(recordsJSON),
		entry.FetchedAt,
	); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
