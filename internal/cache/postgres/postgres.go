package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/siftlab/sift/internal/cache"
	"github.com/siftlab/sift/internal/card"
)

// ensure postgresStore implements cache.Store
var _ cache.Store = (*postgresStore)(nil)

type postgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	records JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);
`

// New creates a Postgres-backed cache.Store.
func New(ctx context.Context, dsn string) (cache.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres cache: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres cache: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	query := `SELECT key, source, records, fetched_at FROM cache_entries WHERE key = $1`

	var e cache.Entry
	var source string
	var recordsJSON []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&e.Key, &source, &recordsJSON, &e.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	e.Source = card.Type(source)
	if err := json.Unmarshal(recordsJSON, &e.Records); err != nil {
		return nil, fmt.Errorf("decode cached records: %w", err)
	}
	return &e, nil
}

func (s *postgresStore) Put(ctx context.Context, entry *cache.Entry) error {
	recordsJSON, err := json.Marshal(entry.Records)
	if err != nil {
		return fmt.Errorf("encode cache records: %w", err)
	}

	query := `
	INSERT INTO cache_entries (key, source, records, fetched_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (key) DO UPDATE SET
		source = EXCLUDED.source,
		records = EXCLUDED.records,
		fetched_at = EXCLUDED.fetched_at
	`

	if _, err := s.pool.Exec(ctx, query,
		entry.Key,
		string(entry.Source),
		recordsJSON,
		entry.FetchedAt,
	); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
