package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/siftlab/sift/internal/cache"
	"github.com/siftlab/sift/internal/card"
)

// ensure mongoStore implements cache.Store
var _ cache.Store = (*mongoStore)(nil)

const collectionName = "cache_entries"

type mongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type entryDoc struct {
	Key       string    `bson:"_id"`
	Source    string    `bson:"source"`
	Records   string    `bson:"records"`
	FetchedAt time.Time `bson:"fetched_at"`
}

// New creates a MongoDB-backed cache.Store using the given connection URI
// and database name.
func New(ctx context.Context, uri, database string) (cache.Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo cache: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo cache: %w", err)
	}

	return &mongoStore{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
	}, nil
}

func (s *mongoStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	var doc entryDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	e := &cache.Entry{
		Key:       doc.Key,
		Source:    card.Type(doc.Source),
		FetchedAt: doc.FetchedAt,
	}
	if err := json.Unmarshal([]byte(doc.Records), &e.Records); err != nil {
		return nil, fmt.Errorf("decode cached records: %w", err)
	}
	return e, nil
}

func (s *mongoStore) Put(ctx context.Context, entry *cache.Entry) error {
	recordsJSON, err := json.Marshal(entry.Records)
	if err != nil {
		return fmt.Errorf("encode cache records: %w", err)
	}

	doc := entryDoc{
		Key:       entry.Key,
		Source:    string(entry.Source),
		Records:   string(recordsJSON),
		FetchedAt: entry.FetchedAt,
	}

	// ReplaceOne with upsert keeps refreshes last-write-wins, the same
	// policy as the SQL backends.
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": entry.Key}, doc, opts); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
