// Package store persists emitted lookup tables to a document store.
//
// This is a side-channel for downstream consumers that join model
// results back to land-use classes. The pipeline never reads from the
// store and produces correct artifacts with persistence disabled.
package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hydrolt/luraster/pkg/errors"
	"github.com/hydrolt/luraster/pkg/landuse"
	"github.com/hydrolt/luraster/pkg/observability"
)

// LookupStore persists the final lookup table of a pipeline run.
type LookupStore interface {
	// UpsertLookup writes the lookup rows for a run, replacing rows
	// with the same (run, code) identity.
	UpsertLookup(ctx context.Context, runID string, rows []landuse.LookupRow) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// Config configures the Mongo-backed store.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore is the production LookupStore backed by MongoDB.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// lookupDoc is the stored document shape.
type lookupDoc struct {
	RunID     string    `bson:"run_id"`
	Code      int32     `bson:"code"`
	Target    string    `bson:"target"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg Config) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIOWrite, err, "store: connect %s", cfg.URI)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(errors.ErrCodeIOWrite, err, "store: ping %s", cfg.URI)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// UpsertLookup writes one document per lookup row, keyed on (run, code).
func (s *MongoStore) UpsertLookup(ctx context.Context, runID string, rows []landuse.LookupRow) error {
	start := time.Now()
	now := time.Now().UTC()

	models := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		doc := lookupDoc{RunID: runID, Code: r.Code, Target: r.Name, UpdatedAt: now}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"run_id": runID, "code": r.Code}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	if _, err := s.coll.BulkWrite(ctx, models); err != nil {
		observability.Store().OnError(ctx, s.coll.Name(), err)
		return errors.Wrap(errors.ErrCodeIOWrite, err, "store: upsert %d lookup rows", len(rows))
	}
	observability.Store().OnUpsert(ctx, s.coll.Name(), len(rows), time.Since(start))
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ensure MongoStore implements LookupStore.
var _ LookupStore = (*MongoStore)(nil)

// NullStore discards all writes. Used when persistence is disabled.
type NullStore struct{}

// UpsertLookup does nothing.
func (NullStore) UpsertLookup(context.Context, string, []landuse.LookupRow) error { return nil }

// Close does nothing.
func (NullStore) Close(context.Context) error { return nil }

// Ensure NullStore implements LookupStore.
var _ LookupStore = NullStore{}
