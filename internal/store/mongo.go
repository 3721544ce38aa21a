package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/models"
)

// Mongo implements Archive on a MongoDB collection with a unique index
// on the fingerprint field.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Verify *Mongo satisfies Archive at compile time.
var _ Archive = (*Mongo)(nil)

// OpenMongo connects to the archive, verifies the connection, and
// ensures the unique fingerprint index exists.
func OpenMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "fingerprint", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: ensure fingerprint index: %w", err)
	}

	return &Mongo{client: client, coll: coll}, nil
}

// Upsert replaces the document holding the note's fingerprint, creating
// it when absent. A duplicate-key race with a concurrent identical drop
// is resolved by re-applying the replace once; the unique index makes
// the operation atomic per fingerprint either way.
func (m *Mongo) Upsert(ctx context.Context, note models.StoredNote) (models.UpsertOutcome, error) {
	filter := bson.M{"fingerprint": note.Fingerprint}
	opts := options.Replace().SetUpsert(true)

	res, err := m.coll.ReplaceOne(ctx, filter, note, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Another writer inserted the same fingerprint between our
		// lookup and insert. The document exists now, so a plain
		// replace succeeds.
		res, err = m.coll.ReplaceOne(ctx, filter, note, opts)
	}
	if err != nil {
		return "", fmt.Errorf("store: upsert %s: %v: %w", note.Fingerprint, err, apperr.ErrStorage)
	}

	switch {
	case res.UpsertedCount > 0:
		return models.OutcomeCreated, nil
	case res.ModifiedCount > 0:
		return models.OutcomeUpdated, nil
	default:
		return models.OutcomeUnchanged, nil
	}
}

// GetByFingerprint returns the stored note for a fingerprint.
func (m *Mongo) GetByFingerprint(ctx context.Context, fingerprint string) (models.StoredNote, error) {
	var note models.StoredNote
	err := m.coll.FindOne(ctx, bson.M{"fingerprint": fingerprint}).Decode(&note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.StoredNote{}, fmt.Errorf("store: note %s: %w", fingerprint, apperr.ErrNotFound)
	}
	if err != nil {
		return models.StoredNote{}, fmt.Errorf("store: get %s: %v: %w", fingerprint, err, apperr.ErrStorage)
	}
	return note, nil
}

// ListRecent returns notes ordered by ingestion time descending, with
// optional tag filtering, plus the total count for the filter.
func (m *Mongo) ListRecent(ctx context.Context, limit, offset int, tag string) ([]models.StoredNote, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	filter := bson.M{}
	if tag != "" {
		filter["tags"] = tag
	}

	total, err := m.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("store: count: %v: %w", err, apperr.ErrStorage)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "ingested_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cur, err := m.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list: %v: %w", err, apperr.ErrStorage)
	}
	defer cur.Close(ctx)

	notes := []models.StoredNote{}
	if err := cur.All(ctx, &notes); err != nil {
		return nil, 0, fmt.Errorf("store: decode list: %v: %w", err, apperr.ErrStorage)
	}
	return notes, total, nil
}

// Ping verifies the archive connection is alive.
func (m *Mongo) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("store: ping: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

// Close disconnects from the archive.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
