// Package store persists StoredNotes into the note archive, keyed by
// content fingerprint so identical content is stored exactly once.
package store

import (
	"context"

	"github.com/starford/munin/internal/models"
)

// Archive defines the interface for note archive operations. Consumers
// should depend on this interface rather than the concrete *Mongo type
// to facilitate testing with in-memory implementations.
//
// Upsert must be atomic per fingerprint: two drops with identical
// content may race, and exactly one document must exist afterwards.
type Archive interface {
	Upsert(ctx context.Context, note models.StoredNote) (models.UpsertOutcome, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (models.StoredNote, error)
	ListRecent(ctx context.Context, limit, offset int, tag string) ([]models.StoredNote, int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
