package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/starford/munin/internal/apperr"
	"github.com/starford/munin/internal/models"
)

// Memory is an in-memory Archive with the same upsert semantics as the
// Mongo implementation. It backs tests and --dry-run style setups where
// no database is reachable.
type Memory struct {
	mu    sync.Mutex
	notes map[string]models.StoredNote

	failing bool
}

// Verify *Memory satisfies Archive at compile time.
var _ Archive = (*Memory)(nil)

// NewMemory creates an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{notes: make(map[string]models.StoredNote)}
}

// SetFailing toggles simulated storage failure: while set, every
// operation returns an error wrapping apperr.ErrStorage.
func (m *Memory) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

// Len returns the number of stored notes.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notes)
}

// Upsert stores the note under its fingerprint, atomically per key.
func (m *Memory) Upsert(_ context.Context, note models.StoredNote) (models.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return "", fmt.Errorf("store: memory unavailable: %w", apperr.ErrStorage)
	}

	prev, ok := m.notes[note.Fingerprint]
	m.notes[note.Fingerprint] = note
	switch {
	case !ok:
		return models.OutcomeCreated, nil
	case reflect.DeepEqual(prev, note):
		return models.OutcomeUnchanged, nil
	default:
		return models.OutcomeUpdated, nil
	}
}

// GetByFingerprint returns the stored note for a fingerprint.
func (m *Memory) GetByFingerprint(_ context.Context, fingerprint string) (models.StoredNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return models.StoredNote{}, fmt.Errorf("store: memory unavailable: %w", apperr.ErrStorage)
	}
	note, ok := m.notes[fingerprint]
	if !ok {
		return models.StoredNote{}, fmt.Errorf("store: note %s: %w", fingerprint, apperr.ErrNotFound)
	}
	return note, nil
}

// ListRecent returns notes ordered by ingestion time descending.
func (m *Memory) ListRecent(_ context.Context, limit, offset int, tag string) ([]models.StoredNote, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, 0, fmt.Errorf("store: memory unavailable: %w", apperr.ErrStorage)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	matched := []models.StoredNote{}
	for _, n := range m.notes {
		if tag != "" && !hasTag(n.Tags, tag) {
			continue
		}
		matched = append(matched, n)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].IngestedAt.After(matched[j].IngestedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []models.StoredNote{}, total, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// Ping reports the simulated connection state.
func (m *Memory) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return fmt.Errorf("store: memory unavailable: %w", apperr.ErrStorage)
	}
	return nil
}

// Close is a no-op.
func (m *Memory) Close(_ context.Context) error { return nil }

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
