package api

import (
	"context"

	"github.com/starford/munin/internal/drops"
	"github.com/starford/munin/internal/ingest"
	"github.com/starford/munin/internal/models"
	"github.com/starford/munin/internal/store"
)

// StatsSource supplies the current pipeline counters.
type StatsSource func() ingest.StatsSnapshot

// Service coordinates archive reads and drop intake for the API layer.
type Service struct {
	archive  store.Archive
	provider drops.Provider
	stats    StatsSource
}

// NewService creates a new API service. stats may be nil.
func NewService(archive store.Archive, provider drops.Provider, stats StatsSource) *Service {
	return &Service{archive: archive, provider: provider, stats: stats}
}

// ListNotes returns recent notes with optional tag filtering.
func (s *Service) ListNotes(ctx context.Context, limit, offset int, tag string) ([]models.StoredNote, int64, error) {
	return s.archive.ListRecent(ctx, limit, offset, tag)
}

// GetNote returns one note by fingerprint.
func (s *Service) GetNote(ctx context.Context, fingerprint string) (models.StoredNote, error) {
	return s.archive.GetByFingerprint(ctx, fingerprint)
}

// Stats returns a snapshot of the pipeline counters.
func (s *Service) Stats() ingest.StatsSnapshot {
	if s.stats == nil {
		return ingest.StatsSnapshot{}
	}
	return s.stats()
}

// AcceptsDrop reports whether the pipeline would ingest a file name.
func (s *Service) AcceptsDrop(name string) bool {
	return s.provider.Accepts(name)
}

// SaveDrop atomically places an uploaded file into the drop folder; the
// watcher then feeds it through the normal ingestion pipeline.
func (s *Service) SaveDrop(name string, content []byte) error {
	return s.provider.Write(name, content)
}
