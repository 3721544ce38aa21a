package api

import (
	"github.com/starford/munin/internal/ingest"
	"github.com/starford/munin/internal/models"
)

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = models.StoredNote

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteDetail `json:"notes" validate:"required"`
	Total int64        `json:"total" example:"42" validate:"required"`
}

// StatsResponse mirrors the pipeline counter snapshot.
type StatsResponse = ingest.StatsSnapshot

// DropUploadResponse is returned after a file is accepted into the drop folder.
type DropUploadResponse struct {
	Filename string `json:"filename" example:"meeting-notes.txt" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	Status   string `json:"status" example:"queued" validate:"required"`
}
