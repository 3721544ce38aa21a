// Package models defines the domain types for Munin.
package models

import "time"

// RawDrop is one file observed in the drop folder. It is created on the
// first filesystem event for a path and updated while events keep
// arriving; once the quiet period passes with no further events the drop
// is considered stable and eligible for ingestion.
type RawDrop struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"mod_time"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// ParsedNote is the structured result extracted from a drop by the
// upstream model. All four fields must be present in the model's answer;
// Summary and Tags may be empty, Title may not.
type ParsedNote struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
	Content string   `json:"content"`
}

// StoredNote is the persisted archive record: the parsed fields plus
// provenance. Fingerprint is unique in the archive and is the upsert key.
type StoredNote struct {
	Title       string    `bson:"title" json:"title"`
	Summary     string    `bson:"summary" json:"summary"`
	Tags        []string  `bson:"tags" json:"tags"`
	Content     string    `bson:"content" json:"content"`
	SourcePath  string    `bson:"source_path" json:"source_path"`
	Fingerprint string    `bson:"fingerprint" json:"fingerprint"`
	Model       string    `bson:"model" json:"model"`
	IngestedAt  time.Time `bson:"ingested_at" json:"ingested_at"`
}

// UpsertOutcome reports what an archive upsert did.
type UpsertOutcome string

const (
	// OutcomeCreated means no note with the fingerprint existed before.
	OutcomeCreated UpsertOutcome = "created"
	// OutcomeUpdated means an existing note was replaced (same content
	// dropped again, e.g. under a new name or path).
	OutcomeUpdated UpsertOutcome = "updated"
	// OutcomeUnchanged means the stored note was already identical.
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// DropInfo is lightweight drop-folder metadata returned by list operations.
type DropInfo struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
