// Package apperr defines the error taxonomy shared across the ingestion
// pipeline. Errors are classified by wrapping one of these sentinels so
// callers can branch with errors.Is while keeping the full cause chain.
package apperr

import "errors"

var (
	// ErrUnreadable marks a drop file that vanished or could not be read.
	ErrUnreadable = errors.New("drop unreadable")
	// ErrUpstream marks an AI call that failed or returned an unusable
	// payload after the retry budget was spent.
	ErrUpstream = errors.New("upstream failed")
	// ErrBadSchema marks a well-formed AI payload that is missing or
	// mistypes a required field.
	ErrBadSchema = errors.New("schema mismatch")
	// ErrStorage marks an archive write or lookup failure.
	ErrStorage = errors.New("storage failed")
	// ErrNotFound is returned by archive lookups with no matching note.
	ErrNotFound = errors.New("not found")
)

// Kind returns a short label for err suitable for log fields and ledger
// rows, or "internal" when err carries none of the taxonomy sentinels.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnreadable):
		return "io"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrBadSchema):
		return "schema"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
