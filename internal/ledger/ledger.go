// Package ledger keeps a local SQLite journal of every drop the pipeline
// has handled: path, content fingerprint, outcome, and failure detail.
// It survives restarts, so the startup sweep can skip files that were
// already ingested with unchanged content and re-attempt failed ones.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
)

// Drop statuses.
const (
	StatusIngested = "ingested"
	StatusFailed   = "failed"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS drops (
	path        TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	stage       TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_drops_status ON drops(status);
`

// Entry is one journal row, keyed by drop path.
type Entry struct {
	Path        string
	Fingerprint string
	Status      string
	Stage       string
	Detail      string
	UpdatedAt   time.Time
}

// Ledger wraps the journal database with an LRU cache in front for the
// watcher's hot path.
type Ledger struct {
	conn  *sql.DB
	cache *lru.Cache[string, Entry]
}

// Open opens (or creates) the journal database and applies the schema.
func Open(path string, cacheSize int) (*Ledger, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	cache, err := lru.New[string, Entry](cacheSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: init cache: %w", err)
	}
	return &Ledger{conn: conn, cache: cache}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// MarkIngested records a successful ingestion of path with the given
// content fingerprint.
func (l *Ledger) MarkIngested(path, fingerprint string) error {
	return l.record(Entry{
		Path:        path,
		Fingerprint: fingerprint,
		Status:      StatusIngested,
		UpdatedAt:   time.Now().UTC(),
	})
}

// MarkFailed records a failed ingestion with the stage it failed in and
// a short cause. Fingerprint may be empty when the file was unreadable.
func (l *Ledger) MarkFailed(path, fingerprint, stage, detail string) error {
	return l.record(Entry{
		Path:        path,
		Fingerprint: fingerprint,
		Status:      StatusFailed,
		Stage:       stage,
		Detail:      detail,
		UpdatedAt:   time.Now().UTC(),
	})
}

func (l *Ledger) record(e Entry) error {
	_, err := l.conn.Exec(`
		INSERT INTO drops (path, fingerprint, status, stage, detail, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			status      = excluded.status,
			stage       = excluded.stage,
			detail      = excluded.detail,
			updated_at  = excluded.updated_at
	`, e.Path, e.Fingerprint, e.Status, e.Stage, e.Detail, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ledger: record %s: %w", e.Path, err)
	}
	l.cache.Add(e.Path, e)
	return nil
}

// Get returns the journal entry for path, or found=false when the path
// was never recorded.
func (l *Ledger) Get(path string) (Entry, bool, error) {
	if e, ok := l.cache.Get(path); ok {
		return e, true, nil
	}
	var e Entry
	err := l.conn.QueryRow(`
		SELECT path, fingerprint, status, stage, detail, updated_at
		FROM drops WHERE path = ?
	`, path).Scan(&e.Path, &e.Fingerprint, &e.Status, &e.Stage, &e.Detail, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("ledger: get %s: %w", path, err)
	}
	l.cache.Add(path, e)
	return e, true, nil
}

// IsIngested reports whether path was already ingested with exactly this
// content fingerprint. It is the dedup fast path that lets the pipeline
// skip the AI call for unchanged, already-archived files.
func (l *Ledger) IsIngested(path, fingerprint string) (bool, error) {
	e, ok, err := l.Get(path)
	if err != nil || !ok {
		return false, err
	}
	return e.Status == StatusIngested && e.Fingerprint == fingerprint, nil
}

// Forget removes the journal entry for a path whose file disappeared.
func (l *Ledger) Forget(path string) error {
	if _, err := l.conn.Exec(`DELETE FROM drops WHERE path = ?`, path); err != nil {
		return fmt.Errorf("ledger: forget %s: %w", path, err)
	}
	l.cache.Remove(path)
	return nil
}

// CountByStatus returns how many entries hold each status.
func (l *Ledger) CountByStatus() (map[string]int, error) {
	rows, err := l.conn.Query(`SELECT status, COUNT(*) FROM drops GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger: count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
