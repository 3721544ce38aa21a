// Package testutil provides shared test helpers for setting up drop
// folders and ingest ledgers.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/munin/internal/drops"
	"github.com/starford/munin/internal/ledger"
)

// TestLedger creates a temporary SQLite ingest ledger that is
// automatically cleaned up.
func TestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	dbFile, err := os.CreateTemp("", "munin-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	j, err := ledger.Open(dbFile.Name(), 64)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// TestDrops creates a temporary drop folder accepting .txt files.
func TestDrops(t *testing.T) (string, *drops.Dir) {
	t.Helper()
	dir := t.TempDir()
	p, err := drops.NewDir(dir, []string{".txt"})
	if err != nil {
		t.Fatal(err)
	}
	return dir, p
}
