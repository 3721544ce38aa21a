package ledger

import (
	"os"
	"testing"
)

func testLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	dbFile, err := os.CreateTemp("", "munin-ledger-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	l, err := Open(dbFile.Name(), 64)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l, dbFile.Name()
}

func TestLedger_MarkAndGet(t *testing.T) {
	l, _ := testLedger(t)

	if err := l.MarkIngested("note1.txt", "fp-abc"); err != nil {
		t.Fatal(err)
	}

	e, ok, err := l.Get("note1.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("entry not found")
	}
	if e.Status != StatusIngested || e.Fingerprint != "fp-abc" {
		t.Errorf("unexpected entry: %+v", e)
	}

	_, ok, err = l.Get("unknown.txt")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown path should not be found")
	}
}

func TestLedger_IsIngested(t *testing.T) {
	l, _ := testLedger(t)

	if err := l.MarkIngested("note1.txt", "fp-abc"); err != nil {
		t.Fatal(err)
	}

	ok, err := l.IsIngested("note1.txt", "fp-abc")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("same path and fingerprint should be ingested")
	}

	ok, err = l.IsIngested("note1.txt", "fp-other")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("changed content must not count as ingested")
	}
}

func TestLedger_FailedOverwritesAndBack(t *testing.T) {
	l, _ := testLedger(t)

	if err := l.MarkFailed("note1.txt", "fp-abc", "parsing", "upstream down"); err != nil {
		t.Fatal(err)
	}
	e, ok, _ := l.Get("note1.txt")
	if !ok || e.Status != StatusFailed || e.Stage != "parsing" {
		t.Fatalf("unexpected entry: %+v", e)
	}

	ingested, err := l.IsIngested("note1.txt", "fp-abc")
	if err != nil {
		t.Fatal(err)
	}
	if ingested {
		t.Error("failed entry must not count as ingested")
	}

	if err := l.MarkIngested("note1.txt", "fp-abc"); err != nil {
		t.Fatal(err)
	}
	e, _, _ = l.Get("note1.txt")
	if e.Status != StatusIngested || e.Stage != "" {
		t.Errorf("stage should be cleared on success: %+v", e)
	}
}

func TestLedger_SurvivesReopen(t *testing.T) {
	l, path := testLedger(t)
	if err := l.MarkIngested("note1.txt", "fp-abc"); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path, 64)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	ok, err := reopened.IsIngested("note1.txt", "fp-abc")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("journal entry lost across reopen")
	}
}

func TestLedger_ForgetRemoves(t *testing.T) {
	l, _ := testLedger(t)
	if err := l.MarkIngested("note1.txt", "fp-abc"); err != nil {
		t.Fatal(err)
	}
	if err := l.Forget("note1.txt"); err != nil {
		t.Fatal(err)
	}
	_, ok, err := l.Get("note1.txt")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("forgotten entry still present")
	}
}

func TestLedger_CountByStatus(t *testing.T) {
	l, _ := testLedger(t)
	_ = l.MarkIngested("a.txt", "fp1")
	_ = l.MarkIngested("b.txt", "fp2")
	_ = l.MarkFailed("c.txt", "", "reading", "vanished")

	counts, err := l.CountByStatus()
	if err != nil {
		t.Fatal(err)
	}
	if counts[StatusIngested] != 2 || counts[StatusFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
