package drops

import (
	"os"
	"path/filepath"
	"testing"
)

func tempDrops(t *testing.T) *Dir {
	t.Helper()
	dir := t.TempDir()
	d, err := NewDir(dir, []string{".txt"})
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	return d
}

func TestWriteAndRead(t *testing.T) {
	d := tempDrops(t)
	content := []byte("Buy milk tomorrow at 9am, call mom")
	if err := d.Write("note1.txt", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := d.Read("note1.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	d := tempDrops(t)
	if err := d.Write("team/meeting.txt", []byte("notes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := d.Read("team/meeting.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "notes" {
		t.Errorf("content = %q", got)
	}
}

func TestList_FiltersByExtensionAndHidden(t *testing.T) {
	d := tempDrops(t)
	_ = d.Write("a.txt", []byte("a"))
	_ = d.Write("sub/b.txt", []byte("b"))
	_ = os.WriteFile(filepath.Join(d.Root(), "readme.md"), []byte("not txt"), 0o644)
	_ = os.WriteFile(filepath.Join(d.Root(), ".hidden.txt"), []byte("hidden"), 0o644)

	items, err := d.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2 (%v)", len(items), items)
	}
}

func TestAccepts(t *testing.T) {
	d := tempDrops(t)
	cases := []struct {
		path string
		want bool
	}{
		{"note.txt", true},
		{"NOTE.TXT", true},
		{"sub/deep.txt", true},
		{"note.md", false},
		{".munin-tmp-123", false},
		{".hidden.txt", false},
		{"note", false},
	}
	for _, c := range cases {
		if got := d.Accepts(c.path); got != c.want {
			t.Errorf("Accepts(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestStat(t *testing.T) {
	d := tempDrops(t)
	_ = d.Write("s.txt", []byte("12345"))
	info, err := d.Stat("s.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 5 {
		t.Errorf("size = %d, want 5", info.Size)
	}
	if info.Path != "s.txt" {
		t.Errorf("path = %q", info.Path)
	}
}

func TestTraversalBlocked(t *testing.T) {
	d := tempDrops(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.txt",
		"/etc/shadow",
		"",
	}
	for _, p := range cases {
		if _, err := d.Read(p); err == nil {
			t.Errorf("expected error for read of %q", p)
		}
		if err := d.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	d := tempDrops(t)
	_ = d.Write("atomic.txt", []byte("original"))
	if err := d.Write("atomic.txt", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := d.Read("atomic.txt")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(d.Root(), ".munin-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewDir_NonExistent(t *testing.T) {
	_, err := NewDir("/tmp/munin-does-not-exist-"+t.Name(), []string{".txt"})
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewDir_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "munin-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewDir(f.Name(), []string{".txt"})
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
