package drops

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/munin/internal/models"
)

// Dir implements Provider backed by a local directory.
type Dir struct {
	root string // absolute path to the drop folder
	exts []string
}

// NewDir creates a Provider rooted at the given directory, accepting
// files whose extension is in exts (e.g. ".txt"). The directory must
// already exist.
func NewDir(root string, exts []string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("drops: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("drops: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("drops: root is not a directory: %s", abs)
	}
	lowered := make([]string, len(exts))
	for i, e := range exts {
		lowered[i] = strings.ToLower(e)
	}
	return &Dir{root: abs, exts: lowered}, nil
}

// Root returns the absolute drop-folder root.
func (d *Dir) Root() string { return d.root }

// Accepts reports whether path names an ingestible file: a non-hidden
// regular name with one of the configured extensions. Temp files from
// atomic writes are hidden and therefore rejected.
func (d *Dir) Accepts(path string) bool {
	base := filepath.Base(path)
	if base == "" || strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range d.exts {
		if ext == e {
			return true
		}
	}
	return false
}

// safePath resolves a relative path against the drop root and rejects
// any result that escapes it (directory traversal).
func (d *Dir) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("drops: empty path")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("drops: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(d.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("drops: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, d.root+string(os.PathSeparator)) && abs != d.root {
		return "", fmt.Errorf("drops: path escapes drop folder: %s", rel)
	}
	return abs, nil
}

// List walks the drop folder and returns metadata for every accepted file.
func (d *Dir) List() ([]models.DropInfo, error) {
	var out []models.DropInfo
	err := filepath.WalkDir(d.root, func(p string, de fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if de.IsDir() {
			// Skip hidden directories entirely.
			if p != d.root && strings.HasPrefix(de.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Accepts(de.Name()) {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(d.root, p)
		if relErr != nil {
			return relErr
		}
		out = append(out, models.DropInfo{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drops: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a drop file.
func (d *Dir) Read(path string) ([]byte, error) {
	abs, err := d.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("drops: read %s: %w", path, err)
	}
	return data, nil
}

// Stat returns current metadata for a drop file.
func (d *Dir) Stat(path string) (models.DropInfo, error) {
	abs, err := d.safePath(path)
	if err != nil {
		return models.DropInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.DropInfo{}, fmt.Errorf("drops: stat %s: %w", path, err)
	}
	return models.DropInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Write atomically writes content: tmp file → fsync → rename. The
// watcher sees a single create for the final name, never a partial file.
func (d *Dir) Write(path string, content []byte) error {
	abs, err := d.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("drops: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".munin-tmp-*")
	if err != nil {
		return fmt.Errorf("drops: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("drops: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("drops: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("drops: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("drops: rename: %w", err)
	}
	success = true
	return nil
}
