// Package drops defines the drop-folder abstraction: the watched
// directory where new note files appear.
package drops

import "github.com/starford/munin/internal/models"

// Provider is the interface for drop-folder file operations.
type Provider interface {
	// List returns metadata for every accepted file under the drop root.
	List() ([]models.DropInfo, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
	// Stat returns current metadata for the file at path.
	Stat(path string) (models.DropInfo, error)
	// Write atomically places content at path, making it visible to the
	// watcher only once fully written.
	Write(path string, content []byte) error
	// Accepts reports whether path names a file the pipeline ingests.
	Accepts(path string) bool
	// Root returns the absolute drop-folder root.
	Root() string
}
