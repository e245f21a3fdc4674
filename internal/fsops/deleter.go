package fsops

import (
	"io"
	"io/fs"
)

// Deleter abstracts filesystem delete operations
// Enables spying in tests to prove dry-run never deletes
type Deleter interface {
	Remove(path string) error
}

// Opener abstracts the read side: metadata queries and content streams
type Opener interface {
	Stat(path string) (fs.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
}

// FS is the full filesystem surface the deduplicator needs
type FS interface {
	Opener
	Deleter
}
