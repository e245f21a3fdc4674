package fsops

import (
	"io"
	"io/fs"
	"os"
)

// OS implements FS using real os package calls
type OS struct{}

func (OS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (OS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Remove deletes a single file; directories are never removed recursively
func (OS) Remove(path string) error {
	return os.Remove(path)
}
