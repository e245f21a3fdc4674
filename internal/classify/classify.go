// Package classify decides which targets are redundant copies.
//
// A Classifier keeps the first path seen for every digest. Any later path
// with the same digest is a duplicate of that first path and is appended to
// the deletion list. The first-seen path is never replaced, so the copy that
// survives depends only on the order in which paths are observed.
package classify

import (
	"path/filepath"

	"distinct-hash/internal/digest"
)

// Verdict is the outcome of observing one path
type Verdict int

const (
	// Keep means the path is the first holder of its digest
	Keep Verdict = iota
	// Duplicate means the path was added to the deletion list
	Duplicate
	// Repeat means the path is the kept path itself, listed again
	Repeat
)

func (v Verdict) String() string {
	switch v {
	case Keep:
		return "keep"
	case Duplicate:
		return "duplicate"
	case Repeat:
		return "repeat"
	default:
		return "unknown"
	}
}

// Entry is a redundant path and the kept copy it duplicates
type Entry struct {
	Path   string
	Kept   string
	Digest digest.Digest
	Size   int64
}

// SameFileFunc reports whether two paths name the same file on disk
type SameFileFunc func(a, b string) bool

// Classifier holds the seen table and deletion list for one run.
// It is not safe for concurrent use.
type Classifier struct {
	seen      map[string]string
	deletions []Entry
	listed    map[string]bool
	sameFile  SameFileFunc
}

// New creates an empty Classifier
func New() *Classifier {
	return &Classifier{
		seen:   make(map[string]string),
		listed: make(map[string]bool),
	}
}

// Observe classifies path by its digest and returns the verdict together
// with the kept path for that digest.
func (c *Classifier) Observe(path string, d digest.Digest, size int64) (Verdict, string) {
	key := d.Key()
	kept, ok := c.seen[key]
	if !ok {
		c.seen[key] = path
		return Keep, path
	}

	id := canonical(path)
	if id == canonical(kept) || c.listed[id] || c.isSameFile(kept, path) {
		return Repeat, kept
	}

	c.listed[id] = true
	c.deletions = append(c.deletions, Entry{
		Path:   path,
		Kept:   kept,
		Digest: d,
		Size:   size,
	})
	return Duplicate, kept
}

// Deletions returns the deletion list in classification order
func (c *Classifier) Deletions() []Entry {
	out := make([]Entry, len(c.deletions))
	copy(out, c.deletions)
	return out
}

// Kept returns the number of distinct digests seen
func (c *Classifier) Kept() int {
	return len(c.seen)
}

// KeptPath returns the first-seen path for a digest
func (c *Classifier) KeptPath(d digest.Digest) (string, bool) {
	p, ok := c.seen[d.Key()]
	return p, ok
}

// SetSameFile installs a filesystem identity check. A path naming the
// same file as the kept path is a Repeat however it is spelled.
func (c *Classifier) SetSameFile(fn SameFileFunc) {
	c.sameFile = fn
}

func (c *Classifier) isSameFile(a, b string) bool {
	return c.sameFile != nil && c.sameFile(a, b)
}

// canonical is the absolute, cleaned form of path
func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
