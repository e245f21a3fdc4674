package fsops

import (
	"io"
	"io/fs"
	"sync"
)

// FakeDeleter implements Deleter for testing
// Records all delete calls without performing actual deletions
type FakeDeleter struct {
	Calls []string
	// Errs maps a path to the error Remove returns for it
	Errs map[string]error
}

func (f *FakeDeleter) Remove(path string) error {
	f.Calls = append(f.Calls, "rm:"+path)
	if err, ok := f.Errs[path]; ok {
		return err
	}
	return nil
}

// CountingOpener wraps an Opener and counts Open calls per path
type CountingOpener struct {
	Opener

	mu    sync.Mutex
	opens map[string]int
}

// NewCountingOpener wraps inner, typically OS{}
func NewCountingOpener(inner Opener) *CountingOpener {
	return &CountingOpener{Opener: inner, opens: make(map[string]int)}
}

func (c *CountingOpener) Stat(path string) (fs.FileInfo, error) {
	return c.Opener.Stat(path)
}

func (c *CountingOpener) Open(path string) (io.ReadCloser, error) {
	c.mu.Lock()
	c.opens[path]++
	c.mu.Unlock()
	return c.Opener.Open(path)
}

// Opens returns how many times path was opened
func (c *CountingOpener) Opens(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[path]
}

// Total returns the number of Open calls across all paths
func (c *CountingOpener) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.opens {
		n += v
	}
	return n
}
