// Package dedup runs one deduplication pass over a list of targets:
// optional size prefilter, streaming hash, first-seen classification and
// removal of every redundant copy.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"distinct-hash/internal/classify"
	"distinct-hash/internal/database"
	"distinct-hash/internal/digest"
	"distinct-hash/internal/fsops"
	"distinct-hash/internal/metrics"
	"distinct-hash/internal/safety"
	"distinct-hash/internal/sizegroup"
)

// ErrNotRegular is reported for targets that are not regular files
var ErrNotRegular = errors.New("not a regular file")

// Reporter receives STATUS / INFO / ERROR lines.
// Arguments after msg are alternating key/value pairs.
type Reporter interface {
	Status(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// History records deletion attempts
type History interface {
	RecordDeletion(rec database.DeletionRecord) error
}

// Options selects the behaviour of a run
type Options struct {
	Algorithm     digest.Algorithm
	BufferSize    int
	SizePrefilter bool
	DryRun        bool
}

// Result summarises a run
type Result struct {
	Targets    int
	Singletons int // unique-size targets never opened
	Candidates int // targets scheduled for hashing
	Hashed     int
	Unreadable int // metadata, open or read failures
	Duplicates int
	Repeats    int // kept paths listed again
	Deleted    int
	Failed     int // removal failures
	Skipped    int // protected duplicates
	BytesFreed int64
	Deletions  []classify.Entry
}

// Engine performs deduplication runs with structured reporting
type Engine struct {
	opts      Options
	opener    fsops.Opener
	deleter   fsops.Deleter
	validator *safety.Validator
	history   History
	reporter  Reporter
	hasher    *digest.Hasher
}

// New creates an Engine working on the real filesystem.
// A nil reporter discards all lines.
func New(opts Options, reporter Reporter) *Engine {
	metrics.Init()
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Engine{
		opts:     opts,
		opener:   fsops.OS{},
		deleter:  fsops.OS{},
		reporter: reporter,
		hasher:   digest.NewHasher(opts.Algorithm, opts.BufferSize),
	}
}

// SetOpener replaces the read side of the filesystem
func (e *Engine) SetOpener(o fsops.Opener) {
	e.opener = o
}

// SetDeleter replaces the component that removes duplicates
func (e *Engine) SetDeleter(d fsops.Deleter) {
	e.deleter = d
}

// SetValidator installs a protected-root guard consulted before removal
func (e *Engine) SetValidator(v *safety.Validator) {
	e.validator = v
}

// SetHistory enables recording of every deletion attempt
func (e *Engine) SetHistory(h History) {
	e.history = h
}

// Run processes targets in order. Per-file failures are reported and
// counted but never returned; the only error is a cancelled context.
func (e *Engine) Run(ctx context.Context, targets []string) (Result, error) {
	start := time.Now()
	defer metrics.RecordRun(start)

	res := Result{Targets: len(targets)}

	candidates := e.collect(targets, &res)
	res.Candidates = len(candidates)

	e.reporter.Status("Calculating hashes")
	cls := classify.New()
	cls.SetSameFile(e.sameFile)
	for _, path := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e.hashOne(path, cls, &res)
	}

	res.Deletions = cls.Deletions()
	e.reporter.Info("Files to delete", "count", len(res.Deletions))

	if err := e.deleteAll(ctx, res.Deletions, start, &res); err != nil {
		return res, err
	}

	e.reporter.Status("done",
		"hashed", res.Hashed,
		"duplicates", res.Duplicates,
		"deleted", res.Deleted,
		"failed", res.Failed,
		"freed", humanize.Bytes(uint64(res.BytesFreed)),
	)
	return res, nil
}

// collect builds the ordered hashing list. With the size prefilter only
// members of multi-file size groups are kept.
func (e *Engine) collect(targets []string, res *Result) []string {
	if !e.opts.SizePrefilter {
		metrics.FilesScannedTotal.Add(float64(len(targets)))
		return append([]string(nil), targets...)
	}

	e.reporter.Status("Collecting metadata (size)")
	groups, failures := sizegroup.Partition(targets, e.statRegular)

	for _, f := range failures {
		e.reporter.Error("Failed to read metadata", "path", f.Path, "error", f.Err)
		metrics.RecordError(metrics.PhaseMetadata)
		res.Unreadable++
	}
	metrics.FilesScannedTotal.Add(float64(len(targets) - len(failures)))

	var out []string
	for _, g := range groups {
		if g.Singleton() {
			e.reporter.Info("Unique size, skipped", "path", g.Baseline(), "size", g.Size)
			res.Singletons++
			metrics.SingletonsSkippedTotal.Inc()
			continue
		}
		e.reporter.Info("Size group", "size", g.Size, "files", len(g.Paths), "baseline", g.Baseline())
		out = append(out, g.Paths...)
	}
	return out
}

func (e *Engine) statRegular(path string) (fs.FileInfo, error) {
	info, err := e.opener.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, info.Mode().Type())
	}
	return info, nil
}

func (e *Engine) hashOne(path string, cls *classify.Classifier, res *Result) {
	d, n, err := e.hashFile(path)
	if err != nil {
		e.reporter.Error("Failed to hash file", "path", path, "error", err)
		metrics.RecordError(metrics.PhaseHash)
		res.Unreadable++
		return
	}
	res.Hashed++
	metrics.RecordHashed(n)

	verdict, kept := cls.Observe(path, d, n)
	switch verdict {
	case classify.Duplicate:
		e.reporter.Info("Found duplicate", "path", path, "kept", kept)
		metrics.DuplicatesFoundTotal.Inc()
		res.Duplicates++
	case classify.Repeat:
		e.reporter.Info("Target listed more than once", "path", path, "kept", kept)
		res.Repeats++
	}
}

// sameFile follows links, so a symlink to the kept file is the kept file
func (e *Engine) sameFile(a, b string) bool {
	ai, err := e.opener.Stat(a)
	if err != nil {
		return false
	}
	bi, err := e.opener.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// hashFile opens, streams and closes one file
func (e *Engine) hashFile(path string) (digest.Digest, int64, error) {
	f, err := e.opener.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	return e.hasher.Sum(f)
}

type nopReporter struct{}

func (nopReporter) Status(string, ...interface{}) {}
func (nopReporter) Info(string, ...interface{})   {}
func (nopReporter) Error(string, ...interface{})  {}
