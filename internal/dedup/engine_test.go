package dedup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distinct-hash/internal/database"
	"distinct-hash/internal/digest"
	"distinct-hash/internal/fsops"
	"distinct-hash/internal/metrics"
	"distinct-hash/internal/safety"
)

type line struct {
	label string
	msg   string
	args  []interface{}
}

// recorder captures every reported line
type recorder struct {
	lines []line
}

func (r *recorder) Status(msg string, args ...interface{}) { r.add("STATUS", msg, args) }
func (r *recorder) Info(msg string, args ...interface{})   { r.add("INFO", msg, args) }
func (r *recorder) Error(msg string, args ...interface{})  { r.add("ERROR", msg, args) }

func (r *recorder) add(label, msg string, args []interface{}) {
	r.lines = append(r.lines, line{label: label, msg: msg, args: args})
}

func (r *recorder) find(label, msg string) []line {
	var out []line
	for _, l := range r.lines {
		if l.label == label && l.msg == msg {
			out = append(out, l)
		}
	}
	return out
}

// arg returns the value following key in l.args
func (l line) arg(key string) interface{} {
	for i := 0; i+1 < len(l.args); i += 2 {
		if l.args[i] == key {
			return l.args[i+1]
		}
	}
	return nil
}

// fakeHistory keeps records in memory
type fakeHistory struct {
	records []database.DeletionRecord
	err     error
}

func (h *fakeHistory) RecordDeletion(rec database.DeletionRecord) error {
	h.records = append(h.records, rec)
	return h.err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func defaultOptions() Options {
	return Options{
		Algorithm:     digest.SHA256,
		BufferSize:    digest.DefaultBufferSize,
		SizePrefilter: true,
	}
}

func deletedPaths(res Result) []string {
	var out []string
	for _, e := range res.Deletions {
		out = append(out, e.Path)
	}
	return out
}

// TestFirstSeenCopySurvives covers the X, X, Y layout in both modes
func TestFirstSeenCopySurvives(t *testing.T) {
	for _, prefilter := range []bool{true, false} {
		t.Run(map[bool]string{true: "prefilter", false: "no-prefilter"}[prefilter], func(t *testing.T) {
			dir := t.TempDir()
			a := writeFile(t, dir, "a", "XXXX")
			b := writeFile(t, dir, "b", "XXXX")
			c := writeFile(t, dir, "c", "YYYYYY")

			opts := defaultOptions()
			opts.SizePrefilter = prefilter
			rec := &recorder{}

			res, err := New(opts, rec).Run(context.Background(), []string{a, b, c})
			require.NoError(t, err)

			assert.Equal(t, []string{b}, deletedPaths(res))
			assert.Equal(t, a, res.Deletions[0].Kept)
			assert.Equal(t, 1, res.Deleted)
			assert.Equal(t, int64(4), res.BytesFreed)

			assert.True(t, exists(a))
			assert.False(t, exists(b))
			assert.True(t, exists(c))

			counts := rec.find("INFO", "Files to delete")
			require.Len(t, counts, 1)
			assert.Equal(t, 1, counts[0].arg("count"))
		})
	}
}

// TestDeletionCountIsTotalMinusDistinct checks N targets with M distinct
// contents produce N-M deletions
func TestDeletionCountIsTotalMinusDistinct(t *testing.T) {
	dir := t.TempDir()
	targets := []string{
		writeFile(t, dir, "1", "alpha"),
		writeFile(t, dir, "2", "bravo"),
		writeFile(t, dir, "3", "alpha"),
		writeFile(t, dir, "4", "alpha"),
		writeFile(t, dir, "5", "bravo"),
		writeFile(t, dir, "6", "charlie"),
	}

	res, err := New(defaultOptions(), nil).Run(context.Background(), targets)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Deleted)
	assert.Equal(t, []string{targets[2], targets[3], targets[4]}, deletedPaths(res))
	assert.Equal(t, targets[0], res.Deletions[0].Kept)
	assert.Equal(t, targets[0], res.Deletions[1].Kept)
	assert.Equal(t, targets[1], res.Deletions[2].Kept)
	for _, p := range []string{targets[0], targets[1], targets[5]} {
		assert.True(t, exists(p), p)
	}
}

func TestSingletonsAreNeverOpened(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "same")
	b := writeFile(t, dir, "b", "same")
	lone := writeFile(t, dir, "lone", "a different length")

	opener := fsops.NewCountingOpener(fsops.OS{})
	e := New(defaultOptions(), nil)
	e.SetOpener(opener)
	e.SetDeleter(&fsops.FakeDeleter{})

	res, err := e.Run(context.Background(), []string{a, lone, b})
	require.NoError(t, err)

	assert.Zero(t, opener.Opens(lone))
	assert.Equal(t, 1, opener.Opens(a))
	assert.Equal(t, 1, opener.Opens(b))
	assert.Equal(t, 1, res.Singletons)
	assert.Equal(t, 2, res.Candidates)
}

func TestWithoutPrefilterEveryTargetIsHashed(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "one")
	b := writeFile(t, dir, "b", "three")

	opener := fsops.NewCountingOpener(fsops.OS{})
	opts := defaultOptions()
	opts.SizePrefilter = false
	e := New(opts, nil)
	e.SetOpener(opener)

	res, err := e.Run(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, opener.Total())
	assert.Equal(t, 2, res.Hashed)
	assert.Empty(t, res.Deletions)
}

func TestMissingTargetIsReportedAndSkipped(t *testing.T) {
	for _, prefilter := range []bool{true, false} {
		dir := t.TempDir()
		a := writeFile(t, dir, "a", "data")
		missing := filepath.Join(dir, "missing")
		b := writeFile(t, dir, "b", "data")

		opts := defaultOptions()
		opts.SizePrefilter = prefilter
		rec := &recorder{}

		res, err := New(opts, rec).Run(context.Background(), []string{a, missing, b})
		require.NoError(t, err, "prefilter=%v", prefilter)

		assert.Equal(t, 1, res.Unreadable)
		assert.Equal(t, []string{b}, deletedPaths(res))
		assert.False(t, exists(b))

		var failures []line
		failures = append(failures, rec.find("ERROR", "Failed to read metadata")...)
		failures = append(failures, rec.find("ERROR", "Failed to hash file")...)
		require.Len(t, failures, 1, "prefilter=%v", prefilter)
		assert.Equal(t, missing, failures[0].arg("path"))
		err, _ = failures[0].arg("error").(error)
		assert.ErrorIs(t, err, os.ErrNotExist)
	}
}

func TestDirectoryTargetIsNotRegular(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	a := writeFile(t, dir, "a", "x")

	rec := &recorder{}
	res, err := New(defaultOptions(), rec).Run(context.Background(), []string{sub, a})
	require.NoError(t, err)

	failures := rec.find("ERROR", "Failed to read metadata")
	require.Len(t, failures, 1)
	err, _ = failures[0].arg("error").(error)
	assert.ErrorIs(t, err, ErrNotRegular)
	assert.Equal(t, 1, res.Unreadable)
	assert.True(t, exists(sub))
}

// TestDryRunNeverDeletes proves no removal happens in dry-run mode
func TestDryRunNeverDeletes(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "dup")
	b := writeFile(t, dir, "b", "dup")

	opts := defaultOptions()
	opts.DryRun = true
	fake := &fsops.FakeDeleter{}
	hist := &fakeHistory{}
	rec := &recorder{}

	e := New(opts, rec)
	e.SetDeleter(fake)
	e.SetHistory(hist)

	res, err := e.Run(context.Background(), []string{a, b})
	require.NoError(t, err)

	assert.Empty(t, fake.Calls)
	assert.Zero(t, res.Deleted)
	assert.Equal(t, []string{b}, deletedPaths(res))
	assert.True(t, exists(b))
	assert.Len(t, rec.find("INFO", "[DRY RUN] Would delete file"), 1)

	require.Len(t, hist.records, 1)
	assert.Equal(t, database.ActionDryRun, hist.records[0].Action)
}

func TestDeleteFailureDoesNotStopBatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "dup")
	b := writeFile(t, dir, "b", "dup")
	c := writeFile(t, dir, "c", "dup")

	fake := &fsops.FakeDeleter{Errs: map[string]error{b: os.ErrPermission}}
	rec := &recorder{}
	e := New(defaultOptions(), rec)
	e.SetDeleter(fake)

	res, err := e.Run(context.Background(), []string{a, b, c})
	require.NoError(t, err)

	assert.Equal(t, []string{"rm:" + b, "rm:" + c}, fake.Calls)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Deleted)

	failures := rec.find("ERROR", "Failed to delete file")
	require.Len(t, failures, 1)
	assert.Equal(t, b, failures[0].arg("path"))
}

func TestProtectedDuplicateIsSkipped(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "keep")
	require.NoError(t, os.Mkdir(keep, 0o755))

	a := writeFile(t, root, "a", "dup")
	b := writeFile(t, keep, "b", "dup")
	c := writeFile(t, root, "c", "dup")

	hist := &fakeHistory{}
	rec := &recorder{}
	e := New(defaultOptions(), rec)
	e.SetValidator(safety.NewValidator([]string{keep}))
	e.SetHistory(hist)

	res, err := e.Run(context.Background(), []string{a, b, c})
	require.NoError(t, err)

	assert.True(t, exists(b))
	assert.False(t, exists(c))
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Deleted)

	skipped := rec.find("ERROR", "Refusing to delete protected path")
	require.Len(t, skipped, 1)
	err, _ = skipped[0].arg("error").(error)
	assert.ErrorIs(t, err, safety.ErrProtectedPath)

	require.Len(t, hist.records, 2)
	assert.Equal(t, database.ActionSkip, hist.records[0].Action)
	assert.Equal(t, database.ActionDelete, hist.records[1].Action)
}

func TestHistoryIsWrittenToDatabase(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "payload")
	b := writeFile(t, dir, "b", "payload")

	db, err := database.NewDeletionDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer db.Close()

	opts := defaultOptions()
	opts.Algorithm = digest.SHA512
	e := New(opts, nil)
	e.SetHistory(db)

	_, err = e.Run(context.Background(), []string{a, b})
	require.NoError(t, err)

	records, err := db.GetRecentDeletions(10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, database.ActionDelete, r.Action)
	assert.Equal(t, b, r.Path)
	assert.Equal(t, a, r.KeptPath)
	assert.Equal(t, "SHA512", r.Algorithm)
	assert.Equal(t, int64(7), r.Size)
	assert.Len(t, r.Digest, digest.SHA512.Size()*2)
}

func TestHistoryFailureIsReportedOnly(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "dup")
	b := writeFile(t, dir, "b", "dup")

	rec := &recorder{}
	e := New(defaultOptions(), rec)
	e.SetHistory(&fakeHistory{err: errors.New("disk full")})

	res, err := e.Run(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Len(t, rec.find("ERROR", "Failed to record deletion history"), 1)
}

func TestRepeatedTargetIsNeverDeleted(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "dup")
	b := writeFile(t, dir, "b", "dup")

	fake := &fsops.FakeDeleter{}
	e := New(defaultOptions(), nil)
	e.SetDeleter(fake)

	res, err := e.Run(context.Background(), []string{a, b, a, b})
	require.NoError(t, err)

	assert.Equal(t, []string{"rm:" + b}, fake.Calls)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 2, res.Repeats)
	assert.Equal(t, 4, res.Hashed)
}

// chdir switches the working directory for the rest of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(wd))
	})
}

func TestOnlyCopySpelledTwiceSurvives(t *testing.T) {
	for _, prefilter := range []bool{true, false} {
		dir := t.TempDir()
		abs := writeFile(t, dir, "only.txt", "single copy")
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
		chdir(t, dir)

		opts := defaultOptions()
		opts.SizePrefilter = prefilter

		res, err := New(opts, nil).Run(context.Background(),
			[]string{"only.txt", abs, "./only.txt", "sub/../only.txt"})
		require.NoError(t, err)

		assert.True(t, exists(abs), "prefilter=%v", prefilter)
		assert.Zero(t, res.Deleted)
		assert.Zero(t, res.Failed)
		assert.Equal(t, 3, res.Repeats)
		assert.Empty(t, res.Deletions)
	}
}

func TestDuplicateSpelledTwiceIsRemovedOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a", "dup")
	b := writeFile(t, dir, "b", "dup")
	chdir(t, dir)

	fake := &fsops.FakeDeleter{}
	e := New(defaultOptions(), nil)
	e.SetDeleter(fake)

	res, err := e.Run(context.Background(), []string{"a", "b", b})
	require.NoError(t, err)

	assert.Equal(t, []string{"rm:b"}, fake.Calls)
	assert.Equal(t, 1, res.Repeats)
}

func TestHardLinkToKeptFileIsNotDeleted(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "linked")
	link := filepath.Join(dir, "a-hardlink")
	if err := os.Link(a, link); err != nil {
		t.Skipf("hard links unsupported: %v", err)
	}

	res, err := New(defaultOptions(), nil).Run(context.Background(), []string{a, link})
	require.NoError(t, err)

	assert.True(t, exists(a))
	assert.True(t, exists(link))
	assert.Equal(t, 1, res.Repeats)
}

func TestScannedCounterWithoutPrefilter(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "one")
	b := writeFile(t, dir, "b", "two")

	opts := defaultOptions()
	opts.SizePrefilter = false
	e := New(opts, nil)

	before := testutil.ToFloat64(metrics.FilesScannedTotal)
	_, err := e.Run(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.FilesScannedTotal))
}

func TestCancelledContextStopsBeforeDeleting(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "dup")
	b := writeFile(t, dir, "b", "dup")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fsops.FakeDeleter{}
	e := New(defaultOptions(), nil)
	e.SetDeleter(fake)

	_, err := e.Run(ctx, []string{a, b})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.Calls)
}

func TestStatusLinesFollowPhases(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "dup")

	rec := &recorder{}
	_, err := New(defaultOptions(), rec).Run(context.Background(), []string{a})
	require.NoError(t, err)

	var status []string
	for _, l := range rec.lines {
		if l.label == "STATUS" {
			status = append(status, l.msg)
		}
	}
	assert.Equal(t, []string{"Collecting metadata (size)", "Calculating hashes", "done"}, status)
}
