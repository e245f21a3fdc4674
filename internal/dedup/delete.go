package dedup

import (
	"context"
	"time"

	"distinct-hash/internal/classify"
	"distinct-hash/internal/database"
	"distinct-hash/internal/metrics"
)

// deleteAll removes every entry independently. A failed removal is
// reported for that path only and the batch continues.
func (e *Engine) deleteAll(ctx context.Context, entries []classify.Entry, runStarted time.Time, res *Result) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := database.DeletionRecord{
			RunStarted: runStarted,
			Path:       entry.Path,
			Size:       entry.Size,
			Algorithm:  e.opts.Algorithm.String(),
			Digest:     entry.Digest.Hex(),
			KeptPath:   entry.Kept,
		}

		if err := e.validator.ValidateDeleteTarget(entry.Path); err != nil {
			e.reporter.Error("Refusing to delete protected path", "path", entry.Path, "error", err)
			res.Skipped++
			rec.Action = database.ActionSkip
			rec.ErrorMessage = err.Error()
			e.record(rec)
			continue
		}

		if e.opts.DryRun {
			e.reporter.Info("[DRY RUN] Would delete file", "path", entry.Path, "kept", entry.Kept)
			rec.Action = database.ActionDryRun
			e.record(rec)
			continue
		}

		e.reporter.Info("Delete file", "path", entry.Path)
		if err := e.deleter.Remove(entry.Path); err != nil {
			e.reporter.Error("Failed to delete file", "path", entry.Path, "error", err)
			metrics.RecordError(metrics.PhaseDelete)
			res.Failed++
			rec.Action = database.ActionError
			rec.ErrorMessage = err.Error()
			e.record(rec)
			continue
		}

		res.Deleted++
		res.BytesFreed += entry.Size
		metrics.RecordDeleted(entry.Size)
		rec.Action = database.ActionDelete
		e.record(rec)
	}
	return nil
}

// record writes to the history when enabled; failures never stop the batch
func (e *Engine) record(rec database.DeletionRecord) {
	if e.history == nil {
		return
	}
	if err := e.history.RecordDeletion(rec); err != nil {
		e.reporter.Error("Failed to record deletion history", "path", rec.Path, "error", err)
		metrics.RecordError(metrics.PhaseHistory)
	}
}
