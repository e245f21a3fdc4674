package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Phases used as the errors_total label
const (
	PhaseMetadata = "metadata"
	PhaseHash     = "hash"
	PhaseDelete   = "delete"
	PhaseHistory  = "history"
)

// Run metrics
var (
	// FilesScannedTotal counts targets entering a run. With the size prefilter
	// only targets whose metadata could be read are counted.
	FilesScannedTotal prometheus.Counter

	// SingletonsSkippedTotal counts targets with a unique size, never read
	SingletonsSkippedTotal prometheus.Counter

	// FilesHashedTotal counts targets fully streamed through the hasher
	FilesHashedTotal prometheus.Counter

	// BytesHashedTotal counts bytes fed to the hasher
	BytesHashedTotal prometheus.Counter

	// FileSizeBytes tracks the size distribution of hashed files
	FileSizeBytes prometheus.Histogram

	// DuplicatesFoundTotal counts paths classified as duplicates
	DuplicatesFoundTotal prometheus.Counter

	// FilesDeletedTotal counts duplicates actually removed
	FilesDeletedTotal prometheus.Counter

	// BytesFreedTotal counts bytes of removed duplicates
	BytesFreedTotal prometheus.Counter

	// ErrorsTotal counts per-file failures by phase
	ErrorsTotal *prometheus.CounterVec

	// RunDuration tracks how long whole runs take
	RunDuration prometheus.Histogram

	// LastRunTimestamp records Unix timestamp of the last run
	LastRunTimestamp prometheus.Gauge
)

func initRunMetrics() {
	FilesScannedTotal = NewCounter(
		"distincthash_files_scanned_total",
		"Total number of targets whose size was collected.",
	)

	SingletonsSkippedTotal = NewCounter(
		"distincthash_singletons_skipped_total",
		"Total number of targets skipped because no other target shares their size.",
	)

	FilesHashedTotal = NewCounter(
		"distincthash_files_hashed_total",
		"Total number of files hashed.",
	)

	BytesHashedTotal = NewCounter(
		"distincthash_bytes_hashed_total",
		"Total bytes read while hashing.",
	)

	FileSizeBytes = NewBytesHistogram(
		"distincthash_file_size_bytes",
		"Size of hashed files in bytes.",
	)

	DuplicatesFoundTotal = NewCounter(
		"distincthash_duplicates_found_total",
		"Total number of files classified as duplicates.",
	)

	FilesDeletedTotal = NewCounter(
		"distincthash_files_deleted_total",
		"Total number of duplicate files deleted.",
	)

	BytesFreedTotal = NewCounter(
		"distincthash_bytes_freed_total",
		"Total bytes freed by deleting duplicates.",
	)

	ErrorsTotal = NewCounterVec(
		"distincthash_errors_total",
		"Total number of per-file errors by phase.",
		[]string{"phase"},
	)

	RunDuration = NewDurationHistogram(
		"distincthash_run_duration_seconds",
		"Duration of deduplication runs in seconds.",
	)

	LastRunTimestamp = NewGauge(
		"distincthash_last_run_timestamp",
		"Timestamp of the last run (Unix epoch seconds).",
	)
}

func registerRunMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		FilesScannedTotal,
		SingletonsSkippedTotal,
		FilesHashedTotal,
		BytesHashedTotal,
		FileSizeBytes,
		DuplicatesFoundTotal,
		FilesDeletedTotal,
		BytesFreedTotal,
		ErrorsTotal,
		RunDuration,
		LastRunTimestamp,
	)
}

// RecordHashed records one fully hashed file
func RecordHashed(size int64) {
	FilesHashedTotal.Inc()
	BytesHashedTotal.Add(float64(size))
	FileSizeBytes.Observe(float64(size))
}

// RecordDeleted records one removed duplicate
func RecordDeleted(size int64) {
	FilesDeletedTotal.Inc()
	BytesFreedTotal.Add(float64(size))
}

// RecordError increments the error counter for a phase
func RecordError(phase string) {
	ErrorsTotal.WithLabelValues(phase).Inc()
}

// RecordRun observes a finished run that began at start
func RecordRun(start time.Time) {
	RunDuration.Observe(time.Since(start).Seconds())
	LastRunTimestamp.Set(float64(time.Now().Unix()))
}
