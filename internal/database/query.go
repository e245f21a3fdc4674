package database

import (
	"database/sql"
	"time"
)

const selectColumns = `
	SELECT id, timestamp, run_started, action, path, file_name, size,
	       algorithm, digest, kept_path, error_message
	FROM deletions
`

// GetRecentDeletions returns the N most recent deletion attempts
func (d *DeletionDB) GetRecentDeletions(limit int) ([]DeletionRecord, error) {
	query := selectColumns + `
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`
	return d.queryDeletions(query, limit)
}

// GetDeletionsByAction returns attempts filtered by action
func (d *DeletionDB) GetDeletionsByAction(action string) ([]DeletionRecord, error) {
	query := selectColumns + `
	WHERE action = ?
	ORDER BY timestamp DESC, id DESC
	`
	return d.queryDeletions(query, action)
}

// GetDeletionsByPath returns attempts matching a SQL LIKE pattern
func (d *DeletionDB) GetDeletionsByPath(pathPattern string) ([]DeletionRecord, error) {
	query := selectColumns + `
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC
	`
	return d.queryDeletions(query, pathPattern)
}

// GetDeletionsByDigest returns every recorded copy of one digest
func (d *DeletionDB) GetDeletionsByDigest(digestHex string) ([]DeletionRecord, error) {
	query := selectColumns + `
	WHERE digest = ?
	ORDER BY timestamp DESC, id DESC
	`
	return d.queryDeletions(query, digestHex)
}

// GetLargestDeletions returns the N largest completed deletions
func (d *DeletionDB) GetLargestDeletions(limit int) ([]DeletionRecord, error) {
	query := selectColumns + `
	WHERE action = 'DELETE'
	ORDER BY size DESC
	LIMIT ?
	`
	return d.queryDeletions(query, limit)
}

// GetTotalSpaceFreed returns total bytes freed in a time range
func (d *DeletionDB) GetTotalSpaceFreed(start, end time.Time) (int64, error) {
	query := `
	SELECT COALESCE(SUM(size), 0)
	FROM deletions
	WHERE action = 'DELETE' AND timestamp BETWEEN ? AND ?
	`

	var total int64
	err := d.db.QueryRow(query, start, end).Scan(&total)
	return total, err
}

// GetDeletionCountByAction returns count of attempts grouped by action
func (d *DeletionDB) GetDeletionCountByAction() (map[string]int, error) {
	return d.countBy(`
	SELECT action, COUNT(*)
	FROM deletions
	GROUP BY action
	`)
}

// GetDeletionCountByAlgorithm returns completed deletions grouped by algorithm
func (d *DeletionDB) GetDeletionCountByAlgorithm() (map[string]int, error) {
	return d.countBy(`
	SELECT algorithm, COUNT(*)
	FROM deletions
	WHERE action = 'DELETE'
	GROUP BY algorithm
	`)
}

// DeletionStats holds aggregated statistics
type DeletionStats struct {
	TotalDeletions  int
	TotalDryRun     int
	TotalSkipped    int
	TotalErrors     int
	TotalRuns       int
	TotalSpaceFreed int64
	ByAction        map[string]int
	ByAlgorithm     map[string]int
	StartDate       time.Time
	EndDate         time.Time
}

// GetDeletionStats returns statistics for the last days days
func (d *DeletionDB) GetDeletionStats(days int) (*DeletionStats, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -days)

	stats := &DeletionStats{
		StartDate: since,
		EndDate:   now,
	}

	err := d.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN action = 'DELETE' THEN 1 END),
			COUNT(CASE WHEN action = 'DRY_RUN' THEN 1 END),
			COUNT(CASE WHEN action = 'SKIP' THEN 1 END),
			COUNT(CASE WHEN action = 'ERROR' THEN 1 END),
			COUNT(DISTINCT run_started)
		FROM deletions
		WHERE timestamp >= ?
	`, since).Scan(&stats.TotalDeletions, &stats.TotalDryRun, &stats.TotalSkipped, &stats.TotalErrors, &stats.TotalRuns)
	if err != nil {
		return nil, err
	}

	stats.TotalSpaceFreed, err = d.GetTotalSpaceFreed(since, now)
	if err != nil {
		return nil, err
	}

	stats.ByAction, err = d.GetDeletionCountByAction()
	if err != nil {
		return nil, err
	}

	stats.ByAlgorithm, err = d.GetDeletionCountByAlgorithm()
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DeleteOldRecords removes records older than the given number of days
func (d *DeletionDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`DELETE FROM deletions WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (d *DeletionDB) countBy(query string, args ...interface{}) (map[string]int, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}

	return counts, rows.Err()
}

// queryDeletions executes a selectColumns query and scans the results
func (d *DeletionDB) queryDeletions(query string, args ...interface{}) ([]DeletionRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DeletionRecord
	for rows.Next() {
		var r DeletionRecord
		var fileName, digestHex, kept, errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.RunStarted, &r.Action, &r.Path, &fileName,
			&r.Size, &r.Algorithm, &digestHex, &kept, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		r.FileName = fileName.String
		r.Digest = digestHex.String
		r.KeptPath = kept.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}

	return records, rows.Err()
}
