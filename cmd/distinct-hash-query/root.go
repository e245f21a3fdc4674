package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"distinct-hash/internal/database"
)

var errNoQuery = errors.New("no query selected")

type query struct {
	dbPath  string
	recent  int
	action  string
	path    string
	digest  string
	largest int
	stats   bool
	days    int
	prune   int
	json    bool

	out io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	q := &query{out: stdout}

	cmd := &cobra.Command{
		Use:   "distinct-hash-query --db PATH [query]",
		Short: "Inspect the deletion history written by distinct-hash --history",
		Example: `  distinct-hash-query --db history.db --recent 10
  distinct-hash-query --db history.db --stats --days 7
  distinct-hash-query --db history.db --action ERROR
  distinct-hash-query --db history.db --path '/home/me/Pictures/%'
  distinct-hash-query --db history.db --largest 10 --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := q.run()
			if errors.Is(err, errNoQuery) {
				_ = cmd.Usage()
			}
			return err
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVar(&q.dbPath, "db", "", "Path to the deletion history database")
	flags.IntVar(&q.recent, "recent", 0, "Show the N most recent records")
	flags.StringVar(&q.action, "action", "", "Filter by action (DELETE, DRY_RUN, SKIP, ERROR)")
	flags.StringVar(&q.path, "path", "", "Filter by path pattern (SQL LIKE syntax)")
	flags.StringVar(&q.digest, "digest", "", "Show every record for a content digest (hex)")
	flags.IntVar(&q.largest, "largest", 0, "Show the N largest records")
	flags.BoolVar(&q.stats, "stats", false, "Show aggregated statistics")
	flags.IntVar(&q.days, "days", 30, "Window for --stats in days")
	flags.IntVar(&q.prune, "prune", 0, "Remove records older than N days and compact the database")
	flags.BoolVar(&q.json, "json", false, "Output in JSON format")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func (q *query) run() error {
	if _, err := os.Stat(q.dbPath); err != nil {
		return fmt.Errorf("no history database at %s: %w", q.dbPath, err)
	}

	db, err := database.NewDeletionDB(q.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", q.dbPath, err)
	}
	defer db.Close()

	var records []database.DeletionRecord
	var title string

	switch {
	case q.prune > 0:
		return q.pruneOld(db)
	case q.stats:
		return q.showStats(db)
	case q.recent > 0:
		records, err = db.GetRecentDeletions(q.recent)
		title = fmt.Sprintf("Most recent %d records", q.recent)
	case q.action != "":
		records, err = db.GetDeletionsByAction(q.action)
		title = "Records with action: " + q.action
	case q.path != "":
		records, err = db.GetDeletionsByPath(q.path)
		title = "Records matching path pattern: " + q.path
	case q.digest != "":
		records, err = db.GetDeletionsByDigest(q.digest)
		title = "Records with digest: " + q.digest
	case q.largest > 0:
		records, err = db.GetLargestDeletions(q.largest)
		title = fmt.Sprintf("Largest %d records", q.largest)
	default:
		return errNoQuery
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if q.json {
		return q.writeJSON(records)
	}
	fmt.Fprintf(q.out, "%s\n\n", title)
	q.printRecords(records)
	return nil
}

func (q *query) showStats(db *database.DeletionDB) error {
	stats, err := db.GetDeletionStats(q.days)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}
	info, err := db.GetDatabaseStats()
	if err != nil {
		return fmt.Errorf("failed to get database info: %w", err)
	}

	if q.json {
		return q.writeJSON(map[string]interface{}{
			"stats":    stats,
			"database": info,
		})
	}

	w := q.out
	fmt.Fprintf(w, "Deletion Statistics (Last %d days)\n", q.days)
	fmt.Fprintf(w, "Period: %s to %s\n\n", stats.StartDate.Format("2006-01-02"), stats.EndDate.Format("2006-01-02"))
	fmt.Fprintf(w, "Runs:             %d\n", stats.TotalRuns)
	fmt.Fprintf(w, "Total Deletions:  %d\n", stats.TotalDeletions)
	fmt.Fprintf(w, "Total Dry Run:    %d\n", stats.TotalDryRun)
	fmt.Fprintf(w, "Total Skipped:    %d\n", stats.TotalSkipped)
	fmt.Fprintf(w, "Total Errors:     %d\n", stats.TotalErrors)
	fmt.Fprintf(w, "Space Freed:      %s\n\n", humanize.Bytes(uint64(stats.TotalSpaceFreed)))

	printCounts(w, "By Action:", stats.ByAction)
	printCounts(w, "By Algorithm:", stats.ByAlgorithm)

	fmt.Fprintf(w, "Database: %d records, %s, schema v%v\n",
		info["total_records"], humanize.Bytes(uint64(toInt64(info["database_size_bytes"]))), info["schema_version"])
	return nil
}

func (q *query) pruneOld(db *database.DeletionDB) error {
	n, err := db.DeleteOldRecords(q.prune)
	if err != nil {
		return fmt.Errorf("failed to prune records: %w", err)
	}
	if err := db.Vacuum(); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	if q.json {
		return q.writeJSON(map[string]int64{"removed": n})
	}
	fmt.Fprintf(q.out, "Removed %d records older than %d days\n", n, q.prune)
	return nil
}

func (q *query) writeJSON(v interface{}) error {
	enc := json.NewEncoder(q.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (q *query) printRecords(records []database.DeletionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(q.out, "No records found")
		return
	}

	w := tabwriter.NewWriter(q.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTimestamp\tAction\tSize\tPath\tKept")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t----\t----\t----")

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.Action,
			humanize.Bytes(uint64(r.Size)), r.Path, r.KeptPath)
	}
	_ = w.Flush()
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-15s %d\n", k, counts[k])
	}
	fmt.Fprintln(w)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
