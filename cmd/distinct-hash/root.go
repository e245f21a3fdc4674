package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"distinct-hash/internal/config"
	"distinct-hash/internal/database"
	"distinct-hash/internal/dedup"
	"distinct-hash/internal/digest"
	"distinct-hash/internal/exitcodes"
	"distinct-hash/internal/logging"
	"distinct-hash/internal/metrics"
	"distinct-hash/internal/safety"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

// errReported marks an error that was already printed to stderr
var errReported = errors.New("reported")

type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	algorithm   string
	silent      bool
	dryRun      bool
	prefilter   bool
	protect     []string
	historyDB   string
	metricsFile string
	logFile     string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:   "distinct-hash [flags] TARGET...",
		Short: "Delete duplicate files by content hash",
		Long: `distinct-hash hashes every target and deletes each file whose content
matches a target seen earlier on the command line. The first occurrence
of any content is always kept.

Targets whose size is unique are never read.`,
		Example: `  distinct-hash ~/Pictures/*.jpg
  distinct-hash -a sha512 --dry-run a.iso b.iso c.iso
  distinct-hash --protect ~/originals ~/originals/* ~/inbox/*`,
		Args:          cobra.MinimumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVarP(&c.algorithm, "algorithm", "a", digest.SHA256.String(),
		fmt.Sprintf("Hash algorithm, one of %s (case-insensitive)", digest.SupportedNames()))
	flags.BoolVarP(&c.silent, "silent", "s", false, "Suppress STATUS, INFO and ERROR lines")
	flags.BoolVar(&c.dryRun, "dry-run", false, "Report duplicates without deleting them")
	flags.BoolVar(&c.prefilter, "prefilter", true, "Skip hashing files whose size is unique")
	flags.StringSliceVar(&c.protect, "protect", nil, "Never delete files under this directory (repeatable)")
	flags.StringVar(&c.historyDB, "history", "", "Record every deletion attempt in this SQLite database")
	flags.StringVar(&c.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	flags.StringVar(&c.logFile, "log-file", "", "Also write every line as JSON to this file")
	flags.StringVar(&c.configPath, "config", "", "Read options from this YAML file")

	return cmd
}

// options resolves the effective options: defaults, then the optional
// file, then every flag given explicitly on the command line. Nothing is
// validated until all three layers are merged.
func (c *cli) options(cmd *cobra.Command) (*config.Options, error) {
	opts := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		opts.Algorithm = c.algorithm
	}
	if flags.Changed("silent") {
		opts.Silent = c.silent
	}
	if flags.Changed("dry-run") {
		opts.DryRun = c.dryRun
	}
	if flags.Changed("prefilter") {
		opts.SizePrefilter = c.prefilter
	}
	if flags.Changed("protect") {
		opts.ProtectedPaths = c.protect
	}
	if flags.Changed("history") {
		opts.HistoryDB = c.historyDB
	}
	if flags.Changed("metrics-file") {
		opts.MetricsFile = c.metricsFile
	}
	if flags.Changed("log-file") {
		opts.LogFile = c.logFile
	}
	return opts, nil
}

func (c *cli) run(cmd *cobra.Command, targets []string) error {
	opts, err := c.options(cmd)
	if err != nil {
		logging.PrintFatal(c.stderr, "Failed to load config: %v", err)
		return errReported
	}

	requested := strings.ToUpper(strings.TrimSpace(opts.Algorithm))
	if err := opts.Validate(); err != nil {
		if errors.Is(err, digest.ErrUnsupportedAlgorithm) {
			logging.PrintFatal(c.stderr, "Hash algorithm '%s' is not supported.\nSupported algorithms: %s",
				requested, digest.SupportedNames())
		} else {
			logging.PrintFatal(c.stderr, "Invalid options: %v", err)
		}
		return errReported
	}

	console, err := logging.New(logging.Options{
		Out:          c.stdout,
		Silent:       opts.Silent,
		FilePath:     opts.LogFile,
		RotationDays: opts.LogRotationDays,
	})
	if err != nil {
		logging.PrintFatal(c.stderr, "%v", err)
		return errReported
	}
	defer console.Close()

	engine := dedup.New(dedup.Options{
		Algorithm:     opts.HashAlgorithm(),
		BufferSize:    digest.DefaultBufferSize,
		SizePrefilter: opts.SizePrefilter,
		DryRun:        opts.DryRun,
	}, console)
	engine.SetValidator(safety.NewValidator(opts.ProtectedPaths))

	if opts.HistoryDB != "" {
		db, err := database.NewDeletionDB(opts.HistoryDB)
		if err != nil {
			logging.PrintFatal(c.stderr, "Failed to open history database: %v", err)
			return errReported
		}
		defer func() {
			if err := db.Close(); err != nil {
				console.Error("Failed to close history database", "error", err)
			}
		}()
		engine.SetHistory(db)
	}

	if opts.DryRun {
		console.Status("Dry run, no files will be deleted")
	}

	_, runErr := engine.Run(cmd.Context(), targets)

	if opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(opts.MetricsFile); err != nil {
			console.Error("Failed to write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	if runErr != nil {
		logging.PrintFatal(c.stderr, "Run interrupted: %v", runErr)
		return errReported
	}
	return nil
}

// run executes the command line and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			logging.PrintFatal(stderr, "%v", err)
			_ = cmd.Usage()
		}
		return exitcodes.Failure
	}
	return exitcodes.Success
}
