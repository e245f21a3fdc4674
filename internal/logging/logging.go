package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Line categories, written as the zerolog level field
const (
	LabelStatus = "status"
	LabelInfo   = "info"
	LabelError  = "error"
)

// Options configures a Console
type Options struct {
	Out          io.Writer // console destination, os.Stdout when nil
	Silent       bool      // drop console output entirely
	FilePath     string    // optional JSON log file
	RotationDays int       // rotation window for FilePath, 30 when zero
}

// Console writes STATUS / INFO / ERROR lines to the terminal and,
// optionally, JSON lines to a log file. Silent mode only affects the
// terminal.
type Console struct {
	logger zerolog.Logger
	file   *os.File
}

// New creates a Console. A log file that cannot be opened is an error.
func New(opts Options) (*Console, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var writers []io.Writer
	if !opts.Silent {
		writers = append(writers, newConsoleWriter(out, !ColorEnabled(out)))
	}

	c := &Console{}
	if opts.FilePath != "" {
		rotationDays := opts.RotationDays
		if rotationDays <= 0 {
			rotationDays = 30
		}
		f, err := openLogFile(opts.FilePath, rotationDays)
		if err != nil {
			return nil, err
		}
		c.file = f
		writers = append(writers, f)
	}

	switch len(writers) {
	case 0:
		c.logger = zerolog.Nop()
	case 1:
		c.logger = zerolog.New(writers[0]).With().Timestamp().Logger()
	default:
		c.logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	}
	return c, nil
}

// Status reports a phase transition
func (c *Console) Status(msg string, args ...interface{}) {
	c.write(LabelStatus, msg, args)
}

// Info reports per-item progress
func (c *Console) Info(msg string, args ...interface{}) {
	c.write(LabelInfo, msg, args)
}

// Error reports a per-file failure that does not abort the run
func (c *Console) Error(msg string, args ...interface{}) {
	c.write(LabelError, msg, args)
}

func (c *Console) write(label, msg string, args []interface{}) {
	e := c.logger.Log().Str(zerolog.LevelFieldName, label)
	if len(args) > 0 {
		e = e.Fields(args)
	}
	e.Msg(msg)
}

// Close releases the log file, if any
func (c *Console) Close() error {
	if c.file == nil {
		return nil
	}
	return c.file.Close()
}

// PrintFatal writes an error that ends the process. It ignores silent mode.
func PrintFatal(w io.Writer, format string, args ...interface{}) {
	label := newLabels(w, !ColorEnabled(w)).render(LabelError)
	fmt.Fprintf(w, "%s %s\n", label, fmt.Sprintf(format, args...))
}

// ColorEnabled reports whether w is a colour-capable terminal.
// NO_COLOR, pipes and ASCII-only terminals disable colour.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	return termenv.NewOutput(f).ColorProfile() != termenv.Ascii
}

func newConsoleWriter(out io.Writer, noColor bool) zerolog.ConsoleWriter {
	lbl := newLabels(out, noColor)
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		PartsOrder: []string{zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			return lbl.render(s)
		},
	}
}

type labels struct {
	styles map[string]lipgloss.Style
	plain  lipgloss.Style
}

func newLabels(out io.Writer, noColor bool) labels {
	r := lipgloss.NewRenderer(out)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}
	return labels{
		styles: map[string]lipgloss.Style{
			LabelStatus: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
			LabelInfo:   r.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
			LabelError:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		},
		plain: r.NewStyle(),
	}
}

func (l labels) render(level string) string {
	text := strings.ToUpper(level)
	if style, ok := l.styles[level]; ok {
		return style.Render(text)
	}
	return l.plain.Render(text)
}

// openLogFile rotates path if needed and opens it for appending
func openLogFile(path string, rotationDays int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotateLogsIfNeeded(path, rotationDays)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// rotateLogsIfNeeded renames a log file last written more than
// rotationDays ago and prunes old rotated copies
func rotateLogsIfNeeded(logPath string, rotationDays int) {
	info, err := os.Stat(logPath)
	if err != nil {
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)
	if !info.ModTime().Before(cutoffTime) {
		return
	}

	rotatedPath := logPath + "." + info.ModTime().Format("20060102-150405")
	if err := os.Rename(logPath, rotatedPath); err != nil {
		zlog.Warn().Err(err).Str("path", logPath).Msg("Failed to rotate log file")
		return
	}

	cleanupOldLogs(logPath, rotatedPath, rotationDays)
}

// cleanupOldLogs removes rotated log files older than rotation days,
// except the copy rotated just now
func cleanupOldLogs(logPath, keep string, rotationDays int) {
	logDir := filepath.Dir(logPath)
	prefix := filepath.Base(logPath) + "."

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	cutoffTime := time.Now().AddDate(0, 0, -rotationDays)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		fullPath := filepath.Join(logDir, entry.Name())
		if fullPath == keep {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			if err := os.Remove(fullPath); err != nil {
				zlog.Warn().Err(err).Str("path", fullPath).Msg("Failed to remove old log file")
			}
		}
	}
}
