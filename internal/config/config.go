package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"distinct-hash/internal/digest"
)

// Options controls one deduplication run.
// A default invocation never reads an options file; Load is used only
// when --config is given.
type Options struct {
	Algorithm      string   `yaml:"algorithm" json:"algorithm"`
	Silent         bool     `yaml:"silent" json:"silent"`
	DryRun         bool     `yaml:"dry_run" json:"dry_run"`
	SizePrefilter  bool     `yaml:"size_prefilter" json:"size_prefilter"`
	ProtectedPaths []string `yaml:"protected_paths" json:"protected_paths"`

	// Optional outputs, each disabled when empty
	HistoryDB   string `yaml:"history_db" json:"history_db"`
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
	LogFile     string `yaml:"log_file" json:"log_file"`

	LogRotationDays int `yaml:"log_rotation_days" json:"log_rotation_days"`

	algorithm digest.Algorithm
}

var (
	errNegativeRotation = errors.New("log_rotation_days cannot be negative")
	errEmptyProtected   = errors.New("protected_paths entries cannot be empty")
)

// Default returns the options used when no file and no flags are given
func Default() *Options {
	return &Options{
		Algorithm:       digest.SHA256.String(),
		SizePrefilter:   true,
		LogRotationDays: 30,
	}
}

// Load reads a YAML options file on top of Default. The result is not
// validated: callers apply command-line overrides first, then Validate.
func Load(path string) (*Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	return decode(f)
}

func decode(r io.Reader) (*Options, error) {
	opts := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(opts); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return opts, nil
}

// Validate checks the options, fills defaults and resolves the algorithm
func (o *Options) Validate() error {
	alg, err := digest.ParseAlgorithm(o.Algorithm)
	if err != nil {
		return err
	}
	o.algorithm = alg
	o.Algorithm = alg.String()

	if o.LogRotationDays < 0 {
		return errNegativeRotation
	}
	if o.LogRotationDays == 0 {
		o.LogRotationDays = 30
	}

	cleaned := make([]string, 0, len(o.ProtectedPaths))
	for _, p := range o.ProtectedPaths {
		if p == "" {
			return errEmptyProtected
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("protected path %s: %w", p, err)
		}
		cleaned = append(cleaned, filepath.Clean(abs))
	}
	o.ProtectedPaths = cleaned

	return nil
}

// HashAlgorithm returns the algorithm resolved by Validate
func (o *Options) HashAlgorithm() digest.Algorithm {
	return o.algorithm
}
