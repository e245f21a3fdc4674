package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath   = errors.New("invalid path")
	ErrProtectedPath = errors.New("protected path")
)

// Validator guards removals against user-declared protected roots.
// A Validator with no protected roots allows every path.
type Validator struct {
	ProtectedPaths []string
}

// NewValidator creates a validator for the given protected roots
func NewValidator(protected []string) *Validator {
	return &Validator{
		ProtectedPaths: normalizeRoots(protected),
	}
}

// Enabled reports whether any protected root is configured
func (v *Validator) Enabled() bool {
	return v != nil && len(v.ProtectedPaths) > 0
}

// ValidateDeleteTarget is the single check run before every removal.
// Returns a wrapped ErrProtectedPath when path lies under a protected root.
func (v *Validator) ValidateDeleteTarget(path string) error {
	if !v.Enabled() {
		return nil
	}

	p, err := NormalizePath(path)
	if err != nil {
		return err
	}

	if root, ok := ProtectedRoot(p, v.ProtectedPaths); ok {
		return fmt.Errorf("%w: %s is under %s", ErrProtectedPath, path, root)
	}
	return nil
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	return filepath.Clean(abs), nil
}

// ProtectedRoot returns the protected root containing path, if any
func ProtectedRoot(path string, protected []string) (string, bool) {
	p := filepath.Clean(path)
	for _, prot := range protected {
		prot = filepath.Clean(prot)
		if hasPathPrefix(p, prot) {
			return prot, true
		}
	}
	return "", false
}

// hasPathPrefix checks if path equals prefix or lies beneath it
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// normalizeRoots converts slice of roots to absolute, cleaned paths
func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := NormalizePath(r)
		if err != nil {
			continue
		}
		out = append(out, abs)
	}
	return out
}
