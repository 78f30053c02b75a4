// Package security validates user-supplied output paths and variable
// names before anything is written.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOverwritesInput is returned when an output path names one of the
// files being read.
var ErrOverwritesInput = errors.New("output would overwrite an input file")

func canonical(path string) string {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return filepath.Clean(path)
	}
	// Resolve symlinks when the path exists so a link to an input is caught.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// ValidateOutputPath checks that out is a usable file path and does not
// resolve to any of inputs.
func ValidateOutputPath(out string, inputs []string) error {
	if strings.TrimSpace(out) == "" {
		return fmt.Errorf("output path is empty")
	}
	if strings.HasSuffix(out, "/") || strings.HasSuffix(out, string(filepath.Separator)) {
		return fmt.Errorf("output path %q names a directory", out)
	}
	target := canonical(out)
	for _, in := range inputs {
		if canonical(in) == target {
			return fmt.Errorf("%s: %w", out, ErrOverwritesInput)
		}
	}
	return nil
}

// ValidateVariableName checks that name is a legal NetCDF variable name
// for the files this tool writes: a letter or underscore followed by
// ASCII letters, digits, dot, underscore or dash.
func ValidateVariableName(name string) error {
	if name == "" {
		return fmt.Errorf("variable name is empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("variable name %q is longer than 128 characters", name)
	}
	for i, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_':
		case i > 0 && ((r >= '0' && r <= '9') || r == '.' || r == '-'):
		default:
			return fmt.Errorf("variable name %q has invalid character %q at %d", name, r, i)
		}
	}
	return nil
}
