package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RadarExtensions are the file suffixes picked up when a directory is given
// as an input.
var RadarExtensions = []string{".nc", ".nc4", ".cdf", ".netcdf"}

// ExpandInputs turns command-line inputs into an ordered list of radar
// files. Each input is a directory (its radar files, sorted), a glob
// pattern (its matches, sorted) or a literal path, which is kept even when
// it does not exist so the reader can report it. Duplicates keep their
// first position. A pattern that matches nothing is an error.
func ExpandInputs(fsys FileSystem, inputs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, in := range inputs {
		if in == "" {
			continue
		}
		if info, err := fsys.Stat(in); err == nil && info.IsDir() {
			matches, err := fsys.Glob(filepath.Join(in, "*"))
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", in, err)
			}
			for _, m := range matches {
				if hasRadarExt(m) {
					add(m)
				}
			}
			continue
		}
		if strings.ContainsAny(in, "*?[") {
			matches, err := fsys.Glob(in)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", in, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("pattern %q matched no files", in)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}
		add(in)
	}
	return out, nil
}

func hasRadarExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range RadarExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
