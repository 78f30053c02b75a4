package radarfile

import (
	"fmt"
	"math"

	"github.com/ctessum/cdf"

	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/clutter"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/fsutil"
)

// DefaultField is the input field read when none is configured.
const DefaultField = "reflectivity"

// Source reads one field of a radar file as a clutter.Frame.
type Source struct {
	fs    fsutil.FileSystem
	field string
}

// NewSource returns a Source reading field from files in fsys. An empty
// field selects DefaultField.
func NewSource(fsys fsutil.FileSystem, field string) *Source {
	if field == "" {
		field = DefaultField
	}
	return &Source{fs: fsys, field: field}
}

// Field returns the name of the variable the source decodes.
func (s *Source) Field() string { return s.field }

// Read decodes the configured field of path. The variable must be 2-D
// (rays × gates).
func (s *Source) Read(path string) (clutter.Frame, error) {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return clutter.Frame{}, err
	}
	f, err := cdf.Open(fsutil.NewBuffer(data))
	if err != nil {
		return clutter.Frame{}, fmt.Errorf("open netcdf: %w", err)
	}
	if !hasVariable(f.Header, s.field) {
		return clutter.Frame{}, fmt.Errorf("variable %q not found", s.field)
	}
	lens := f.Header.Lengths(s.field)
	if len(lens) != 2 {
		return clutter.Frame{}, fmt.Errorf("variable %q has %d dimensions, want 2", s.field, len(lens))
	}
	rows, cols := lens[0], lens[1]
	if rows == 0 || cols == 0 {
		return clutter.Frame{}, fmt.Errorf("variable %q is empty (%dx%d)", s.field, rows, cols)
	}

	raw, err := readAll(f, s.field)
	if err != nil {
		return clutter.Frame{}, err
	}
	values, err := toFloat64(raw)
	if err != nil {
		return clutter.Frame{}, fmt.Errorf("variable %q: %w", s.field, err)
	}
	if len(values) != rows*cols {
		return clutter.Frame{}, fmt.Errorf("variable %q: dims are %d but array length is %d", s.field, rows*cols, len(values))
	}

	fills := append(attrFloats(f.Header, s.field, "_FillValue"), attrFloats(f.Header, s.field, "missing_value")...)
	scale, offset := 1.0, 0.0
	if v := attrFloats(f.Header, s.field, "scale_factor"); len(v) > 0 {
		scale = v[0]
	}
	if v := attrFloats(f.Header, s.field, "add_offset"); len(v) > 0 {
		offset = v[0]
	}

	invalid := make([]bool, len(values))
	for i, v := range values {
		if isMissing(v, fills) {
			invalid[i] = true
			values[i] = 0
			continue
		}
		values[i] = v*scale + offset
	}
	return clutter.NewFrame(rows, cols, values, invalid), nil
}

func isMissing(v float64, fills []float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	for _, f := range fills {
		if v == f {
			return true
		}
	}
	return false
}
