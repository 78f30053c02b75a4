package clutter

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Shape is the rays × gates extent of a sweep.
type Shape struct {
	Rows int
	Cols int
}

// DefaultShape is the X-SAPR PPI shape observed at the SGP site.
var DefaultShape = Shape{Rows: 9200, Cols: 501}

func (s Shape) String() string { return fmt.Sprintf("(%d, %d)", s.Rows, s.Cols) }

// Size returns the number of gates.
func (s Shape) Size() int { return s.Rows * s.Cols }

// IsZero reports whether no shape has been set.
func (s Shape) IsZero() bool { return s.Rows == 0 && s.Cols == 0 }

// Frame is one sweep of reflectivity with its validity layer.
// Invalid is row-major and marks gates whose value is missing; nil means
// every gate is valid.
type Frame struct {
	Values  *mat.Dense
	Invalid []bool
}

// NewFrame builds a Frame from row-major values. invalid may be nil.
func NewFrame(rows, cols int, values []float64, invalid []bool) Frame {
	return Frame{Values: mat.NewDense(rows, cols, values), Invalid: invalid}
}

// Shape returns the frame's extent, or the zero Shape for an empty frame.
func (f Frame) Shape() Shape {
	if f.Values == nil {
		return Shape{}
	}
	r, c := f.Values.Dims()
	return Shape{Rows: r, Cols: c}
}

func (f Frame) invalidAt(i int) bool {
	return f.Invalid != nil && f.Invalid[i]
}

func (f Frame) hasValid() bool {
	if f.Invalid == nil {
		return true
	}
	for _, bad := range f.Invalid {
		if !bad {
			return true
		}
	}
	return false
}

// BoolGrid is a row-major boolean grid, used for clutter candidates and the
// dilated mask before encoding.
type BoolGrid struct {
	Rows  int
	Cols  int
	Cells []bool
}

// NewBoolGrid returns an all-false grid.
func NewBoolGrid(rows, cols int) BoolGrid {
	return BoolGrid{Rows: rows, Cols: cols, Cells: make([]bool, rows*cols)}
}

// At reports the cell at (r, c).
func (g BoolGrid) At(r, c int) bool { return g.Cells[r*g.Cols+c] }

// Set assigns the cell at (r, c).
func (g BoolGrid) Set(r, c int, v bool) { g.Cells[r*g.Cols+c] = v }

// Count returns the number of true cells.
func (g BoolGrid) Count() int {
	n := 0
	for _, v := range g.Cells {
		if v {
			n++
		}
	}
	return n
}

// Contains reports whether every true cell of other is also true in g.
func (g BoolGrid) Contains(other BoolGrid) bool {
	if g.Rows != other.Rows || g.Cols != other.Cols {
		return false
	}
	for i, v := range other.Cells {
		if v && !g.Cells[i] {
			return false
		}
	}
	return true
}

// MaskedGrid is a numeric grid paired with a validity layer. The clutter
// mask is carried as 0.0/1.0 values rather than booleans so writers can
// store it alongside other float fields.
type MaskedGrid struct {
	Values  *mat.Dense
	Invalid []bool
}

// NewMaskedGrid encodes g as 0/1 values and attaches invalid, which is
// copied so later changes by the caller do not leak into the result.
func NewMaskedGrid(g BoolGrid, invalid []bool) MaskedGrid {
	data := make([]float64, len(g.Cells))
	for i, v := range g.Cells {
		if v {
			data[i] = 1
		}
	}
	var inv []bool
	if invalid != nil {
		inv = make([]bool, len(invalid))
		copy(inv, invalid)
	}
	return MaskedGrid{Values: mat.NewDense(g.Rows, g.Cols, data), Invalid: inv}
}

// Shape returns the grid extent.
func (g MaskedGrid) Shape() Shape {
	if g.Values == nil {
		return Shape{}
	}
	r, c := g.Values.Dims()
	return Shape{Rows: r, Cols: c}
}

// At returns the value at (r, c) and whether it is valid.
func (g MaskedGrid) At(r, c int) (float64, bool) {
	_, cols := g.Values.Dims()
	if g.Invalid != nil && g.Invalid[r*cols+c] {
		return 0, false
	}
	return g.Values.At(r, c), true
}

// CountValid returns the number of valid cells holding v.
func (g MaskedGrid) CountValid(v float64) int {
	rows, cols := g.Values.Dims()
	n := 0
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if x, ok := g.At(r, c); ok && x == v {
				n++
			}
		}
	}
	return n
}

// Encode flattens the grid row-major, writing fill into invalid cells.
func (g MaskedGrid) Encode(fill float64) []float64 {
	rows, cols := g.Values.Dims()
	out := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			if g.Invalid != nil && g.Invalid[i] {
				out[i] = fill
				continue
			}
			out[i] = g.Values.At(r, c)
		}
	}
	return out
}

// MaskDiff counts how two clutter masks of the same shape disagree. Gates
// invalid in either mask are counted in Incomparable only.
type MaskDiff struct {
	Added        int // clutter in the new mask only
	Removed      int // clutter in the old mask only
	Unchanged    int
	Incomparable int
}

// Changed returns the number of valid gates whose flag differs.
func (d MaskDiff) Changed() int { return d.Added + d.Removed }

// Compare returns how g differs from old. The masks must have the same
// shape.
func (g MaskedGrid) Compare(old MaskedGrid) (MaskDiff, error) {
	if got, want := g.Shape(), old.Shape(); got != want {
		return MaskDiff{}, &ShapeError{Got: got, Want: want}
	}
	var d MaskDiff
	shape := g.Shape()
	for r := 0; r < shape.Rows; r++ {
		for c := 0; c < shape.Cols; c++ {
			now, okNow := g.At(r, c)
			was, okWas := old.At(r, c)
			switch {
			case !okNow || !okWas:
				d.Incomparable++
			case now == 1 && was != 1:
				d.Added++
			case now != 1 && was == 1:
				d.Removed++
			default:
				d.Unchanged++
			}
		}
	}
	return d, nil
}
