package clutter

import "fmt"

// padSentinel fills the border of the working grid so that a disk centred
// near an edge never wraps onto the opposite side. It is cropped off before
// the mask is returned.
const padSentinel = -999.0

// Offset is a (row, column) displacement within a structuring element.
type Offset struct {
	DR int
	DC int
}

// Disk returns the offsets with dr² + dc² <= radius², row-major from
// (-radius, -radius). The element is symmetric for every radius, so even
// and odd radii need no special handling. Radius 0 yields the centre only.
func Disk(radius int) []Offset {
	if radius < 0 {
		return nil
	}
	out := make([]Offset, 0, (2*radius+1)*(2*radius+1))
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			if dr*dr+dc*dc <= radius*radius {
				out = append(out, Offset{DR: dr, DC: dc})
			}
		}
	}
	return out
}

// Dilate grows every true cell of candidates by a disk of the given radius.
// Overlapping disks are OR-ed together; nothing outside the original extent
// is kept.
func Dilate(candidates BoolGrid, radius int) (BoolGrid, error) {
	if radius < 0 {
		return BoolGrid{}, fmt.Errorf("radius must be non-negative, got %d", radius)
	}
	rows, cols := candidates.Rows, candidates.Cols
	pr, pc := rows+2*radius, cols+2*radius

	work := make([]float64, pr*pc)
	for r := 0; r < pr; r++ {
		for c := 0; c < pc; c++ {
			if r < radius || r >= rows+radius || c < radius || c >= cols+radius {
				work[r*pc+c] = padSentinel
			}
		}
	}

	disk := Disk(radius)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !candidates.Cells[r*cols+c] {
				continue
			}
			cr, cc := r+radius, c+radius
			for _, o := range disk {
				work[(cr+o.DR)*pc+cc+o.DC] = 1
			}
		}
	}

	out := NewBoolGrid(rows, cols)
	for r := 0; r < rows; r++ {
		src := work[(r+radius)*pc+radius : (r+radius)*pc+radius+cols]
		for c, v := range src {
			out.Cells[r*cols+c] = v == 1
		}
	}
	return out, nil
}
