package clutter

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// CountingPolicy selects how observations are counted per gate.
type CountingPolicy int

const (
	// PerCell keeps a count for every gate; gates marked invalid in a frame
	// do not advance that gate's count, mean, or sum of squared deviations.
	PerCell CountingPolicy = iota
	// Scalar shares one count across the grid. Every gate of every frame is
	// folded in, and gates invalid in any frame stay invalid in the result.
	Scalar
)

func (p CountingPolicy) String() string {
	switch p {
	case PerCell:
		return "per_cell"
	case Scalar:
		return "scalar"
	default:
		return fmt.Sprintf("CountingPolicy(%d)", int(p))
	}
}

// ParseCountingPolicy accepts "per_cell" or "scalar", ignoring case and
// surrounding space. Empty means PerCell.
func ParseCountingPolicy(s string) (CountingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per_cell":
		return PerCell, nil
	case "scalar":
		return Scalar, nil
	default:
		return PerCell, fmt.Errorf("unknown counting policy %q", s)
	}
}

// Moments accumulates per-gate mean and sum of squared deviations over a
// stream of same-shaped frames using Welford's update, so no frame has to
// be kept once it is pushed.
//
// A Moments belongs to a single detection run and is not safe for
// concurrent use.
type Moments struct {
	policy CountingPolicy
	shape  Shape
	frames int

	counts   []int // PerCell only
	invalid  []bool
	mean     []float64
	sumSqDev []float64
}

// NewMoments returns an empty accumulator.
func NewMoments(policy CountingPolicy) *Moments {
	return &Moments{policy: policy}
}

// Policy returns the counting policy.
func (m *Moments) Policy() CountingPolicy { return m.policy }

// Shape returns the shape fixed by the first push, or the zero Shape.
func (m *Moments) Shape() Shape { return m.shape }

// Count returns the number of frames folded in.
func (m *Moments) Count() int { return m.frames }

// Reset discards all accumulated state.
func (m *Moments) Reset() {
	*m = Moments{policy: m.policy}
}

// Push folds one frame into the statistics. The first frame fixes the
// shape; a later frame of another shape is rejected with a *ShapeError and
// leaves the state untouched. Under PerCell counting a frame with no valid
// gate is rejected with ErrEmptyFrame and is not counted.
func (m *Moments) Push(f Frame) error {
	if f.Values == nil {
		return fmt.Errorf("%w: empty frame", ErrShapeMismatch)
	}
	shape := f.Shape()
	if f.Invalid != nil && len(f.Invalid) != shape.Size() {
		return fmt.Errorf("%w: validity mask has %d cells, frame has %d",
			ErrShapeMismatch, len(f.Invalid), shape.Size())
	}
	if m.frames > 0 && shape != m.shape {
		return &ShapeError{Got: shape, Want: m.shape}
	}
	if m.policy == PerCell && !f.hasValid() {
		return fmt.Errorf("%w: %d gates, all invalid", ErrEmptyFrame, shape.Size())
	}
	if m.frames == 0 {
		m.init(shape)
	}

	m.frames++
	raw := f.Values.RawMatrix()
	cols := shape.Cols
	for r := 0; r < shape.Rows; r++ {
		row := raw.Data[r*raw.Stride : r*raw.Stride+cols]
		for c, x := range row {
			i := r*cols + c
			var k int
			if m.policy == Scalar {
				k = m.frames
				if f.invalidAt(i) {
					m.invalid[i] = true
					// Masked non-finite fill contributes no deviation.
					if math.IsNaN(x) || math.IsInf(x, 0) {
						x = m.mean[i]
					}
				}
			} else {
				if f.invalidAt(i) {
					continue
				}
				m.counts[i]++
				k = m.counts[i]
			}
			m.update(i, k, x)
		}
	}
	return nil
}

func (m *Moments) init(shape Shape) {
	n := shape.Size()
	m.shape = shape
	m.mean = make([]float64, n)
	m.sumSqDev = make([]float64, n)
	if m.policy == Scalar {
		m.invalid = make([]bool, n)
	} else {
		m.counts = make([]int, n)
	}
}

// update applies the k-th observation x to gate i.
func (m *Moments) update(i, k int, x float64) {
	if k == 1 {
		m.mean[i] = x
		m.sumSqDev[i] = 0
		return
	}
	oldMean := m.mean[i]
	newMean := oldMean + (x-oldMean)/float64(k)
	m.sumSqDev[i] += (x - oldMean) * (x - newMean)
	m.mean[i] = newMean
}

func (m *Moments) countAt(i int) int {
	if m.policy == Scalar {
		return m.frames
	}
	return m.counts[i]
}

// CellCount returns the number of observations folded into gate (r, c).
func (m *Moments) CellCount(r, c int) int {
	if m.frames == 0 {
		return 0
	}
	return m.countAt(r*m.shape.Cols + c)
}

// Mean returns the running mean per gate, or nil before any push.
// Gates never observed under PerCell counting hold 0.
func (m *Moments) Mean() *mat.Dense {
	if m.frames == 0 {
		return nil
	}
	data := make([]float64, len(m.mean))
	copy(data, m.mean)
	return mat.NewDense(m.shape.Rows, m.shape.Cols, data)
}

// Variance returns the sample variance per gate, or nil before any push.
// Gates with fewer than two observations get 0.
func (m *Moments) Variance() *mat.Dense {
	if m.frames == 0 {
		return nil
	}
	data := make([]float64, len(m.sumSqDev))
	for i, s := range m.sumSqDev {
		if k := m.countAt(i); k > 1 {
			data[i] = s / float64(k-1)
		}
	}
	return mat.NewDense(m.shape.Rows, m.shape.Cols, data)
}

// StandardDeviation returns the elementwise square root of Variance.
func (m *Moments) StandardDeviation() *mat.Dense {
	v := m.Variance()
	if v == nil {
		return nil
	}
	v.Apply(func(_, _ int, x float64) float64 { return math.Sqrt(x) }, v)
	return v
}

// Invalid returns the row-major validity layer of the statistics: gates
// never observed under PerCell counting, or gates invalid in any frame under
// Scalar counting. Nil before any push.
func (m *Moments) Invalid() []bool {
	if m.frames == 0 {
		return nil
	}
	out := make([]bool, m.shape.Size())
	if m.policy == Scalar {
		copy(out, m.invalid)
		return out
	}
	for i, k := range m.counts {
		out[i] = k == 0
	}
	return out
}
