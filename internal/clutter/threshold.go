package clutter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ThresholdPolicy selects how the clutter ratio is compared to thresholds.
type ThresholdPolicy int

const (
	// Single flags gates whose ratio is strictly above Min.
	Single ThresholdPolicy = iota
	// Range flags gates whose ratio is strictly between Min and Max.
	Range
)

func (p ThresholdPolicy) String() string {
	switch p {
	case Single:
		return "single"
	case Range:
		return "range"
	default:
		return fmt.Sprintf("ThresholdPolicy(%d)", int(p))
	}
}

// Threshold holds the policy and its bounds. Max is ignored by Single.
type Threshold struct {
	Policy ThresholdPolicy
	Min    float64
	Max    float64
}

// SingleThreshold flags ratio > min.
func SingleThreshold(min float64) Threshold {
	return Threshold{Policy: Single, Min: min}
}

// RangeThreshold flags min < ratio < max.
func RangeThreshold(min, max float64) Threshold {
	return Threshold{Policy: Range, Min: min, Max: max}
}

// Validate checks the bounds are usable for the policy.
func (t Threshold) Validate() error {
	if math.IsNaN(t.Min) || math.IsInf(t.Min, 0) {
		return fmt.Errorf("clutter_thresh_min must be finite, got %v", t.Min)
	}
	switch t.Policy {
	case Single:
		return nil
	case Range:
		if math.IsNaN(t.Max) {
			return fmt.Errorf("clutter_thresh_max must not be NaN")
		}
		if t.Max <= t.Min {
			return fmt.Errorf("clutter_thresh_max (%v) must be greater than clutter_thresh_min (%v)", t.Max, t.Min)
		}
		return nil
	default:
		return fmt.Errorf("unknown threshold policy %d", int(t.Policy))
	}
}

// Flags reports whether a ratio falls in the clutter zone. Both bounds are
// exclusive.
func (t Threshold) Flags(ratio float64) bool {
	if t.Policy == Range {
		return t.Min < ratio && ratio < t.Max
	}
	return ratio > t.Min
}

// ClutterRatio computes stdev/mean per gate. Gates that are invalid, have a
// zero mean, or would otherwise produce a non-finite ratio get 0 and are
// reported in undefined, so they can never be flagged.
func ClutterRatio(mean, stdev *mat.Dense, invalid []bool) (ratio *mat.Dense, undefined []bool) {
	rows, cols := mean.Dims()
	ratio = mat.NewDense(rows, cols, nil)
	undefined = make([]bool, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			m := mean.At(r, c)
			if (invalid != nil && invalid[i]) || m == 0 {
				undefined[i] = true
				continue
			}
			v := stdev.At(r, c) / m
			if math.IsNaN(v) || math.IsInf(v, 0) {
				undefined[i] = true
				continue
			}
			ratio.Set(r, c, v)
		}
	}
	return ratio, undefined
}

// Candidates applies t to every defined gate of ratio.
func Candidates(ratio *mat.Dense, undefined []bool, t Threshold) BoolGrid {
	rows, cols := ratio.Dims()
	g := NewBoolGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			if undefined != nil && undefined[i] {
				continue
			}
			g.Cells[i] = t.Flags(ratio.At(r, c))
		}
	}
	return g
}
