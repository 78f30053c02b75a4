package clutter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestThreshold_Flags(t *testing.T) {
	testCases := []struct {
		name  string
		t     Threshold
		ratio float64
		want  bool
	}{
		{"single_above", SingleThreshold(0.5), 0.6, true},
		{"single_equal_is_clear", SingleThreshold(0.5), 0.5, false},
		{"single_below", SingleThreshold(0.5), 0.4, false},
		{"range_inside", RangeThreshold(0.1, 1.5), 1.0, true},
		{"range_lower_bound_exclusive", RangeThreshold(0.1, 1.5), 0.1, false},
		{"range_upper_bound_exclusive", RangeThreshold(0.1, 1.5), 1.5, false},
		{"range_above", RangeThreshold(0.1, 1.5), 2.0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.t.Flags(tc.ratio))
		})
	}
}

func TestThreshold_Validate(t *testing.T) {
	assert.NoError(t, SingleThreshold(0.0002).Validate())
	assert.NoError(t, SingleThreshold(-1).Validate())
	assert.NoError(t, RangeThreshold(0.0002, 1.5).Validate())
	assert.Error(t, RangeThreshold(1, 1).Validate())
	assert.Error(t, RangeThreshold(2, 1).Validate())
	assert.Error(t, SingleThreshold(math.NaN()).Validate())
	assert.Error(t, RangeThreshold(0, math.NaN()).Validate())
	assert.Error(t, Threshold{Policy: ThresholdPolicy(9)}.Validate())
}

func TestClutterRatio_GuardsZeroMean(t *testing.T) {
	mean := mat.NewDense(1, 4, []float64{0, 10, 5, 0})
	stdev := mat.NewDense(1, 4, []float64{3, 2, 1, 0})
	invalid := []bool{false, false, true, false}

	ratio, undefined := ClutterRatio(mean, stdev, invalid)

	assert.Equal(t, []bool{true, false, true, true}, undefined)
	for c := 0; c < 4; c++ {
		v := ratio.At(0, c)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "ratio at %d is not finite", c)
	}
	assert.InDelta(t, 0.2, ratio.At(0, 1), 1e-12)

	// Undefined gates stay clear even when every defined ratio is flagged.
	got := Candidates(ratio, undefined, SingleThreshold(-1))
	assert.Equal(t, []bool{false, true, false, false}, got.Cells)
}

func TestCandidates_Range(t *testing.T) {
	ratio := mat.NewDense(2, 2, []float64{0.05, 0.5, 1.5, 3})
	got := Candidates(ratio, nil, RangeThreshold(0.1, 2))
	assert.Equal(t, []bool{false, true, true, false}, got.Cells)
	assert.Equal(t, 2, got.Count())
}
