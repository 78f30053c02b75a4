package clutter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/config"
)

// mapSource serves frames from memory and counts reads.
type mapSource struct {
	frames map[string]Frame
	errs   map[string]error
	reads  int
}

func (s *mapSource) Read(path string) (Frame, error) {
	s.reads++
	if err, ok := s.errs[path]; ok {
		return Frame{}, err
	}
	f, ok := s.frames[path]
	if !ok {
		return Frame{}, fmt.Errorf("no such file %s", path)
	}
	return f, nil
}

func constantFrame(rows, cols int, v float64) Frame {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = v
	}
	return NewFrame(rows, cols, data, nil)
}

// oscillatingStream returns frames of value 10 everywhere except (r, c),
// which takes the given values in turn.
func oscillatingStream(rows, cols, r, c int, values ...float64) (*mapSource, []string) {
	src := &mapSource{frames: map[string]Frame{}}
	var paths []string
	for i, v := range values {
		f := constantFrame(rows, cols, 10)
		f.Values.Set(r, c, v)
		path := fmt.Sprintf("scan_%02d.nc", i)
		src.frames[path] = f
		paths = append(paths, path)
	}
	return src, paths
}

// maskRows renders a mask as rows, with -1 for invalid cells.
func maskRows(m MaskedGrid) [][]float64 {
	shape := m.Shape()
	flat := m.Encode(-1)
	out := make([][]float64, shape.Rows)
	for r := range out {
		out[r] = flat[r*shape.Cols : (r+1)*shape.Cols]
	}
	return out
}

func newTestDetector(t *testing.T, opts Options) *Detector {
	t.Helper()
	d, err := NewDetector(opts)
	require.NoError(t, err)
	return d
}

func TestDetect_OscillatingCellRadiusZero(t *testing.T) {
	t.Parallel()
	src, paths := oscillatingStream(4, 4, 1, 2, 8, 12, 10)
	d := newTestDetector(t, Options{
		Shape:     Shape{Rows: 4, Cols: 4},
		Threshold: SingleThreshold(0.01),
		Radius:    0,
	})

	res, err := d.Detect(context.Background(), src, paths)
	require.NoError(t, err)

	want := [][]float64{
		{0, 0, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}
	if diff := cmp.Diff(want, maskRows(res.Mask)); diff != "" {
		t.Errorf("mask mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, res.FramesUsed)
	assert.Equal(t, 1, res.ClutterCells)
	assert.Empty(t, res.Skipped)
	assert.InDelta(t, 0.2, res.Ratio.At(1, 2), 1e-12)
	assert.Equal(t, 3, src.reads)
}

func TestDetect_RadiusOneIsolatedCell(t *testing.T) {
	t.Parallel()
	src, paths := oscillatingStream(5, 5, 2, 2, 5, 15, 10, 12)
	d := newTestDetector(t, Options{
		Shape:     Shape{Rows: 5, Cols: 5},
		Threshold: SingleThreshold(0.01),
		Radius:    1,
	})

	res, err := d.Detect(context.Background(), src, paths)
	require.NoError(t, err)

	want := [][]float64{
		{0, 0, 0, 0, 0},
		{0, 0, 1, 0, 0},
		{0, 1, 1, 1, 0},
		{0, 0, 1, 0, 0},
		{0, 0, 0, 0, 0},
	}
	if diff := cmp.Diff(want, maskRows(res.Mask)); diff != "" {
		t.Errorf("mask mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, res.Candidates.Count())
	assert.Equal(t, 5, res.ClutterCells)
}

func TestDetect_SkipsWrongShape(t *testing.T) {
	t.Parallel()
	src, paths := oscillatingStream(4, 4, 3, 0, 9, 14, 10, 7)
	opts := Options{
		Shape:     Shape{Rows: 4, Cols: 4},
		Threshold: SingleThreshold(0.05),
		Radius:    1,
	}

	clean, err := newTestDetector(t, opts).Detect(context.Background(), src, paths)
	require.NoError(t, err)

	src.frames["odd.nc"] = constantFrame(3, 4, 500)
	withOdd := append([]string{paths[0], "odd.nc"}, paths[1:]...)
	res, err := newTestDetector(t, opts).Detect(context.Background(), src, withOdd)
	require.NoError(t, err)

	if diff := cmp.Diff(maskRows(clean.Mask), maskRows(res.Mask)); diff != "" {
		t.Errorf("skipping a frame changed the mask (-clean +skipped):\n%s", diff)
	}
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "odd.nc", res.Skipped[0].Path)
	var se *ShapeError
	require.True(t, errors.As(res.Skipped[0].Err, &se))
	assert.Equal(t, Shape{Rows: 3, Cols: 4}, se.Got)
	assert.Equal(t, 4, res.FramesUsed)
}

func TestDetect_EmptyStreamIsFatal(t *testing.T) {
	t.Parallel()
	d := newTestDetector(t, DefaultOptions())

	_, err := d.Detect(context.Background(), &mapSource{}, nil)
	assert.True(t, errors.Is(err, ErrNoValidFrames))

	src := &mapSource{frames: map[string]Frame{"a.nc": constantFrame(2, 2, 1)}}
	_, err = d.Detect(context.Background(), src, []string{"a.nc"})
	assert.True(t, errors.Is(err, ErrNoValidFrames), "all frames skipped should be fatal, got %v", err)
}

func TestDetect_FullyMaskedFrames(t *testing.T) {
	t.Parallel()
	masked := func(v float64) Frame {
		f := constantFrame(2, 2, v)
		f.Invalid = []bool{true, true, true, true}
		return f
	}
	src := &mapSource{frames: map[string]Frame{"a.nc": masked(1), "b.nc": masked(2)}}
	d := newTestDetector(t, Options{Shape: Shape{Rows: 2, Cols: 2}, Threshold: SingleThreshold(0.1)})

	_, err := d.Detect(context.Background(), src, []string{"a.nc", "b.nc"})
	assert.True(t, errors.Is(err, ErrNoValidFrames))

	src.frames["c.nc"] = constantFrame(2, 2, 5)
	src.frames["d.nc"] = constantFrame(2, 2, 5)
	res, err := d.Detect(context.Background(), src, []string{"a.nc", "c.nc", "b.nc", "d.nc"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FramesUsed)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, "a.nc", res.Skipped[0].Path)
	assert.True(t, errors.Is(res.Skipped[1].Err, ErrEmptyFrame))
}

func TestDetect_NoClutterIsNotAnError(t *testing.T) {
	t.Parallel()
	src := &mapSource{frames: map[string]Frame{
		"a.nc": constantFrame(3, 3, 20),
		"b.nc": constantFrame(3, 3, 20),
	}}
	d := newTestDetector(t, Options{Shape: Shape{Rows: 3, Cols: 3}, Threshold: SingleThreshold(0.01), Radius: 2})

	res, err := d.Detect(context.Background(), src, []string{"a.nc", "b.nc"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ClutterCells)
}

func TestDetect_ReadErrors(t *testing.T) {
	t.Parallel()
	src, paths := oscillatingStream(3, 3, 0, 0, 5, 15, 10)
	src.errs = map[string]error{"broken.nc": errors.New("truncated header")}
	paths = append(paths, "broken.nc")
	opts := Options{Shape: Shape{Rows: 3, Cols: 3}, Threshold: SingleThreshold(0.01)}

	_, err := newTestDetector(t, opts).Detect(context.Background(), src, paths)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRead))
	assert.False(t, errors.Is(err, ErrWrite))
	var re *ReadError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "broken.nc", re.Path)

	opts.SkipUnreadable = true
	res, err := newTestDetector(t, opts).Detect(context.Background(), src, paths)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.True(t, errors.Is(res.Skipped[0].Err, ErrRead))
	assert.Equal(t, 3, res.FramesUsed)
}

func TestDetect_ZeroShapeAcceptsFirstFrame(t *testing.T) {
	t.Parallel()
	src, paths := oscillatingStream(2, 3, 0, 1, 1, 30)
	src.frames["small.nc"] = constantFrame(1, 1, 4)
	paths = append(paths, "small.nc")

	d := newTestDetector(t, Options{Threshold: SingleThreshold(0.01)})
	res, err := d.Detect(context.Background(), src, paths)
	require.NoError(t, err)
	assert.Equal(t, Shape{Rows: 2, Cols: 3}, res.Mask.Shape())
	assert.Len(t, res.Skipped, 1)
}

func TestDetect_CarriesValidityMask(t *testing.T) {
	t.Parallel()
	src, paths := oscillatingStream(3, 3, 1, 1, 5, 15, 10)
	for _, p := range paths {
		f := src.frames[p]
		f.Invalid = make([]bool, 9)
		f.Invalid[2] = true // (0, 2) never valid
		src.frames[p] = f
	}

	d := newTestDetector(t, Options{Shape: Shape{Rows: 3, Cols: 3}, Threshold: SingleThreshold(0.01), Radius: 1})
	res, err := d.Detect(context.Background(), src, paths)
	require.NoError(t, err)

	want := [][]float64{
		{0, 1, -1},
		{1, 1, 1},
		{0, 1, 0},
	}
	if diff := cmp.Diff(want, maskRows(res.Mask)); diff != "" {
		t.Errorf("mask mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, res.Invalid, res.Mask.Invalid)
	_, ok := res.Mask.At(0, 2)
	assert.False(t, ok)
}

func TestDetect_ScalarCountingUnionsMasks(t *testing.T) {
	t.Parallel()
	src, paths := oscillatingStream(2, 2, 0, 0, 5, 15, 10)
	f := src.frames[paths[1]]
	f.Invalid = []bool{false, false, false, true}
	src.frames[paths[1]] = f

	d := newTestDetector(t, Options{Shape: Shape{Rows: 2, Cols: 2}, Threshold: SingleThreshold(0.01), Counting: Scalar})
	res, err := d.Detect(context.Background(), src, paths)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, true}, res.Invalid)

	d = newTestDetector(t, Options{Shape: Shape{Rows: 2, Cols: 2}, Threshold: SingleThreshold(0.01), Counting: PerCell})
	res, err = d.Detect(context.Background(), src, paths)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, false}, res.Invalid)
}

func TestDetect_RangePolicy(t *testing.T) {
	t.Parallel()
	src := &mapSource{frames: map[string]Frame{
		"a.nc": NewFrame(1, 3, []float64{10, 10, 1}, nil),
		"b.nc": NewFrame(1, 3, []float64{10, 12, 100}, nil),
	}}
	paths := []string{"a.nc", "b.nc"}
	opts := Options{Shape: Shape{Rows: 1, Cols: 3}, Threshold: RangeThreshold(0.01, 1.0)}

	res, err := newTestDetector(t, opts).Detect(context.Background(), src, paths)
	require.NoError(t, err)
	// (0,1): ratio ~0.129 flagged; (0,2): ratio ~1.39 above max.
	assert.Equal(t, [][]float64{{0, 1, 0}}, maskRows(res.Mask))

	opts.Threshold = SingleThreshold(0.01)
	res, err = newTestDetector(t, opts).Detect(context.Background(), src, paths)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1, 1}}, maskRows(res.Mask))
}

func TestDetect_ContextCancelled(t *testing.T) {
	t.Parallel()
	src, paths := oscillatingStream(2, 2, 0, 0, 1, 2, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDetector(t, Options{Threshold: SingleThreshold(0.01)}).Detect(ctx, src, paths)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, src.reads)
}

func TestNewDetector_Validation(t *testing.T) {
	_, err := NewDetector(Options{Radius: -1})
	assert.Error(t, err)
	_, err = NewDetector(Options{Threshold: RangeThreshold(1, 0.5)})
	assert.Error(t, err)
	_, err = NewDetector(Options{Shape: Shape{Rows: -1}})
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultClutterConfig()
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)

	hi := 1.5
	counting := "scalar"
	radius := 3
	cfg.ClutterThreshMax = &hi
	cfg.Counting = &counting
	cfg.Radius = &radius
	opts, err = OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, RangeThreshold(0.0002, 1.5), opts.Threshold)
	assert.Equal(t, Scalar, opts.Counting)
	assert.Equal(t, 3, opts.Radius)

	bad := "sometimes"
	cfg.Counting = &bad
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}

func TestOptionsFromConfig_CountingNamesAgree(t *testing.T) {
	for _, name := range []string{"per_cell", "PER_CELL", " scalar ", "percell", "elementwise"} {
		cfg := config.EmptyClutterConfig()
		cfg.Counting = &name
		_, err := OptionsFromConfig(cfg)
		assert.Equal(t, cfg.Validate() == nil, err == nil, "counting %q", name)
	}
}
