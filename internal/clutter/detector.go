package clutter

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/config"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/monitoring"
)

// FrameSource reads one sweep per input path. Read is a blocking call into
// the external radar reader.
type FrameSource interface {
	Read(path string) (Frame, error)
}

// Options configures a Detector.
type Options struct {
	// Shape every frame must have. The zero Shape accepts the shape of the
	// first readable frame.
	Shape     Shape
	Threshold Threshold
	Radius    int
	Counting  CountingPolicy
	// SkipUnreadable turns read failures into skipped frames instead of
	// aborting the run.
	SkipUnreadable bool
}

// DefaultOptions mirrors the defaults of the clutter configuration.
func DefaultOptions() Options {
	return Options{
		Shape:     DefaultShape,
		Threshold: SingleThreshold(0.0002),
		Radius:    1,
		Counting:  PerCell,
	}
}

// OptionsFromConfig builds Options from a loaded ClutterConfig. Setting
// clutter_thresh_max selects the range policy.
func OptionsFromConfig(cfg *config.ClutterConfig) (Options, error) {
	counting, err := ParseCountingPolicy(cfg.GetCounting())
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		Shape:          Shape{Rows: cfg.GetRows(), Cols: cfg.GetCols()},
		Threshold:      SingleThreshold(cfg.GetClutterThreshMin()),
		Radius:         cfg.GetRadius(),
		Counting:       counting,
		SkipUnreadable: cfg.GetSkipUnreadable(),
	}
	if hi, ok := cfg.GetClutterThreshMax(); ok {
		opts.Threshold = RangeThreshold(cfg.GetClutterThreshMin(), hi)
	}
	return opts, opts.Validate()
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.Radius < 0 {
		return fmt.Errorf("radius must be non-negative, got %d", o.Radius)
	}
	if o.Shape.Rows < 0 || o.Shape.Cols < 0 {
		return fmt.Errorf("invalid expected shape %s", o.Shape)
	}
	return o.Threshold.Validate()
}

// Skipped records an input that did not contribute to the statistics.
type Skipped struct {
	Path string
	Err  error
}

// Result is the outcome of one detection run.
type Result struct {
	// Mask holds 1 for clutter and 0 for clear gates, with Invalid attached.
	Mask MaskedGrid
	// Invalid is the validity layer of the statistics, unchanged by dilation.
	Invalid []bool
	// Candidates are the gates flagged before dilation.
	Candidates BoolGrid

	Mean   *mat.Dense
	StdDev *mat.Dense
	Ratio  *mat.Dense

	FramesUsed   int
	Skipped      []Skipped
	ClutterCells int
}

// Detector computes clutter masks. A Detector holds only configuration;
// every Detect call owns a fresh accumulator, so one Detector may serve
// sequential runs.
type Detector struct {
	opts Options
	logf func(format string, v ...interface{})
}

// NewDetector validates opts and returns a Detector.
func NewDetector(opts Options) (*Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Detector{opts: opts, logf: monitoring.Tagged("ClutterDetector")}, nil
}

// Options returns the detector configuration.
func (d *Detector) Options() Options { return d.opts }

// Detect streams every path through src, one frame at a time, and returns
// the dilated clutter mask. Frames of the wrong shape, and under PerCell
// counting frames with no valid gate, are skipped and reported in
// Result.Skipped. Read failures abort the run unless
// SkipUnreadable is set. If no frame could be used Detect returns
// ErrNoValidFrames. ctx is checked between frames.
func (d *Detector) Detect(ctx context.Context, src FrameSource, paths []string) (*Result, error) {
	moments := NewMoments(d.opts.Counting)
	var skipped []Skipped

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.ingest(moments, src, path); err != nil {
			var se *ShapeError
			switch {
			case errors.As(err, &se):
				d.logf("%s skipped %s", path, se.Got)
			case errors.Is(err, ErrRead) && d.opts.SkipUnreadable:
				d.logf("%s skipped: %v", path, err)
			case errors.Is(err, ErrShapeMismatch), errors.Is(err, ErrEmptyFrame):
				d.logf("%s skipped: %v", path, err)
			default:
				return nil, err
			}
			skipped = append(skipped, Skipped{Path: path, Err: err})
		}
	}

	if moments.Count() == 0 {
		return nil, fmt.Errorf("%w: %d inputs, %d skipped", ErrNoValidFrames, len(paths), len(skipped))
	}

	res, err := d.finish(moments)
	if err != nil {
		return nil, err
	}
	res.Skipped = skipped
	d.logf("frames used=%d skipped=%d clutter_cells=%d/%d policy=%s radius=%d",
		res.FramesUsed, len(skipped), res.ClutterCells, moments.Shape().Size(), d.opts.Threshold.Policy, d.opts.Radius)
	return res, nil
}

// ingest reads and folds a single frame. The frame goes out of scope on
// return, so at most one frame is alive at a time.
func (d *Detector) ingest(moments *Moments, src FrameSource, path string) error {
	frame, err := src.Read(path)
	if err != nil {
		return &ReadError{Path: path, Err: err}
	}
	want := d.opts.Shape
	if want.IsZero() {
		want = moments.Shape()
	}
	if got := frame.Shape(); !want.IsZero() && got != want {
		return &ShapeError{Path: path, Got: got, Want: want}
	}
	if err := moments.Push(frame); err != nil {
		var se *ShapeError
		if errors.As(err, &se) {
			se.Path = path
		}
		return err
	}
	return nil
}

// finish turns the accumulated statistics into the dilated mask.
func (d *Detector) finish(moments *Moments) (*Result, error) {
	mean := moments.Mean()
	stdev := moments.StandardDeviation()
	invalid := moments.Invalid()

	ratio, undefined := ClutterRatio(mean, stdev, invalid)
	candidates := Candidates(ratio, undefined, d.opts.Threshold)
	dilated, err := Dilate(candidates, d.opts.Radius)
	if err != nil {
		return nil, err
	}

	mask := NewMaskedGrid(dilated, invalid)
	return &Result{
		Mask:         mask,
		Invalid:      invalid,
		Candidates:   candidates,
		Mean:         mean,
		StdDev:       stdev,
		Ratio:        ratio,
		FramesUsed:   moments.Count(),
		ClutterCells: mask.CountValid(1),
	}, nil
}
