// Package clutter owns the clutter-mask computation for X-SAPR reflectivity sweeps.
//
// Responsibilities: streaming per-gate statistics (Moments), the stdev/mean
// clutter ratio, threshold policies, disk dilation of candidate gates, and the
// Detector that drives a FrameSource through all of them.
// Key types: Frame, Moments, Threshold, BoolGrid, MaskedGrid, Detector, Result.
//
// Dependency rule: this package never opens radar files itself. Reading and
// writing sweeps goes through the FrameSource and TemplateLoader interfaces,
// implemented by internal/radarfile.
package clutter
