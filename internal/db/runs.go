package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/clutter"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("clutter run not found")

// RunInput is one input file of a run and whether it was used.
type RunInput struct {
	Path       string `json:"path"`
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// Run is a recorded clutter detection.
type Run struct {
	RunID           string     `json:"run_id"`
	CreatedAtNs     int64      `json:"created_at_ns"`
	Rows            int        `json:"rows"`
	Cols            int        `json:"cols"`
	Counting        string     `json:"counting"`
	ThresholdPolicy string     `json:"threshold_policy"`
	ThreshMin       float64    `json:"thresh_min"`
	ThreshMax       *float64   `json:"thresh_max,omitempty"`
	Radius          int        `json:"radius"`
	FramesUsed      int        `json:"frames_used"`
	FramesSkipped   int        `json:"frames_skipped"`
	ClutterCells    int        `json:"clutter_cells"`
	OutFile         string     `json:"out_file,omitempty"`
	Inputs          []RunInput `json:"inputs,omitempty"`

	// Mask is loaded only by GetRun and LoadMask.
	Mask *clutter.MaskedGrid `json:"-"`
}

// NewRun describes a finished detection for recording. paths are the
// inputs in the order they were streamed.
func NewRun(res *clutter.Result, opts clutter.Options, paths []string, outFile string) *Run {
	shape := res.Mask.Shape()
	run := &Run{
		Rows:            shape.Rows,
		Cols:            shape.Cols,
		Counting:        opts.Counting.String(),
		ThresholdPolicy: opts.Threshold.Policy.String(),
		ThreshMin:       opts.Threshold.Min,
		Radius:          opts.Radius,
		FramesUsed:      res.FramesUsed,
		FramesSkipped:   len(res.Skipped),
		ClutterCells:    res.ClutterCells,
		OutFile:         outFile,
		Mask:            &res.Mask,
	}
	if opts.Threshold.Policy == clutter.Range {
		hi := opts.Threshold.Max
		run.ThreshMax = &hi
	}
	reasons := make(map[string]string, len(res.Skipped))
	for _, s := range res.Skipped {
		reasons[s.Path] = s.Err.Error()
	}
	for _, p := range paths {
		reason, skipped := reasons[p]
		run.Inputs = append(run.Inputs, RunInput{Path: p, Skipped: skipped, SkipReason: reason})
	}
	return run
}

// RecordRun stores run and its mask in a single transaction. If
// run.RunID is empty, a new UUID is generated.
func (db *DB) RecordRun(run *Run) error {
	if run.Mask == nil {
		return fmt.Errorf("run has no mask")
	}
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = db.clock.Now().UnixNano()
	}
	blob, err := EncodeMask(*run.Mask)
	if err != nil {
		return fmt.Errorf("encode mask: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO clutter_runs (
			run_id, created_at_ns, n_rays, n_gates, counting, threshold_policy,
			thresh_min, thresh_max, radius, frames_used, frames_skipped,
			clutter_cells, out_file, mask_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedAtNs, run.Rows, run.Cols, run.Counting, run.ThresholdPolicy,
		run.ThreshMin, nullFloat64(run.ThreshMax), run.Radius, run.FramesUsed, run.FramesSkipped,
		run.ClutterCells, nullString(run.OutFile), blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, in := range run.Inputs {
		_, err = tx.Exec(`
			INSERT INTO clutter_run_inputs (run_id, position, path, skipped, skip_reason)
			VALUES (?, ?, ?, ?, ?)`,
			run.RunID, i, in.Path, in.Skipped, nullString(in.SkipReason),
		)
		if err != nil {
			return fmt.Errorf("failed to insert input %s: %w", in.Path, err)
		}
	}
	return tx.Commit()
}

const runColumns = `run_id, created_at_ns, n_rays, n_gates, counting, threshold_policy,
	thresh_min, thresh_max, radius, frames_used, frames_skipped, clutter_cells, out_file`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var threshMax sql.NullFloat64
	var outFile sql.NullString
	err := row.Scan(
		&run.RunID, &run.CreatedAtNs, &run.Rows, &run.Cols, &run.Counting, &run.ThresholdPolicy,
		&run.ThreshMin, &threshMax, &run.Radius, &run.FramesUsed, &run.FramesSkipped,
		&run.ClutterCells, &outFile,
	)
	if err != nil {
		return nil, err
	}
	if threshMax.Valid {
		v := threshMax.Float64
		run.ThreshMax = &v
	}
	run.OutFile = outFile.String
	return &run, nil
}

// GetRun loads a run with its inputs and mask.
func (db *DB) GetRun(runID string) (*Run, error) {
	run, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM clutter_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := db.Query(`
		SELECT path, skipped, skip_reason FROM clutter_run_inputs
		WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run inputs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var in RunInput
		var reason sql.NullString
		if err := rows.Scan(&in.Path, &in.Skipped, &reason); err != nil {
			return nil, err
		}
		in.SkipReason = reason.String
		run.Inputs = append(run.Inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mask, err := db.LoadMask(runID)
	if err != nil {
		return nil, err
	}
	run.Mask = &mask
	return run, nil
}

// ListRuns returns the most recent runs first, without inputs or masks.
// A limit of zero or less returns every run.
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM clutter_runs ORDER BY created_at_ns DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LoadMask decodes the stored mask of a run.
func (db *DB) LoadMask(runID string) (clutter.MaskedGrid, error) {
	var blob []byte
	err := db.QueryRow(`SELECT mask_blob FROM clutter_runs WHERE run_id = ?`, runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return clutter.MaskedGrid{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return clutter.MaskedGrid{}, fmt.Errorf("failed to load mask: %w", err)
	}
	return DecodeMask(blob)
}

// DeleteRun removes a run and its inputs.
func (db *DB) DeleteRun(runID string) error {
	res, err := db.Exec(`DELETE FROM clutter_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func nullFloat64(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
