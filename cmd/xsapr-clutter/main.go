// Command xsapr-clutter builds a clutter mask from a stream of X-SAPR PPI
// files and writes it as a radar file built from the first usable input.
//
// Usage:
//
//	xsapr-clutter [flags] FILE|DIR|GLOB...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/clutter"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/config"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/db"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/fsutil"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/radarfile"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/security"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/timeutil"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/version"
)

// clock stamps ledger runs and times detection; tests replace it.
var clock timeutil.Clock = timeutil.RealClock{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], fsutil.OSFileSystem{}, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("xsapr-clutter: %v", err)
	}
}

type invocation struct {
	cfg        *config.ClutterConfig
	inputs     []string
	listRuns   int
	showRun    string
	deleteRun  string
	compareRun string
	resetDB    bool
	version    bool
}

// parseArgs loads the optional config file and applies any flags that
// were set on top of it.
func parseArgs(args []string, stderr io.Writer) (*invocation, error) {
	fs := flag.NewFlagSet("xsapr-clutter", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to a JSON, TOML or YAML clutter config")
	threshMin := fs.Float64("thresh-min", 0.0002, "flag gates whose stdev/mean exceeds this value")
	threshMax := fs.Float64("thresh-max", 0, "upper bound on stdev/mean; selects the range policy when set")
	radius := fs.Int("radius", 1, "dilation radius in gates")
	rows := fs.Int("rows", 9200, "expected rays per sweep (0 with -cols 0 accepts the first frame's shape)")
	cols := fs.Int("cols", 501, "expected gates per ray")
	counting := fs.String("counting", "per_cell", "sample counting: per_cell or scalar")
	write := fs.Bool("write", true, "write the clutter radar file")
	out := fs.String("out", "xsapr_clutter.nc", "output radar file")
	field := fs.String("field", "xsapr_clutter", "name of the output clutter field")
	input := fs.String("input-field", "reflectivity", "input field the statistics are computed on")
	skip := fs.Bool("skip-unreadable", false, "skip files that cannot be read instead of aborting")
	dbPath := fs.String("db", "", "record the run in this SQLite ledger")
	listRuns := fs.Int("list-runs", 0, "print the N most recent runs from -db and exit")
	showRun := fs.String("show-run", "", "print a recorded run, its inputs and mask summary from -db and exit")
	deleteRun := fs.String("delete-run", "", "delete a recorded run from -db and exit")
	compareRun := fs.String("compare-run", "", "compare the new mask with a run recorded in -db")
	resetDB := fs.Bool("reset-db", false, "roll the -db schema back, migrate it up again (dropping every run) and exit")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.EmptyClutterConfig()
	if *configPath != "" {
		loaded, err := config.LoadClutterConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "thresh-min":
			cfg.ClutterThreshMin = threshMin
		case "thresh-max":
			cfg.ClutterThreshMax = threshMax
		case "radius":
			cfg.Radius = radius
		case "rows":
			cfg.Rows = rows
		case "cols":
			cfg.Cols = cols
		case "counting":
			cfg.Counting = counting
		case "write":
			cfg.WriteRadar = write
		case "out":
			cfg.OutFile = out
		case "field":
			cfg.FieldName = field
		case "input-field":
			cfg.ReflectivityField = input
		case "skip-unreadable":
			cfg.SkipUnreadable = skip
		case "db":
			cfg.DBPath = dbPath
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for _, name := range []string{cfg.GetFieldName(), cfg.GetReflectivityField()} {
		if err := security.ValidateVariableName(name); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	inv := &invocation{
		cfg:        cfg,
		inputs:     fs.Args(),
		listRuns:   *listRuns,
		showRun:    *showRun,
		deleteRun:  *deleteRun,
		compareRun: *compareRun,
		resetDB:    *resetDB,
		version:    *showVersion,
	}
	if cfg.GetDBPath() == "" {
		switch {
		case inv.listRuns > 0:
			return nil, fmt.Errorf("-list-runs needs -db")
		case inv.showRun != "":
			return nil, fmt.Errorf("-show-run needs -db")
		case inv.deleteRun != "":
			return nil, fmt.Errorf("-delete-run needs -db")
		case inv.compareRun != "":
			return nil, fmt.Errorf("-compare-run needs -db")
		case inv.resetDB:
			return nil, fmt.Errorf("-reset-db needs -db")
		}
	}
	return inv, nil
}

func run(ctx context.Context, args []string, fsys fsutil.FileSystem, stdout io.Writer) error {
	inv, err := parseArgs(args, os.Stderr)
	if err != nil {
		return err
	}
	cfg := inv.cfg

	if inv.version {
		fmt.Fprintf(stdout, "xsapr-clutter %s\n", version.String())
		return nil
	}
	switch {
	case inv.listRuns > 0:
		return withLedger(cfg.GetDBPath(), func(l *db.DB) error { return listRuns(l, inv.listRuns, stdout) })
	case inv.showRun != "":
		return withLedger(cfg.GetDBPath(), func(l *db.DB) error { return showRun(l, inv.showRun, stdout) })
	case inv.deleteRun != "":
		return withLedger(cfg.GetDBPath(), func(l *db.DB) error {
			if err := l.DeleteRun(inv.deleteRun); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "deleted run %s\n", inv.deleteRun)
			return nil
		})
	case inv.resetDB:
		return withLedger(cfg.GetDBPath(), func(l *db.DB) error { return resetLedger(l, stdout) })
	}

	paths, err := fsutil.ExpandInputs(fsys, inv.inputs)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no input files")
	}
	if cfg.GetWriteRadar() {
		if err := security.ValidateOutputPath(cfg.GetOutFile(), paths); err != nil {
			return err
		}
	}

	opts, err := clutter.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	det, err := clutter.NewDetector(opts)
	if err != nil {
		return err
	}

	start := clock.Now()
	res, err := det.Detect(ctx, radarfile.NewSource(fsys, cfg.GetReflectivityField()), paths)
	if err != nil {
		return err
	}

	ref := firstUsed(paths, res.Skipped)
	loader := radarfile.NewLoader(fsys, cfg.GetReflectivityField())
	if _, err := clutter.BuildClutterRadar(loader, ref, cfg.GetFieldName(), res.Mask, cfg.GetOutFile(), cfg.GetWriteRadar()); err != nil {
		return err
	}

	shape := res.Mask.Shape()
	fmt.Fprintf(stdout, "clutter gates: %d of %d (%d frames used, %d skipped) in %s\n",
		res.ClutterCells, shape.Size(), res.FramesUsed, len(res.Skipped), clock.Since(start).Round(time.Millisecond))
	for _, s := range res.Skipped {
		fmt.Fprintf(stdout, "skipped %s: %v\n", s.Path, s.Err)
	}
	if cfg.GetWriteRadar() {
		fmt.Fprintf(stdout, "wrote %s\n", cfg.GetOutFile())
	}

	path := cfg.GetDBPath()
	if path == "" {
		return nil
	}
	return withLedger(path, func(ledger *db.DB) error {
		if inv.compareRun != "" {
			if err := compareRun(ledger, inv.compareRun, res.Mask, stdout); err != nil {
				return err
			}
		}
		outFile := ""
		if cfg.GetWriteRadar() {
			outFile = cfg.GetOutFile()
		}
		r := db.NewRun(res, opts, paths, outFile)
		if err := ledger.RecordRun(r); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		fmt.Fprintf(stdout, "recorded run %s\n", r.RunID)
		return nil
	})
}

// withLedger opens the run ledger at path for the duration of fn.
func withLedger(path string, fn func(*db.DB) error) error {
	ledger, err := db.Open(path)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	defer ledger.Close()
	ledger.SetClock(clock)
	return fn(ledger)
}

// firstUsed returns the first path that contributed a frame, which becomes
// the output template.
func firstUsed(paths []string, skipped []clutter.Skipped) string {
	bad := make(map[string]bool, len(skipped))
	for _, s := range skipped {
		bad[s.Path] = true
	}
	for _, p := range paths {
		if !bad[p] {
			return p
		}
	}
	return paths[0]
}

func formatRun(r *db.Run) string {
	created := time.Unix(0, r.CreatedAtNs).UTC().Format(time.RFC3339)
	policy := fmt.Sprintf("%s min=%g", r.ThresholdPolicy, r.ThreshMin)
	if r.ThreshMax != nil {
		policy += fmt.Sprintf(" max=%g", *r.ThreshMax)
	}
	return fmt.Sprintf("%s  %s  %dx%d  %s radius=%d  frames=%d skipped=%d  clutter=%d  %s",
		r.RunID, created, r.Rows, r.Cols, policy, r.Radius,
		r.FramesUsed, r.FramesSkipped, r.ClutterCells, r.OutFile)
}

func listRuns(ledger *db.DB, n int, stdout io.Writer) error {
	runs, err := ledger.ListRuns(n)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintln(stdout, formatRun(r))
	}
	return nil
}

func showRun(ledger *db.DB, id string, stdout io.Writer) error {
	r, err := ledger.GetRun(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, formatRun(r))
	fmt.Fprintf(stdout, "counting: %s\n", r.Counting)
	for _, in := range r.Inputs {
		if in.Skipped {
			fmt.Fprintf(stdout, "  skipped %s: %s\n", in.Path, in.SkipReason)
			continue
		}
		fmt.Fprintf(stdout, "  used    %s\n", in.Path)
	}
	if r.Mask != nil {
		shape := r.Mask.Shape()
		clearCells := r.Mask.CountValid(0)
		flagged := r.Mask.CountValid(1)
		fmt.Fprintf(stdout, "mask: %d clutter, %d clear, %d invalid\n",
			flagged, clearCells, shape.Size()-flagged-clearCells)
	}
	return nil
}

// compareRun reports how mask differs from the mask stored for id.
func compareRun(ledger *db.DB, id string, mask clutter.MaskedGrid, stdout io.Writer) error {
	old, err := ledger.LoadMask(id)
	if err != nil {
		return fmt.Errorf("compare run: %w", err)
	}
	d, err := mask.Compare(old)
	if err != nil {
		return fmt.Errorf("compare run %s: %w", id, err)
	}
	fmt.Fprintf(stdout, "compared with run %s: %d gates changed (+%d -%d), %d unchanged, %d invalid\n",
		id, d.Changed(), d.Added, d.Removed, d.Unchanged, d.Incomparable)
	return nil
}

// resetLedger drops every recorded run by migrating the schema down and up.
func resetLedger(ledger *db.DB, stdout io.Writer) error {
	for {
		version, _, err := ledger.MigrateVersion()
		if err != nil {
			return fmt.Errorf("reset run ledger: %w", err)
		}
		if version == 0 {
			break
		}
		if err := ledger.MigrateDown(); err != nil {
			return fmt.Errorf("reset run ledger: %w", err)
		}
	}
	if err := ledger.MigrateUp(); err != nil {
		return fmt.Errorf("reset run ledger: %w", err)
	}
	version, dirty, err := ledger.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "ledger reset, schema version %d (dirty=%v)\n", version, dirty)
	return nil
}
