package pivotctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	pivotSimulator "github.com/LeonardoBeccarini/pivot_tracker/internal/pivot-simulator"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

type SimulateOptions struct {
	*RootOptions
	Out       string
	Device    string
	Lat, Lon  float64
	RadiusM   float64
	Hours     float64
	StartDeg  float64
	Clockwise bool
	Raw       float64
	Jitter    float64
	From      string
	Interval  time.Duration
	Steps     int
	Seed      int64
}

func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic pivot telemetry file",
		Long: `Write a synthetic JSON-lines telemetry file for one pivot.

The arm sweeps at the nominal speed of the given rotation duration, with one
record every interval starting at --from.

Examples:
  pivotctl simulate --device pivot-north --steps 150 --out day.jsonl
  pivotctl simulate --clockwise --interval 5m | pivotctl replay --db t.db --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, cmd)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Out, "out", "o", "-", "output file, - for stdout")
	f.StringVar(&opts.Device, "device", "pivot-north", "device name")
	f.Float64Var(&opts.Lat, "lat", -34.6037, "pivot center latitude")
	f.Float64Var(&opts.Lon, "lon", -58.3816, "pivot center longitude")
	f.Float64Var(&opts.RadiusM, "radius", 250, "GPS distance from center in meters")
	f.Float64Var(&opts.Hours, "rotation-hours", 24, "hours per full sweep")
	f.Float64Var(&opts.StartDeg, "start", 0, "initial bearing")
	f.BoolVar(&opts.Clockwise, "clockwise", false, "sweep clockwise")
	f.Float64Var(&opts.Raw, "raw-pressure", 40, "analog pressure reading")
	f.Float64Var(&opts.Jitter, "jitter", 0, "bearing noise in degrees")
	f.StringVar(&opts.From, "from", "", "first timestamp, RFC 3339 (default now)")
	f.DurationVar(&opts.Interval, "interval", 10*time.Minute, "time between records")
	f.IntVar(&opts.Steps, "steps", 144, "number of records")
	f.Int64Var(&opts.Seed, "seed", 1, "jitter seed")
	return cmd
}

func runSimulate(opts *SimulateOptions, cmd *cobra.Command) error {
	from := time.Now().UTC()
	if opts.From != "" {
		t, err := time.Parse(time.RFC3339, opts.From)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --from", err)
		}
		from = t
	}
	if opts.Steps <= 0 || opts.Interval <= 0 || opts.Hours <= 0 {
		return WrapExitError(ExitCommandError, "steps, interval and rotation-hours must be positive", nil)
	}

	var out io.Writer = cmd.OutOrStdout()
	if opts.Out != "-" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output", err)
		}
		defer f.Close()
		out = f
	}

	dir := entities.Counterclockwise
	if opts.Clockwise {
		dir = entities.Clockwise
	}
	gen := pivotSimulator.NewGenerator(pivotSimulator.PivotSpec{
		Name:          opts.Device,
		Center:        geo.Point{Lat: opts.Lat, Lon: opts.Lon},
		RadiusM:       opts.RadiusM,
		RotationHours: opts.Hours,
		StartDeg:      opts.StartDeg,
		Direction:     dir,
		RawPressure:   opts.Raw,
		JitterDeg:     opts.Jitter,
	}, opts.Seed)

	enc := json.NewEncoder(out)
	for i := 0; i < opts.Steps; i++ {
		if err := enc.Encode(gen.Next(from.Add(time.Duration(i) * opts.Interval))); err != nil {
			return WrapExitError(ExitFailure, "write record", err)
		}
	}
	if opts.Out != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d records to %s\n", opts.Steps, opts.Out)
	}
	return nil
}
