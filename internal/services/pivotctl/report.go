package pivotctl

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
)

type ReportOptions struct {
	*RootOptions
	Database string
	Device   string
}

type RotationReport struct {
	entities.Rotation
	Visits []entities.SectorVisit `json:"visits"`
}

type DeviceReport struct {
	Device    entities.Device  `json:"device"`
	Rotations []RotationReport `json:"rotations"`
}

func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the rotations and sector visits of a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Device, "device", "", "device name (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	st, err := openStore(ctx, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	dev, ok, err := st.ActiveDevice(ctx, opts.Device)
	if err != nil {
		return WrapExitError(ExitFailure, "lookup device", err)
	}
	if !ok {
		return WrapExitError(ExitCommandError, fmt.Sprintf("device %q not found", opts.Device), nil)
	}

	rots, err := st.Rotations(ctx, dev.ID)
	if err != nil {
		return WrapExitError(ExitFailure, "list rotations", err)
	}
	rep := DeviceReport{Device: dev, Rotations: make([]RotationReport, 0, len(rots))}
	for _, r := range rots {
		visits, err := st.RotationVisits(ctx, r.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "list visits", err)
		}
		rep.Rotations = append(rep.Rotations, RotationReport{Rotation: r, Visits: visits})
	}

	if opts.Format == "json" {
		return outputJSON(cmd, rep)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "device %s (%s)\n", dev.Name, dev.ID)
	fmt.Fprintln(w, "ROTATION\tSTATUS\tPROGRESS\tDIRECTION\tVISITS\tVOLUME_L\tDEPTH_MM")
	for _, r := range rep.Rotations {
		status := "open"
		if r.Completed {
			status = "completed"
		}
		fmt.Fprintf(w, "%d\t%s\t%.1f%%\t%s\t%d\t%.0f\t%.2f\n",
			r.Seq, status, r.ProgressPct, r.Direction, len(r.Visits), r.Totals.VolumeL, r.Totals.DepthMm)
	}
	return w.Flush()
}
