package pivotctl

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/model/entities"
	"github.com/LeonardoBeccarini/pivot_tracker/internal/services/tracker"
	"github.com/LeonardoBeccarini/pivot_tracker/pkg/geo"
)

// Fleet is the YAML layout accepted by seed.
type Fleet struct {
	Devices []FleetDevice `yaml:"devices"`
}

type FleetDevice struct {
	ID            string        `yaml:"id"`
	Name          string        `yaml:"name"`
	CenterLat     *float64      `yaml:"center_lat"`
	CenterLon     *float64      `yaml:"center_lon"`
	RadiusM       float64       `yaml:"radius_m"`
	FlowLpm       float64       `yaml:"flow_lpm"`
	RotationHours float64       `yaml:"rotation_hours"`
	Inactive      bool          `yaml:"inactive"`
	Sectors       []FleetSector `yaml:"sectors"`
}

type FleetSector struct {
	ID           string  `yaml:"id"`
	LotID        string  `yaml:"lot_id"`
	Name         string  `yaml:"name"`
	StartAngle   float64 `yaml:"start_angle"`
	EndAngle     float64 `yaml:"end_angle"`
	InnerRadiusM float64 `yaml:"inner_radius_m"`
	OuterRadiusM float64 `yaml:"outer_radius_m"`
	Coefficient  float64 `yaml:"coefficient"`
	Priority     int     `yaml:"priority"`
	Color        string  `yaml:"color"`
	Inactive     bool    `yaml:"inactive"`
}

type SeedOptions struct {
	*RootOptions
	Database string
	File     string
}

type SeedResult struct {
	Devices int      `json:"devices"`
	Sectors int      `json:"sectors"`
	Skipped []string `json:"skipped,omitempty"`
}

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register devices and sectors from a YAML fleet file",
		Long: `Register devices and sectors from a YAML fleet file.

Devices and sectors are upserted by id. A sector with a degenerate wedge is
reported and skipped.

Examples:
  pivotctl seed --db ./tracker.db --file fleet.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "fleet YAML file (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func LoadFleet(path string) (Fleet, error) {
	var f Fleet
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read fleet: %w", err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("parse fleet %s: %w", path, err)
	}
	for i, d := range f.Devices {
		if d.ID == "" || d.Name == "" {
			return f, fmt.Errorf("device #%d: id and name are required", i+1)
		}
	}
	return f, nil
}

func runSeed(opts *SeedOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	fleet, err := LoadFleet(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid fleet file", err)
	}

	st, err := openStore(ctx, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var res SeedResult
	err = st.Atomic(ctx, func(tx tracker.Store) error {
		w := tx.(fleetWriter)
		res = SeedResult{}
		for _, fd := range fleet.Devices {
			if err := w.UpsertDevice(ctx, fd.entity()); err != nil {
				return err
			}
			res.Devices++
			for pos, fs := range fd.Sectors {
				sc := fs.entity(fd.ID, pos)
				if err := sc.Wedge().Validate(); err != nil {
					res.Skipped = append(res.Skipped, fmt.Sprintf("%s: %v", sc.ID, err))
					continue
				}
				if err := w.UpsertSector(ctx, sc); err != nil {
					return err
				}
				res.Sectors++
			}
		}
		return nil
	})
	if err != nil {
		return WrapExitError(ExitFailure, "seed fleet", err)
	}

	if opts.Format == "json" {
		return outputJSON(cmd, res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d devices, %d sectors\n", res.Devices, res.Sectors)
	for _, s := range res.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s\n", s)
	}
	return nil
}

// fleetWriter is the registration side of the sqlite store.
type fleetWriter interface {
	UpsertDevice(ctx context.Context, d entities.Device) error
	UpsertSector(ctx context.Context, sc entities.Sector) error
}

func (d FleetDevice) entity() entities.Device {
	return entities.Device{
		ID:            d.ID,
		Name:          d.Name,
		CenterLat:     d.CenterLat,
		CenterLon:     d.CenterLon,
		RadiusM:       d.RadiusM,
		FlowLpm:       d.FlowLpm,
		RotationHours: d.RotationHours,
		Active:        !d.Inactive,
	}
}

func (s FleetSector) entity(deviceID string, pos int) entities.Sector {
	coef := s.Coefficient
	if coef == 0 {
		coef = 1
	}
	return entities.Sector{
		ID:           s.ID,
		DeviceID:     deviceID,
		LotID:        s.LotID,
		Name:         s.Name,
		StartAngle:   geo.Normalize(s.StartAngle),
		EndAngle:     geo.Normalize(s.EndAngle),
		InnerRadiusM: s.InnerRadiusM,
		OuterRadiusM: s.OuterRadiusM,
		Active:       !s.Inactive,
		Coefficient:  coef,
		Priority:     s.Priority,
		Color:        s.Color,
		Position:     pos,
	}
}
