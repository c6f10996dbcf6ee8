package pivotctl

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type MigrateOptions struct {
	*RootOptions
	Database string
}

type MigrateResult struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:       "migrate up|down|version",
		Short:     "Apply, revert or inspect the schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command, action string) error {
	// Open always migrates up.
	st, err := openStore(context.Background(), opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if action == "down" {
		if err := st.MigrateDown(); err != nil {
			return WrapExitError(ExitFailure, "migrate down", err)
		}
	}

	v, dirty, err := st.MigrateVersion()
	if err != nil {
		return WrapExitError(ExitFailure, "read schema version", err)
	}
	res := MigrateResult{Version: v, Dirty: dirty}
	if opts.Format == "json" {
		return outputJSON(cmd, res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", res.Version, res.Dirty)
	return nil
}
