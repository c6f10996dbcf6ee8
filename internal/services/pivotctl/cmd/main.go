package main

import (
	"fmt"
	"os"

	"github.com/LeonardoBeccarini/pivot_tracker/internal/services/pivotctl"
)

func main() {
	if err := pivotctl.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(pivotctl.GetExitCode(err))
	}
}
