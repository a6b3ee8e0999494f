package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/setup"
)

// NewInitCommand creates the 'overseer init' command
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold an overseer root",
		Long: `Create the .overseer/ control directory with a default config.yaml plus
the task, log and state roots the worker contract expects. The target
directory defaults to the current one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	if err := setup.Run(dir); err != nil {
		return err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized overseer root at %s\n", abs)
	return nil
}
