package cli

import (
	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/status"
)

// NewStatusCommand creates the 'overseer status' command
func NewStatusCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker, queue and breaker status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, cfg, err := resolveRoot()
			if err != nil {
				return err
			}

			s := status.Collect(roots, cfg)
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), s)
			}
			status.Print(cmd.OutOrStdout(), s)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
