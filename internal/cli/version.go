package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/ipc"
	"github.com/msageha/overseer/internal/model"
)

// NewVersionCommand creates the 'overseer version' command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and daemon versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "overseer %s (protocol %d)\n", daemon.Version, ipc.ProtocolVersion)

			// Version works outside an overseer root; the daemon line is
			// only meaningful inside one.
			base := findOverseerRoot()
			if base == "" {
				return nil
			}
			cfg, err := loadConfig(base)
			if err != nil {
				return nil
			}
			roots := model.ResolveRoots(base, cfg)

			client := clientIfUp(roots)
			if client == nil {
				fmt.Fprintln(w, "daemon   not running")
				return nil
			}

			var out struct {
				Version         string `json:"version"`
				ProtocolVersion int    `json:"protocol_version"`
			}
			if err := callDaemon(client, "version", nil, &out); err != nil {
				fmt.Fprintln(w, "daemon   not responding")
				return nil
			}
			fmt.Fprintf(w, "daemon   %s (protocol %d)\n", out.Version, out.ProtocolVersion)
			return nil
		},
	}
}
