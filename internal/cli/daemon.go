package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/daemon"
)

// NewDaemonCommand creates the 'overseer daemon' command
func NewDaemonCommand() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the overseer daemon",
		Long: `Run the background daemon: queue directory watches, worker log tailing,
breaker and heartbeat polling, schedule firing, and the IPC socket the
other commands use. One instance per root, enforced with a file lock.

The process stays attached and logs to .overseer/overseer.log; with
--foreground the log is mirrored to stderr. Stop it with SIGINT or
SIGTERM (a second signal forces immediate exit).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, cfg, err := resolveRoot()
			if err != nil {
				return err
			}

			var d *daemon.Daemon
			if foreground {
				d, err = daemon.NewForeground(roots, cfg)
			} else {
				d, err = daemon.New(roots, cfg)
			}
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			return d.Run()
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Mirror the daemon log to stderr")

	return cmd
}
