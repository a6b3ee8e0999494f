package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/workerstate"
)

// NewWorkerCommand creates the 'overseer worker' command group
func NewWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Signal and observe the headless worker",
	}

	cmd.AddCommand(
		newWorkerStopCommand(),
		newWorkerResumeCommand(),
		newWorkerRunningCommand(),
	)

	return cmd
}

func newWorkerStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Ask the worker to stop after its current task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, cfg, err := resolveRoot()
			if err != nil {
				return err
			}

			if client := clientIfUp(roots); client != nil {
				if err := callDaemon(client, "worker_stop", nil, nil); err != nil {
					return err
				}
			} else if err := stateReader(roots, cfg).RequestStop(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Stop requested; the worker finishes its current task first")
			return nil
		},
	}
}

func newWorkerResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Clear a pending stop request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, cfg, err := resolveRoot()
			if err != nil {
				return err
			}

			if client := clientIfUp(roots); client != nil {
				if err := callDaemon(client, "worker_clear_stop", nil, nil); err != nil {
					return err
				}
			} else if err := stateReader(roots, cfg).ClearStop(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Stop request cleared")
			return nil
		},
	}
}

func newWorkerRunningCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "running",
		Short: "Show tasks the worker is executing now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, cfg, err := resolveRoot()
			if err != nil {
				return err
			}

			tasks := stateReader(roots, cfg).RunningTasks()

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, map[string]any{"tasks": tasks})
			}

			if len(tasks) == 0 {
				fmt.Fprintln(w, "No running tasks")
				return nil
			}

			fmt.Fprintf(w, "%-28s  %-10s  %-8s  %s\n", "ID", "TOOL", "PRIORITY", "STARTED")
			for _, t := range tasks {
				started := t.Started
				if ts, err := time.Parse(time.RFC3339, t.Started); err == nil {
					started = humanize.Time(ts)
				}
				fmt.Fprintf(w, "%-28s  %-10s  %-8s  %s\n", t.ID, t.Tool, t.Priority, started)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func stateReader(roots model.Roots, cfg model.Config) *workerstate.Reader {
	return workerstate.NewReader(roots, time.Duration(cfg.Worker.HeartbeatStaleSec)*time.Second)
}
