package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/schedule"
)

// NewScheduleCommand creates the 'overseer schedule' command group
func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring template enqueues",
		Long: `Schedules enqueue a template at a fixed interval while the daemon runs.
They persist in the state root, so a daemon restart picks them up again.
Changes made while the daemon is down take effect at its next sync.`,
	}

	cmd.AddCommand(
		newScheduleAddCommand(),
		newScheduleListCommand(),
		newScheduleRemoveCommand(),
		newScheduleEnableCommand(true),
		newScheduleEnableCommand(false),
	)

	return cmd
}

func newScheduleAddCommand() *cobra.Command {
	var (
		templateName string
		category     string
		everyMinutes int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a recurring enqueue for a template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			var sched model.Schedule
			if client := clientIfUp(roots); client != nil {
				params := daemon.ScheduleAddParams{Name: templateName, Category: category, EveryMinutes: everyMinutes}
				if err := callDaemon(client, "schedule_add", params, &sched); err != nil {
					return err
				}
			} else {
				sched, err = schedule.NewStore(roots).Add(templateName, category, everyMinutes)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s/%s every %d minute(s)\n  %s\n",
				sched.Category, sched.Name, sched.EveryMinutes, sched.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&templateName, "template", "", "Template name to enqueue")
	cmd.Flags().StringVar(&category, "category", "", "Template category (default General)")
	cmd.Flags().IntVar(&everyMinutes, "every-minutes", 0, "Interval between enqueues in minutes")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("every-minutes")

	return cmd
}

func newScheduleListCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			schedules, err := schedule.NewStore(roots).List()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, map[string]any{"schedules": schedules})
			}

			if len(schedules) == 0 {
				fmt.Fprintln(w, "No schedules")
				return nil
			}

			fmt.Fprintf(w, "%-36s  %-24s  %-12s  %6s  %-8s  %s\n",
				"ID", "NAME", "CATEGORY", "EVERY", "ENABLED", "LAST-RUN")
			for _, s := range schedules {
				lastRun := "never"
				if s.LastRun != "" {
					if ts, err := time.Parse(time.RFC3339, s.LastRun); err == nil {
						lastRun = humanize.Time(ts)
					} else {
						lastRun = s.LastRun
					}
				}
				fmt.Fprintf(w, "%-36s  %-24s  %-12s  %5dm  %-8t  %s\n",
					s.ID, s.Name, s.Category, s.EveryMinutes, s.Enabled, lastRun)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newScheduleRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			if client := clientIfUp(roots); client != nil {
				if err := callDaemon(client, "schedule_remove", daemon.ScheduleIDParams{ID: args[0]}, nil); err != nil {
					return err
				}
			} else if err := schedule.NewStore(roots).Remove(args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed schedule %s\n", args[0])
			return nil
		},
	}
}

func newScheduleEnableCommand(enable bool) *cobra.Command {
	use, short, done := "enable <id>", "Enable a schedule", "Enabled"
	if !enable {
		use, short, done = "disable <id>", "Disable a schedule without removing it", "Disabled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			if client := clientIfUp(roots); client != nil {
				params := daemon.ScheduleEnableParams{ID: args[0], Enabled: enable}
				if err := callDaemon(client, "schedule_enable", params, nil); err != nil {
					return err
				}
			} else if err := schedule.NewStore(roots).Enable(args[0], enable); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s schedule %s\n", done, args[0])
			return nil
		},
	}
}
