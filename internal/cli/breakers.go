package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/breaker"
	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/model"
)

// NewBreakersCommand creates the 'overseer breakers' command group
func NewBreakersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breakers",
		Short: "Inspect and reset the worker's circuit breakers",
	}

	cmd.AddCommand(
		newBreakersListCommand(),
		newBreakersForceCloseCommand(),
	)

	return cmd
}

func newBreakersListCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show per-tool breaker state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			breakers := breaker.NewStore(roots.Breakers()).Read()

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, map[string]any{"breakers": breakers})
			}

			if len(breakers) == 0 {
				fmt.Fprintln(w, "No breakers recorded")
				return nil
			}

			tools := make([]string, 0, len(breakers))
			for tool := range breakers {
				tools = append(tools, tool)
			}
			sort.Strings(tools)

			setupColor(w)
			fmt.Fprintf(w, "%-12s  %-8s  %5s  %s\n", "TOOL", "STATE", "FAILS", "UNTIL")
			for _, tool := range tools {
				entry := breakers[tool]
				until := entry.Until
				if until == "" {
					until = "-"
				}
				fmt.Fprintf(w, "%-12s  %-8s  %5d  %s\n",
					tool, breakerStateColor(entry.State).Sprint(entry.State), entry.Fails, until)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func breakerStateColor(state string) *color.Color {
	switch state {
	case model.BreakerOpen:
		return color.New(color.FgRed)
	case model.BreakerClosed:
		return color.New(color.FgGreen)
	}
	return color.New(color.FgYellow)
}

func newBreakersForceCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "force-close <tool...>",
		Short: "Reset breakers so the worker resumes the named tools",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			var closed int
			if client := clientIfUp(roots); client != nil {
				var out struct {
					Closed int `json:"closed"`
				}
				if err := callDaemon(client, "breaker_force_close", daemon.ToolsParams{Tools: args}, &out); err != nil {
					return err
				}
				closed = out.Closed
			} else {
				closed, err = breaker.NewStore(roots.Breakers()).ForceClose(args)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Closed %d breaker(s)\n", closed)
			return nil
		},
	}
}
