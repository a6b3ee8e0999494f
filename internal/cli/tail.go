package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/tail"
)

// NewTailCommand creates the 'overseer tail' command
func NewTailCommand() *cobra.Command {
	var (
		follow   bool
		tool     string
		grepText string
		noColor  bool
		lines    int
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the end of the worker log",
		Long: `Tail prints the most recent worker log lines, colorized by severity.
With --follow it keeps polling for appended lines until interrupted,
surviving log rotation. --tool and --grep narrow the output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, cfg, err := resolveRoot()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if noColor {
				color.NoColor = true
			} else {
				setupColor(w)
			}

			tailer := tail.New(roots.WorkerLog())

			batch := filterLines(tailer.Poll(), tool, grepText)
			if len(batch) > lines {
				batch = batch[len(batch)-lines:]
			}
			for _, line := range batch {
				printLogLine(w, line)
			}

			if !follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			interval := time.Duration(cfg.Daemon.PollIntervalMs) * time.Millisecond
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					for _, line := range filterLines(tailer.Poll(), tool, grepText) {
						printLogLine(w, line)
					}
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new lines")
	cmd.Flags().StringVar(&tool, "tool", "", "Only show lines mentioning this tool")
	cmd.Flags().StringVar(&grepText, "grep", "", "Only show lines containing this text")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable severity colors")
	cmd.Flags().IntVar(&lines, "lines", 100, "Initial number of lines to show")

	return cmd
}

func filterLines(batch []string, tool, grepText string) []string {
	if tool == "" && grepText == "" {
		return batch
	}
	var kept []string
	for _, line := range batch {
		if tail.MatchesTool(line, tool) && tail.MatchesText(line, grepText) {
			kept = append(kept, line)
		}
	}
	return kept
}

func printLogLine(w io.Writer, line string) {
	switch tail.Classify(line) {
	case tail.SeverityError:
		color.New(color.FgRed).Fprintln(w, line)
	case tail.SeverityWarn:
		color.New(color.FgYellow).Fprintln(w, line)
	case tail.SeverityOK:
		color.New(color.FgGreen).Fprintln(w, line)
	default:
		fmt.Fprintln(w, line)
	}
}
