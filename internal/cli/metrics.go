package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/ledger"
	"github.com/msageha/overseer/internal/model"
)

// NewMetricsCommand creates the 'overseer metrics' command
func NewMetricsCommand() *cobra.Command {
	var (
		jsonOutput bool
		tailLines  int
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Summarize task outcomes from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, cfg, err := resolveRoot()
			if err != nil {
				return err
			}

			tail := tailLines
			if tail <= 0 {
				tail = cfg.Metrics.LedgerTailLines
			}

			summary, err := ledger.NewAggregator(roots.Ledger()).Summarize(tail)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, summary)
			}

			setupColor(w)
			printMetrics(w, summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&tailLines, "tail", 0, "Aggregate only the last N ledger lines (0 = configured default)")

	cmd.AddCommand(newMetricsExportCommand())

	return cmd
}

func printMetrics(w io.Writer, s model.MetricsSummary) {
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Fprintf(w, "Task Metrics\n")
	fmt.Fprintf(w, "  Tasks:        %d\n", s.Total)
	fmt.Fprintf(w, "  Succeeded:    %d\n", s.Succeeded)
	fmt.Fprintf(w, "  Success rate: ")
	rateColor(s.SuccessRate).Fprintf(w, "%.1f%%", s.SuccessRate)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Avg duration: %.1f seconds\n", s.AvgDurationSec)

	if len(s.Tools) > 0 {
		cyan.Fprintf(w, "\nBy Tool\n")
		fmt.Fprintf(w, "  %-12s %7s %10s %9s\n", "TOOL", "TASKS", "SUCCEEDED", "RATE")
		for _, t := range s.Tools {
			fmt.Fprintf(w, "  %-12s %7d %10d ", t.Tool, t.Total, t.Succeeded)
			rateColor(t.SuccessRate).Fprintf(w, "%8.1f%%", t.SuccessRate)
			fmt.Fprintf(w, "\n")
		}
	}

	cyan.Fprintf(w, "\nDuration Histogram\n")
	maxCount := 0
	for _, b := range s.Histogram {
		if b.Count > maxCount {
			maxCount = b.Count
		}
	}
	for _, b := range s.Histogram {
		bar := ""
		if maxCount > 0 {
			bar = strings.Repeat("#", b.Count*40/maxCount)
		}
		fmt.Fprintf(w, "  %-8s %5d  %s\n", b.Label, b.Count, bar)
	}
}

func rateColor(rate float64) *color.Color {
	if rate >= 70 {
		return color.New(color.FgGreen)
	}
	if rate >= 40 {
		return color.New(color.FgYellow)
	}
	return color.New(color.FgRed)
}
