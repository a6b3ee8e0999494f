package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/ledger"
)

func newMetricsExportCommand() *cobra.Command {
	var (
		outPath   string
		tailLines int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write per-tool metrics as CSV",
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

			absPath, err := filepath.Abs(outPath)
			if err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}

			f, err := os.Create(absPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			if err := ledger.NewAggregator(roots.Ledger()).ExportCSV(f, tail); err != nil {
				f.Close()
				return fmt.Errorf("export failed: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported metrics to: %s\n", absPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output CSV file path")
	cmd.Flags().IntVar(&tailLines, "tail", 0, "Aggregate only the last N ledger lines (0 = configured default)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
