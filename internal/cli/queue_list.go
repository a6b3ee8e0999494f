package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/queue"
)

func newQueueListCommand() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list <state>",
		Short: "List envelopes in inbox, failed or quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := model.ParseQueueState(args[0])
			if err != nil {
				return err
			}
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			entries, err := queue.NewManager(roots, nil).List(state, limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, map[string]any{"state": state, "entries": entries})
			}

			if len(entries) == 0 {
				fmt.Fprintf(w, "No envelopes in %s\n", state)
				return nil
			}

			fmt.Fprintf(w, "%-44s  %8s  %s\n", "NAME", "SIZE", "AGE")
			for _, e := range entries {
				fmt.Fprintf(w, "%-44s  %8s  %s\n",
					e.Name, humanize.Bytes(uint64(e.Size)), humanize.Time(e.ModTime))
			}
			fmt.Fprintf(w, "\n%d envelope(s) in %s\n", len(entries), state)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap the number of entries (0 = all)")

	return cmd
}
