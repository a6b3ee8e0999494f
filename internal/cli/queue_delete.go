package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/queue"
)

func newQueueDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file...>",
		Short: "Remove envelopes permanently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			paths := resolveEnvelopeArgs(roots, args, allQueueStates)

			var result queue.DeleteResult
			if client := clientIfUp(roots); client != nil {
				if err := callDaemon(client, "queue_delete", daemon.PathsParams{Paths: paths}, &result); err != nil {
					return err
				}
			} else {
				result = queue.NewManager(roots, nil).Delete(paths)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d envelope(s)\n", result.Deleted)
			printPathErrors(cmd.OutOrStdout(), result.Failed)
			return nil
		},
	}
}
