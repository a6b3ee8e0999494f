package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/queue"
)

func newQueueEditRetryCommand() *cobra.Command {
	var contentFile string

	cmd := &cobra.Command{
		Use:   "edit-retry <file>",
		Short: "Requeue an envelope with corrected content",
		Long: `Edit-retry writes a corrected copy of a failed envelope into the inbox
and keeps the original as a .bak file. The new content comes from
--file, or from stdin when the flag is omitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			var content []byte
			if contentFile != "" {
				content, err = os.ReadFile(contentFile)
			} else {
				content, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read new content: %w", err)
			}

			path := resolveEnvelopeArg(roots, args[0], model.DLQStates)

			var newPath string
			if client := clientIfUp(roots); client != nil {
				var out struct {
					Path string `json:"path"`
				}
				params := daemon.EditRetryParams{Path: path, Content: string(content)}
				if err := callDaemon(client, "queue_edit_retry", params, &out); err != nil {
					return err
				}
				newPath = out.Path
			} else {
				newPath, err = queue.NewManager(roots, nil).EditAndRetry(path, content)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Requeued as %s\n", newPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&contentFile, "file", "", "Read the corrected envelope from this file instead of stdin")

	return cmd
}
