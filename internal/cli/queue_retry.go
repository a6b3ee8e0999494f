package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/queue"
)

func newQueueRetryCommand() *cobra.Command {
	var (
		all    bool
		states []string
	)

	cmd := &cobra.Command{
		Use:   "retry [file...]",
		Short: "Move failed or quarantined envelopes back to the inbox",
		Long: `Retry moves the named envelope files back into the inbox so the worker
picks them up again. With --all every envelope in the selected states
(--state, default failed) is requeued at once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("--all and explicit files are mutually exclusive")
			}
			if !all && len(args) == 0 {
				return errors.New("name envelope files to retry, or pass --all")
			}

			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			var result queue.MoveResult
			if all {
				parsed := make([]model.QueueState, 0, len(states))
				for _, s := range states {
					state, err := model.ParseQueueState(s)
					if err != nil {
						return err
					}
					if state == model.StateInbox {
						return errors.New("inbox envelopes are already queued")
					}
					parsed = append(parsed, state)
				}
				if client := clientIfUp(roots); client != nil {
					if err := callDaemon(client, "queue_retry_all", daemon.RetryAllParams{States: states}, &result); err != nil {
						return err
					}
				} else {
					result = queue.NewManager(roots, nil).RetryAll(parsed)
				}
			} else {
				paths := resolveEnvelopeArgs(roots, args, model.DLQStates)
				if client := clientIfUp(roots); client != nil {
					if err := callDaemon(client, "queue_retry", daemon.PathsParams{Paths: paths}, &result); err != nil {
						return err
					}
				} else {
					result = queue.NewManager(roots, nil).Retry(paths)
				}
			}

			printMoveResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Retry every envelope in the selected states")
	cmd.Flags().StringSliceVar(&states, "state", []string{"failed"}, "States to drain with --all (failed,quarantine)")

	return cmd
}

func printMoveResult(w io.Writer, result queue.MoveResult) {
	fmt.Fprintf(w, "Requeued %d envelope(s)\n", result.Moved)
	printPathErrors(w, result.Failed)
}

func printPathErrors(w io.Writer, failures []queue.PathError) {
	if len(failures) == 0 {
		return
	}
	red := color.New(color.FgRed)
	for _, f := range failures {
		red.Fprintf(w, "  %s: %s\n", f.Path, f.Reason)
	}
}
