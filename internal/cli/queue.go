package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/queue"
)

// NewQueueCommand creates the 'overseer queue' command group
func NewQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued envelopes",
	}

	cmd.AddCommand(
		newQueueListCommand(),
		newQueueRetryCommand(),
		newQueueDeleteCommand(),
		newQueueEditRetryCommand(),
		newQueueShowCommand(),
	)

	return cmd
}

func newQueueShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Print the raw content of an envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}
			path := resolveEnvelopeArg(roots, args[0], allQueueStates)
			content, err := queue.NewManager(roots, nil).Read(path)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), content)
			if !strings.HasSuffix(content, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
}

var allQueueStates = []model.QueueState{model.StateInbox, model.StateFailed, model.StateQuarantine}

// resolveEnvelopeArg turns a bare file name into a full path by searching
// the given state directories. Arguments that already carry a path
// separator pass through untouched so explicit paths keep working.
func resolveEnvelopeArg(roots model.Roots, arg string, states []model.QueueState) string {
	if strings.ContainsRune(arg, os.PathSeparator) || strings.ContainsRune(arg, '/') {
		return arg
	}
	for _, state := range states {
		candidate := filepath.Join(roots.StateDir(state), arg)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return arg
}

func resolveEnvelopeArgs(roots model.Roots, args []string, states []model.QueueState) []string {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		paths = append(paths, resolveEnvelopeArg(roots, arg, states))
	}
	return paths
}
