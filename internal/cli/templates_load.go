package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/template"
)

func newTemplatesLoadCommand() *cobra.Command {
	var fromPath string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load external templates from a JSON document",
		Long: `Load replaces the external template tier with the contents of the given
document. External templates live in the daemon's memory only; they are
gone after a restart unless loaded again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			// The daemon resolves relative paths against its own working
			// directory, not ours.
			absPath, err := filepath.Abs(fromPath)
			if err != nil {
				return fmt.Errorf("resolve template document path: %w", err)
			}

			var loaded int
			if client := clientIfUp(roots); client != nil {
				var out struct {
					Loaded int `json:"loaded"`
				}
				if err := callDaemon(client, "templates_load_external", daemon.PathParams{Path: absPath}, &out); err != nil {
					return err
				}
				loaded = out.Loaded
			} else {
				catalog, _ := template.NewCatalog(roots)
				loaded, err = catalog.LoadExternal(absPath)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: daemon not running; external templates are not retained")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d template(s)\n", loaded)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromPath, "from", "", "Path to the external template document")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}
