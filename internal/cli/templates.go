package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/template"
)

// NewTemplatesCommand creates the 'overseer templates' command group
func NewTemplatesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage reusable task templates",
		Long: `Templates are named, categorized task envelopes. Builtin templates ship
with overseer, custom templates persist in the state root, and external
templates can be loaded into a running daemon from a JSON document.`,
	}

	cmd.AddCommand(
		newTemplatesListCommand(),
		newTemplatesGroupedCommand(),
		newTemplatesSaveCommand(),
		newTemplatesDeleteCommand(),
		newTemplatesLoadCommand(),
	)

	return cmd
}

func newTemplatesListCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all visible templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			templates, err := fetchTemplates(roots)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, map[string]any{"templates": templates})
			}

			if len(templates) == 0 {
				fmt.Fprintln(w, "No templates")
				return nil
			}

			fmt.Fprintf(w, "%-28s  %-12s  %-8s  %s\n", "NAME", "CATEGORY", "SOURCE", "DESCRIPTION")
			for _, t := range templates {
				fmt.Fprintf(w, "%-28s  %-12s  %-8s  %s\n", t.Name, t.Category, t.Source, t.Description)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newTemplatesGroupedCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "grouped",
		Short: "List templates grouped by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			groups, err := fetchGroups(roots)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, map[string]any{"groups": groups})
			}

			if len(groups) == 0 {
				fmt.Fprintln(w, "No templates")
				return nil
			}

			setupColor(w)
			printGroups(w, groups)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printGroups(w io.Writer, groups []template.Group) {
	cyan := color.New(color.FgCyan, color.Bold)
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		cyan.Fprintf(w, "%s\n", g.Category)
		for _, t := range g.Templates {
			desc := t.Description
			if desc != "" {
				desc = "  " + desc
			}
			fmt.Fprintf(w, "  %-28s [%s]%s\n", t.Name, t.Source, desc)
		}
	}
}

// fetchTemplates prefers the daemon because externally loaded templates live
// only in its memory; a fresh on-disk catalog cannot see them.
func fetchTemplates(roots model.Roots) ([]model.Template, error) {
	if client := clientIfUp(roots); client != nil {
		var out struct {
			Templates []model.Template `json:"templates"`
		}
		if err := callDaemon(client, "templates_list", nil, &out); err != nil {
			return nil, err
		}
		return out.Templates, nil
	}
	catalog, _ := template.NewCatalog(roots)
	return catalog.List(), nil
}

func fetchGroups(roots model.Roots) ([]template.Group, error) {
	if client := clientIfUp(roots); client != nil {
		var out struct {
			Groups []template.Group `json:"groups"`
		}
		if err := callDaemon(client, "templates_grouped", nil, &out); err != nil {
			return nil, err
		}
		return out.Groups, nil
	}
	catalog, _ := template.NewCatalog(roots)
	return catalog.Grouped(), nil
}
