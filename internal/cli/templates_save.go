package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/template"
)

func newTemplatesSaveCommand() *cobra.Command {
	var (
		name        string
		category    string
		description string
		taskJSON    string
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a custom template",
		Long: `Save persists a custom template under the given name and category. The
--task value is the envelope as JSON, for example
'{"tool":"git","args":["fetch","--all"]}'. Saving over an existing
custom template replaces it; saving over a builtin shadows it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			var task model.Envelope
			if err := json.Unmarshal([]byte(taskJSON), &task); err != nil {
				return fmt.Errorf("parse --task JSON: %w", err)
			}

			tmpl := model.Template{
				Name:        name,
				Category:    category,
				Description: description,
				Task:        task,
			}

			if client := clientIfUp(roots); client != nil {
				if err := callDaemon(client, "templates_save", daemon.TemplateSaveParams{Template: tmpl}, nil); err != nil {
					return err
				}
			} else {
				catalog, _ := template.NewCatalog(roots)
				if err := catalog.Save(tmpl); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved template %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Template name")
	cmd.Flags().StringVar(&category, "category", "", "Template category (default General)")
	cmd.Flags().StringVar(&description, "description", "", "One-line description")
	cmd.Flags().StringVar(&taskJSON, "task", "", "Task envelope as JSON")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func newTemplatesDeleteCommand() *cobra.Command {
	var (
		name     string
		category string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a custom template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			if client := clientIfUp(roots); client != nil {
				if err := callDaemon(client, "templates_delete", daemon.TemplateRefParams{Name: name, Category: category}, nil); err != nil {
					return err
				}
			} else {
				catalog, _ := template.NewCatalog(roots)
				if err := catalog.Delete(name, category); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted template %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Template name")
	cmd.Flags().StringVar(&category, "category", "", "Template category (default General)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
