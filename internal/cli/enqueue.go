package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/model"
	"github.com/msageha/overseer/internal/queue"
	"github.com/msageha/overseer/internal/template"
)

// NewEnqueueCommand creates the 'overseer enqueue' command
func NewEnqueueCommand() *cobra.Command {
	var (
		templateName string
		category     string
		tool         string
		argList      []string
		flagList     []string
		fileList     []string
		repo         string
		prompt       string
		timeoutSec   int
		priority     string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Write a task envelope into the inbox",
		Long: `Enqueue a task for the worker, either from a template (--template, with
an optional --category) or composed inline (--tool plus --arg, --flag,
--file, --prompt and friends). The envelope gets a fresh generated id
and lands in the inbox as task_<id>.jsonl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if templateName == "" && tool == "" {
				return errors.New("either --template or --tool is required")
			}
			if templateName != "" && tool != "" {
				return errors.New("--template and --tool are mutually exclusive")
			}

			roots, _, err := resolveRoot()
			if err != nil {
				return err
			}

			var task *model.Envelope
			if tool != "" {
				task = &model.Envelope{
					Tool:       tool,
					Repo:       repo,
					Args:       argList,
					Flags:      flagList,
					Files:      fileList,
					Prompt:     prompt,
					TimeoutSec: timeoutSec,
					Priority:   priority,
				}
			}

			if client := clientIfUp(roots); client != nil {
				var out struct {
					ID   string `json:"id"`
					Path string `json:"path"`
				}
				params := daemon.EnqueueParams{Template: templateName, Category: category, Task: task}
				if err := callDaemon(client, "enqueue", params, &out); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s\n  %s\n", out.ID, out.Path)
				return nil
			}

			env, path, err := enqueueDirect(roots, templateName, category, task)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s\n  %s\n", env.ID, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&templateName, "template", "", "Template name to enqueue")
	cmd.Flags().StringVar(&category, "category", "", "Template category (default General)")
	cmd.Flags().StringVar(&tool, "tool", "", "Executor tool for an inline task")
	cmd.Flags().StringArrayVar(&argList, "arg", nil, "Tool argument (repeatable)")
	cmd.Flags().StringArrayVar(&flagList, "flag", nil, "Tool flag (repeatable)")
	cmd.Flags().StringArrayVar(&fileList, "file", nil, "File the task touches (repeatable)")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository the task runs against")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt text for LLM tools")
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 0, "Task timeout in seconds")
	cmd.Flags().StringVar(&priority, "priority", "", "Task priority (high|normal|low)")

	return cmd
}

// enqueueDirect resolves the template (when named) against the on-disk
// catalog and writes the envelope without the daemon.
func enqueueDirect(roots model.Roots, templateName, category string, task *model.Envelope) (model.Envelope, string, error) {
	var env model.Envelope
	if task != nil {
		env = *task
	} else {
		catalog, _ := template.NewCatalog(roots)
		if category == "" {
			category = model.DefaultCategory
		}
		tmpl, ok := catalog.Get(templateName, category)
		if !ok {
			return model.Envelope{}, "", fmt.Errorf("template not found: %s/%s", category, templateName)
		}
		env = tmpl.Task
		env.ID = "" // fresh task id per enqueue
	}
	return queue.NewManager(roots, nil).Enqueue(env)
}
