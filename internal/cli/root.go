// Package cli implements the overseer command tree.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/overseer/internal/daemon"
	"github.com/msageha/overseer/internal/ipc"
	"github.com/msageha/overseer/internal/model"
)

// NewRootCommand creates and returns the root cobra command for overseer
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overseer",
		Short: "Queue coordination for the headless task worker",
		Long: `Overseer manages the directory queue consumed by an external headless
worker: it enqueues task envelopes, retries and quarantines failures,
watches circuit breakers and the worker heartbeat, aggregates the
execution ledger, and tails the worker log.

All state lives in plain files under the overseer root (the directory
containing .overseer/). A background daemon adds directory watches,
recurring schedules and an IPC socket, but every command falls back to
direct file access when the daemon is down.`,
		Version: daemon.Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewInitCommand())
	cmd.AddCommand(NewDaemonCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewEnqueueCommand())
	cmd.AddCommand(NewQueueCommand())
	cmd.AddCommand(NewBreakersCommand())
	cmd.AddCommand(NewMetricsCommand())
	cmd.AddCommand(NewTailCommand())
	cmd.AddCommand(NewTemplatesCommand())
	cmd.AddCommand(NewScheduleCommand())
	cmd.AddCommand(NewWorkerCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// findOverseerRoot walks upward from the working directory until it finds a
// directory containing .overseer/.
func findOverseerRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, model.OverseerDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// resolveRoot locates the overseer root and loads its configuration. Every
// command except init and version starts here.
func resolveRoot() (model.Roots, model.Config, error) {
	base := findOverseerRoot()
	if base == "" {
		return model.Roots{}, model.Config{},
			errors.New(".overseer/ directory not found. Run 'overseer init' first")
	}
	cfg, err := loadConfig(base)
	if err != nil {
		return model.Roots{}, model.Config{}, err
	}
	return model.ResolveRoots(base, cfg), cfg, nil
}

// loadConfig reads .overseer/config.yaml under base. A missing file yields
// defaults so a bare scaffold still works; sparse files are filled in.
func loadConfig(base string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(base, model.OverseerDirName, model.ConfigFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return model.DefaultConfig(), nil
		}
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// clientIfUp returns an IPC client when the daemon accepts connections, nil
// otherwise. Mutating commands prefer the daemon so its in-memory state (the
// template catalog above all) stays coherent with what lands on disk.
func clientIfUp(roots model.Roots) *ipc.Client {
	client := ipc.NewClient(roots.Socket())
	if client.Available() {
		return client
	}
	return nil
}

// callDaemon sends one command and decodes the response data into v (nil to
// discard). Daemon-side failures come back as plain errors.
func callDaemon(client *ipc.Client, command string, params any, v any) error {
	resp, err := client.SendCommand(command, params)
	if err != nil {
		return err
	}
	if !resp.Success {
		if resp.Error != nil {
			return errors.New(resp.Error.Message)
		}
		return fmt.Errorf("%s failed", command)
	}
	if v != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, v); err != nil {
			return fmt.Errorf("decode %s response: %w", command, err)
		}
	}
	return nil
}

// printJSON writes indented JSON, for the --json flags.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// colorableTerminal reports whether w is a terminal that can take escape
// codes. fatih/color keys its own detection off os.Stdout, which is wrong
// once cobra redirects output, so commands that colorize check the actual
// writer.
func colorableTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// setupColor turns ANSI sequences off for the rest of the process when w is
// not a terminal. NO_COLOR is already honored by the color package itself.
func setupColor(w io.Writer) {
	if !colorableTerminal(w) {
		color.NoColor = true
	}
}
