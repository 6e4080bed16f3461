package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"taskboard/internal/config"
	"taskboard/internal/dashboard"
	"taskboard/internal/exitcode"
	"taskboard/internal/service"
)

func init() {
	Register(&ToggleCmd{})
}

// ToggleCmd implements the toggle command. It flips a task between pending
// and completed.
type ToggleCmd struct {
	filter string
}

// SetFilter sets the filter the reference is resolved against (for testing).
func (c *ToggleCmd) SetFilter(filter string) {
	c.filter = filter
}

func (c *ToggleCmd) Name() string      { return "toggle" }
func (c *ToggleCmd) Aliases() []string { return []string{"done"} }
func (c *ToggleCmd) Synopsis() string  { return "Toggle a task between pending and completed" }
func (c *ToggleCmd) Usage() string {
	return "taskboard toggle [common flags] [--filter all|pending|completed] <N|#ID>"
}
func (c *ToggleCmd) NeedsAuth() bool { return true }

func (c *ToggleCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.filter, "filter", "", "")
	fs.StringVar(&c.filter, "f", "", "")
}

func (c *ToggleCmd) Run(ctx context.Context, cfg *config.Config, rt *Runtime, args []string, out, errOut io.Writer) int {
	return runOnTask(ctx, cfg, rt, c.filter, args, out, errOut, func(ctrl *dashboard.Controller, task service.Task) error {
		_, err := ctrl.Toggle(ctx, task.ID)
		return err
	})
}

// runOnTask resolves the task reference in args against the listing for
// filterName and applies fn to it.
func runOnTask(ctx context.Context, cfg *config.Config, rt *Runtime, filterName string, args []string, out, errOut io.Writer, fn func(*dashboard.Controller, service.Task) error) int {
	ref, err := ParseTaskRef(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	ctrl, code, ok := openDashboard(ctx, rt, filterName, errOut)
	if !ok {
		return code
	}

	task, err := ref.Resolve(ctrl.Visible())
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	if err := fn(ctrl, task); err != nil {
		return report(errOut, err, ctrl.Err())
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
