package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"taskboard/internal/config"
	"taskboard/internal/dashboard"
	"taskboard/internal/exitcode"
	"taskboard/internal/output"
	"taskboard/internal/service"
)

func init() {
	Register(&ListCmd{})
}

// ListCmd implements the list command. It also runs for `taskboard` with
// no arguments.
type ListCmd struct {
	filter string
}

// SetFilter sets the filter name (for testing).
func (c *ListCmd) SetFilter(filter string) {
	c.filter = filter
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List tasks" }
func (c *ListCmd) Usage() string {
	return "taskboard list [common flags] [--filter all|pending|completed]"
}
func (c *ListCmd) NeedsAuth() bool { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.filter, "filter", "", "")
	fs.StringVar(&c.filter, "f", "", "")
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, rt *Runtime, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	ctrl, code, ok := openDashboard(ctx, rt, c.filter, errOut)
	if !ok {
		return code
	}

	snap := ctrl.Snapshot()
	if snap.Filter != service.FilterAll {
		output.FormatFilterHeader(out, snap.Filter, len(snap.Tasks))
	}
	if len(snap.Tasks) == 0 {
		if !cfg.Quiet {
			output.FormatEmpty(out, snap.Filter)
		}
		return exitcode.Success
	}
	for i, task := range snap.Tasks {
		output.FormatTask(out, i+1, task)
	}
	return exitcode.Success
}

// openDashboard parses filterName and mounts a dashboard for it. On failure
// the error has been reported and code is the exit code.
func openDashboard(ctx context.Context, rt *Runtime, filterName string, errOut io.Writer) (ctrl *dashboard.Controller, code int, ok bool) {
	filter, err := service.ParseFilter(filterName)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return nil, exitcode.UserError, false
	}

	ctrl = rt.Dashboard(dashboard.WithFilter(filter))
	if err := ctrl.Mount(ctx); err != nil {
		return nil, report(errOut, err, ctrl.Err()), false
	}
	return ctrl, exitcode.Success, true
}
