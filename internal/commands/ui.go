package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"taskboard/internal/config"
	"taskboard/internal/dashboard"
	"taskboard/internal/exitcode"
	"taskboard/internal/service"
	"taskboard/internal/tui"
)

func init() {
	Register(&UICmd{})
}

// UICmd implements the ui command.
type UICmd struct {
	filter string

	// In is the terminal input. Nil means os.Stdin.
	In io.Reader
}

func (c *UICmd) Name() string      { return "ui" }
func (c *UICmd) Aliases() []string { return nil }
func (c *UICmd) Synopsis() string  { return "Open the interactive dashboard" }
func (c *UICmd) Usage() string {
	return "taskboard ui [common flags] [--filter all|pending|completed]"
}
func (c *UICmd) NeedsAuth() bool { return true }

func (c *UICmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.filter, "filter", "", "")
	fs.StringVar(&c.filter, "f", "", "")
}

func (c *UICmd) Run(ctx context.Context, cfg *config.Config, rt *Runtime, args []string, out, errOut io.Writer) int {
	filter, err := service.ParseFilter(c.filter)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	in := c.In
	if in == nil {
		in = os.Stdin
	}
	if err := tui.Run(ctx, rt.Dashboard(dashboard.WithFilter(filter)), in, out); err != nil {
		return report(errOut, err, "")
	}
	return exitcode.Success
}
