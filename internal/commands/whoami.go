package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"taskboard/internal/config"
	"taskboard/internal/exitcode"
	"taskboard/internal/output"
	"taskboard/internal/session"
)

func init() {
	Register(&WhoamiCmd{})
}

// WhoamiCmd implements the whoami command.
type WhoamiCmd struct{}

func (c *WhoamiCmd) Name() string      { return "whoami" }
func (c *WhoamiCmd) Aliases() []string { return nil }
func (c *WhoamiCmd) Synopsis() string  { return "Show the signed-in user" }
func (c *WhoamiCmd) Usage() string     { return "taskboard whoami [common flags]" }
func (c *WhoamiCmd) NeedsAuth() bool   { return true }

func (c *WhoamiCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *WhoamiCmd) Run(ctx context.Context, cfg *config.Config, rt *Runtime, args []string, out, errOut io.Writer) int {
	s := rt.Sessions.Current()
	if s == nil {
		fmt.Fprintln(errOut, notLoggedIn)
		return exitcode.AuthError
	}

	output.FormatSession(out, *s, session.IsOfflineToken(s.Token))
	if cfg.Quiet {
		return exitcode.Success
	}
	if claims, err := session.ParseClaims(s.Token); err == nil && !claims.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "token expires %s\n", claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return exitcode.Success
}
