package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"taskboard/internal/backend/httpapi"
	"taskboard/internal/commands"
	"taskboard/internal/config"
	"taskboard/internal/connectivity"
	"taskboard/internal/exitcode"
	"taskboard/internal/logging"
	"taskboard/internal/session"
	"taskboard/internal/storage"
)

// RuntimeFactory creates a Runtime from config.
// Used to inject the backend and store during dispatch.
type RuntimeFactory func(ctx context.Context, cfg *config.Config) (*commands.Runtime, error)

// DefaultFactory wires the HTTP backend and the session file in the config
// directory.
func DefaultFactory(ctx context.Context, cfg *config.Config) (*commands.Runtime, error) {
	if err := cfg.EnsureDir(); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	store := storage.NewFileStore(cfg.SessionPath())
	client := httpapi.New(cfg.APIURL,
		httpapi.WithTokenSource(session.StoredToken(store)),
		httpapi.WithTimeout(cfg.Timeout),
	)
	logging.Debug(ctx, "runtime", "api_url", cfg.APIURL, "offline_mode", cfg.OfflineMode, "store", store.Path())
	return commands.NewRuntime(store, client, client, connectivity.NewPolicy(cfg.OfflineMode)), nil
}

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  RuntimeFactory
}

// NewDispatcher creates a new dispatcher with the given registry and runtime
// factory. A nil factory means DefaultFactory.
func NewDispatcher(registry *commands.Registry, factory RuntimeFactory) *Dispatcher {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	// No args -> dispatch to "list" command with no args
	if len(args) == 0 {
		return d.dispatch(ctx, "list", nil, out, errOut)
	}

	cmdName := args[0]

	// If first token starts with -, it's an error (flags require a command)
	if strings.HasPrefix(cmdName, "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	return d.dispatch(ctx, cmdName, args[1:], out, errOut)
}

func (d *Dispatcher) dispatch(ctx context.Context, cmdName string, args []string, out, errOut io.Writer) int {
	cmd, ok := d.registry.Find(cmdName)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}
	return d.dispatchCommand(ctx, cmd, args, out, errOut)
}

type commonFlags struct {
	configDir   string
	quiet       bool
	debug       bool
	apiURL      string
	offlineMode string
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configDir, "config", "", "")
	fs.BoolVar(&f.quiet, "quiet", false, "")
	fs.BoolVar(&f.debug, "debug", false, "")
	fs.StringVar(&f.apiURL, "api-url", "", "")
	fs.StringVar(&f.offlineMode, "offline-mode", "", "")
}

// apply layers the flags over the loaded config.
func (f *commonFlags) apply(cfg *config.Config) error {
	cfg.Quiet = f.quiet
	cfg.Debug = f.debug
	if url := strings.TrimSpace(f.apiURL); url != "" {
		cfg.APIURL = url
	}
	if f.offlineMode != "" {
		return cfg.SetOfflineMode(f.offlineMode)
	}
	return nil
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	// Create flag set with custom error handling
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard) // We handle errors ourselves

	var common commonFlags
	common.register(fs)

	// Register command-specific flags
	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return reportFlagError(errOut, err)
	}

	// Check if first positional arg starts with - (should have been parsed as flag)
	positionalArgs := fs.Args()
	if len(positionalArgs) > 0 && strings.HasPrefix(positionalArgs[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positionalArgs[0])
		return exitcode.UserError
	}

	cfg, err := config.New(common.configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	if err := common.apply(cfg); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}

	ctx = logging.WithContext(ctx, logging.New(errOut, cfg.Debug))
	ctx = logging.With(ctx, "command", cmd.Name())

	if s, ok := cmd.(commands.Standalone); ok && s.Standalone() {
		return cmd.Run(ctx, cfg, nil, positionalArgs, out, errOut)
	}

	rt, err := d.factory(ctx, cfg)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.AuthError
	}

	if cmd.NeedsAuth() {
		if code, ok := requireSession(ctx, rt, errOut); !ok {
			return code
		}
	}

	return cmd.Run(ctx, cfg, rt, positionalArgs, out, errOut)
}

// requireSession loads and validates the stored session.
func requireSession(ctx context.Context, rt *commands.Runtime, errOut io.Writer) (int, bool) {
	s, err := rt.Sessions.Load(ctx)
	switch {
	case err != nil && connectivity.IsNetworkError(err):
		fmt.Fprintf(errOut, "error: backend error: %s\n", err)
		return exitcode.BackendError, false
	case err != nil:
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.AuthError, false
	case s == nil:
		fmt.Fprintln(errOut, "error: not logged in (run: taskboard login)")
		return exitcode.AuthError, false
	}
	return exitcode.Success, true
}

// reportFlagError prints a flag parse error. Missing values come through
// as "flag needs an argument: -name".
func reportFlagError(errOut io.Writer, err error) int {
	errStr := err.Error()

	// Check for unknown flag
	if name, ok := strings.CutPrefix(errStr, "flag provided but not defined: "); ok {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", name)
		return exitcode.UserError
	}

	fmt.Fprintf(errOut, "error: %s\n", errStr)
	return exitcode.UserError
}
