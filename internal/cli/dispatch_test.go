package cli_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"taskboard/internal/backend/httpapi"
	"taskboard/internal/cli"
	"taskboard/internal/commands"
	"taskboard/internal/config"
	"taskboard/internal/connectivity"
	"taskboard/internal/exitcode"
	"taskboard/internal/storage"
	"taskboard/internal/testutil"
)

// fakeRuntime builds runtimes over fakes and records the config each one
// was built from.
type fakeRuntime struct {
	svc   *testutil.FakeService
	auth  *testutil.FakeAuth
	store *storage.MemoryStore
	calls int
	cfg   *config.Config
}

func newFakeRuntime() *fakeRuntime {
	f := &fakeRuntime{
		svc:   testutil.NewFakeService(),
		auth:  testutil.NewFakeAuth(),
		store: storage.NewMemoryStore(),
	}
	f.auth.AddUser("user-1", "ada@example.com", "secret", "Ada")
	return f
}

// signIn stores a session the way a previous login would have.
func (f *fakeRuntime) signIn(t *testing.T) {
	t.Helper()
	rt := commands.NewRuntime(f.store, f.svc, f.auth, connectivity.NewPolicy(connectivity.ModeOff))
	if _, err := rt.Sessions.SignIn(context.Background(), "ada@example.com", "secret"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
}

func (f *fakeRuntime) factory(ctx context.Context, cfg *config.Config) (*commands.Runtime, error) {
	f.calls++
	f.cfg = cfg
	return commands.NewRuntime(f.store, f.svc, f.auth, connectivity.NewPolicy(cfg.OfflineMode)), nil
}

func run(t *testing.T, d *cli.Dispatcher, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	code = d.Run(context.Background(), args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvOfflineMode, "")
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	isolate(t)
	d := cli.NewDispatcher(commands.DefaultRegistry, newFakeRuntime().factory)

	_, stderr, code := run(t, d, "unknowncmd")
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if expected := "error: unknown command: unknowncmd\n"; stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagBeforeCommand(t *testing.T) {
	isolate(t)
	d := cli.NewDispatcher(commands.DefaultRegistry, newFakeRuntime().factory)

	_, stderr, code := run(t, d, "--quiet")
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if expected := "error: unknown command: --quiet\n"; stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_StandaloneCommands(t *testing.T) {
	isolate(t)
	f := newFakeRuntime()
	d := cli.NewDispatcher(commands.DefaultRegistry, f.factory)

	stdout, stderr, code := run(t, d, "help")
	if code != exitcode.Success || stderr != "" || !strings.Contains(stdout, "Usage:") {
		t.Errorf("unexpected help result %d %q", code, stderr)
	}

	stdout, stderr, code = run(t, d, "version")
	if code != exitcode.Success || stderr != "" || stdout != "taskboard 0.1.0\n" {
		t.Errorf("unexpected version result %d %q %q", code, stdout, stderr)
	}

	if f.calls != 0 {
		t.Errorf("help and version must not build a runtime, got %d calls", f.calls)
	}
}

func TestDispatcher_UnknownFlag(t *testing.T) {
	isolate(t)
	d := cli.NewDispatcher(commands.DefaultRegistry, newFakeRuntime().factory)

	_, stderr, code := run(t, d, "help", "--unknown")
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if expected := "error: unknown flag: -unknown\n"; stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_MissingFlagValue(t *testing.T) {
	isolate(t)
	d := cli.NewDispatcher(commands.DefaultRegistry, newFakeRuntime().factory)

	_, stderr, code := run(t, d, "login", "--email")
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if expected := "error: flag needs an argument: -email\n"; stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_NoArgsListsTasks(t *testing.T) {
	isolate(t)
	f := newFakeRuntime()
	f.signIn(t)
	f.svc.AddTask("Buy milk", false)
	d := cli.NewDispatcher(commands.DefaultRegistry, f.factory)

	stdout, stderr, code := run(t, d)
	if code != exitcode.Success || stderr != "" {
		t.Fatalf("unexpected result %d %q", code, stderr)
	}
	if expected := "   1  [ ] Buy milk  #1\n"; stdout != expected {
		t.Errorf("expected %q, got %q", expected, stdout)
	}
}

func TestDispatcher_NotLoggedIn(t *testing.T) {
	isolate(t)
	f := newFakeRuntime()
	d := cli.NewDispatcher(commands.DefaultRegistry, f.factory)

	for _, name := range []string{"list", "add", "toggle", "rm", "whoami", "ui"} {
		stdout, stderr, code := run(t, d, name, "x")
		if code != exitcode.AuthError {
			t.Errorf("%s: expected exit code %d, got %d", name, exitcode.AuthError, code)
		}
		if stdout != "" || stderr != "error: not logged in (run: taskboard login)\n" {
			t.Errorf("%s: unexpected output %q / %q", name, stdout, stderr)
		}
	}
	if f.svc.Calls("ListTasks") != 0 {
		t.Error("no task call should be made without a session")
	}
}

func TestDispatcher_RejectedTokenLogsOut(t *testing.T) {
	isolate(t)
	f := newFakeRuntime()
	f.signIn(t)
	f.auth.ValidateErr = &httpapi.APIError{StatusCode: 401, Message: "Could not validate credentials"}
	d := cli.NewDispatcher(commands.DefaultRegistry, f.factory)

	_, stderr, code := run(t, d, "list")
	if code != exitcode.AuthError || stderr != "error: not logged in (run: taskboard login)\n" {
		t.Errorf("unexpected result %d %q", code, stderr)
	}
	if f.store.Has(storage.KeyToken) || f.store.Has(storage.KeyUser) {
		t.Error("a rejected token should clear the stored session")
	}
}

func TestDispatcher_UnreachableBackend(t *testing.T) {
	isolate(t)
	f := newFakeRuntime()
	f.signIn(t)
	f.auth.ValidateErr = testutil.ErrNetwork
	f.svc.ListErr = testutil.ErrNetwork
	d := cli.NewDispatcher(commands.DefaultRegistry, f.factory)

	_, stderr, code := run(t, d, "list", "--offline-mode", "off")
	if code != exitcode.BackendError || !strings.HasPrefix(stderr, "error: backend error: ") {
		t.Errorf("unexpected result %d %q", code, stderr)
	}

	// By default the stored session is kept and the local starter tasks
	// are served.
	stdout, stderr, code := run(t, d, "list")
	if code != exitcode.Success || stderr != "" {
		t.Fatalf("unexpected result %d %q", code, stderr)
	}
	if !strings.Contains(stdout, "Welcome to your todo app!") {
		t.Errorf("expected starter tasks, got %q", stdout)
	}
}

func TestDispatcher_CommonFlags(t *testing.T) {
	isolate(t)
	f := newFakeRuntime()
	d := cli.NewDispatcher(commands.DefaultRegistry, f.factory)
	dir := t.TempDir()

	_, stderr, code := run(t, d, "logout", "--config", dir, "--api-url", "https://tasks.example.com/", "--offline-mode", "offline", "--quiet", "--debug")
	if code != exitcode.Success {
		t.Fatalf("unexpected result %d %q", code, stderr)
	}
	cfg := f.cfg
	if cfg.Dir != dir || cfg.APIURL != "https://tasks.example.com/" || cfg.OfflineMode != connectivity.ModeOffline || !cfg.Quiet || !cfg.Debug {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestDispatcher_InvalidOfflineMode(t *testing.T) {
	isolate(t)
	f := newFakeRuntime()
	d := cli.NewDispatcher(commands.DefaultRegistry, f.factory)

	_, stderr, code := run(t, d, "list", "--offline-mode", "sometimes")
	if code != exitcode.UserError || !strings.HasPrefix(stderr, "error: invalid offline mode: sometimes") {
		t.Errorf("unexpected result %d %q", code, stderr)
	}
	if f.calls != 0 {
		t.Error("runtime should not be built with an invalid mode")
	}
}

// TestDispatcher_EndToEnd drives the default runtime against the fake HTTP
// backend.
func TestDispatcher_EndToEnd(t *testing.T) {
	isolate(t)
	backend := testutil.NewBackend(t)
	t.Setenv(config.EnvAPIURL, backend.URL)
	d := cli.NewDispatcher(commands.DefaultRegistry, nil)

	steps := []struct {
		args   []string
		stdout string
	}{
		{[]string{"register", "--email", "ada@example.com", "--password", "secret", "--name", "Ada"}, "registered Ada <ada@example.com>\n"},
		{[]string{"add", "Buy", "milk"}, "ok\n"},
		{[]string{"add", "-d", "by noon", "Call mom"}, "ok\n"},
		{nil, "   1  [ ] Call mom  #2\n          by noon\n   2  [ ] Buy milk  #1\n"},
		{[]string{"toggle", "2"}, "ok\n"},
		{[]string{"list", "--filter", "completed"}, "------------\nCompleted (1)\n------------\n   1  [x] Buy milk  #1\n"},
		{[]string{"whoami", "--quiet"}, "Ada <ada@example.com>\n"},
	}
	for _, step := range steps {
		stdout, stderr, code := run(t, d, step.args...)
		if code != exitcode.Success || stderr != "" {
			t.Fatalf("%v: unexpected result %d %q", step.args, code, stderr)
		}
		if stdout != step.stdout {
			t.Errorf("%v: expected %q, got %q", step.args, step.stdout, stdout)
		}
	}

	backend.Close()

	_, stderr, code := run(t, d, "list", "--offline-mode", "off")
	if code != exitcode.BackendError || !strings.HasPrefix(stderr, "error: backend error: ") {
		t.Errorf("expected backend error, got %d %q", code, stderr)
	}

	stdout, stderr, code := run(t, d, "list")
	if code != exitcode.Success || stderr != "" {
		t.Fatalf("fallback list: %d %q", code, stderr)
	}
	if expected := "   1  [ ] Call mom  #2\n          by noon\n   2  [x] Buy milk  #1\n"; stdout != expected {
		t.Errorf("expected mirrored tasks %q, got %q", expected, stdout)
	}

	stdout, _, code = run(t, d, "logout")
	if code != exitcode.Success || stdout != "ok\n" {
		t.Errorf("logout: %d %q", code, stdout)
	}
	stdout, _, _ = run(t, d, "logout")
	if stdout != "not logged in\n" {
		t.Errorf("second logout: %q", stdout)
	}
}
