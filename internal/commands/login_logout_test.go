package commands_test

import (
	"errors"
	"strings"
	"testing"

	"taskboard/internal/commands"
	"taskboard/internal/connectivity"
	"taskboard/internal/exitcode"
	"taskboard/internal/storage"
	"taskboard/internal/testutil"
)

func TestLoginCommand(t *testing.T) {
	e := newEnv(t, false)

	stdout, stderr, code := runCommand(t, &commands.LoginCmd{}, e.rt, []string{"--email", "ada@example.com", "--password", "secret"}, false)
	expect(t, stdout, stderr, code, "logged in as Ada <ada@example.com>\n", "", exitcode.Success)

	token, ok, _ := e.store.Get(storage.KeyToken)
	if !ok || token != "token-user-1" {
		t.Errorf("expected token to be stored, got %q", token)
	}
	if !e.store.Has(storage.KeyUser) {
		t.Error("expected user to be stored")
	}
}

func TestLoginCommand_MissingFlags(t *testing.T) {
	e := newEnv(t, false)

	stdout, stderr, code := runCommand(t, &commands.LoginCmd{}, e.rt, []string{"--email", "ada@example.com"}, false)
	expect(t, stdout, stderr, code, "", "error: --email and --password are required\n", exitcode.UserError)
	if e.auth.Calls("Login") != 0 {
		t.Error("login must not be attempted without a password")
	}
}

func TestLoginCommand_WrongPassword(t *testing.T) {
	e := newEnv(t, false)

	stdout, stderr, code := runCommand(t, &commands.LoginCmd{}, e.rt, []string{"--email", "ada@example.com", "--password", "nope"}, false)
	expect(t, stdout, stderr, code, "", "error: Incorrect email or password\n", exitcode.AuthError)
	if e.store.Has(storage.KeyToken) {
		t.Error("a failed login must not store a token")
	}
}

func TestLoginCommand_NetworkError(t *testing.T) {
	e := newEnv(t, false)
	e.auth.LoginErr = testutil.ErrNetwork

	stdout, stderr, code := runCommand(t, &commands.LoginCmd{}, e.rt, []string{"--email", "ada@example.com", "--password", "secret"}, false)
	if code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if stdout != "" || !strings.HasPrefix(stderr, "error: backend error: ") {
		t.Errorf("unexpected output %q / %q", stdout, stderr)
	}
}

func TestLoginCommand_NetworkErrorFallback(t *testing.T) {
	store := storage.NewMemoryStore()
	auth := testutil.NewFakeAuth()
	auth.LoginErr = testutil.ErrNetwork
	rt := commands.NewRuntime(store, testutil.NewFakeService(), auth, connectivity.NewPolicy(connectivity.ModeFallback))

	stdout, stderr, code := runCommand(t, &commands.LoginCmd{}, rt, []string{"--email", "ada@example.com", "--password", "secret"}, false)
	expect(t, stdout, stderr, code, "logged in as ada <ada@example.com> [offline]\n", "", exitcode.Success)

	token, _, _ := store.Get(storage.KeyToken)
	if !strings.HasPrefix(token, connectivity.OfflineTokenPrefix) {
		t.Errorf("expected an offline token, got %q", token)
	}
}

func TestRegisterCommand(t *testing.T) {
	e := newEnv(t, false)

	cmd, ok := commands.DefaultRegistry.Find("signup")
	if !ok || cmd.Name() != "register" {
		t.Fatal("signup should be an alias of register")
	}

	stdout, stderr, code := runCommand(t, &commands.RegisterCmd{}, e.rt, []string{"--email", "grace@example.com", "--password", "pw", "--name", " Grace "}, false)
	expect(t, stdout, stderr, code, "registered Grace <grace@example.com>\n", "", exitcode.Success)

	stdout, stderr, code = runCommand(t, &commands.RegisterCmd{}, e.rt, []string{"--email", "ada@example.com", "--password", "pw"}, false)
	expect(t, stdout, stderr, code, "", "error: Email already registered\n", exitcode.AuthError)
}

func TestRegisterCommand_Quiet(t *testing.T) {
	e := newEnv(t, false)

	stdout, stderr, code := runCommand(t, &commands.RegisterCmd{}, e.rt, []string{"--email", "grace@example.com", "--password", "pw"}, true)
	expect(t, stdout, stderr, code, "", "", exitcode.Success)
	if !e.store.Has(storage.KeyToken) {
		t.Error("expected token to be stored")
	}
}

func TestLogoutCommand(t *testing.T) {
	e := newEnv(t, true)
	e.svc.AddTask("Buy milk", false)

	// Listing mirrors the tasks locally.
	if _, _, code := runCommand(t, &commands.ListCmd{}, e.rt, nil, true); code != exitcode.Success {
		t.Fatalf("list failed with %d", code)
	}
	if !e.store.Has(storage.KeyOfflineTasks) {
		t.Fatal("expected mirrored tasks")
	}

	stdout, stderr, code := runCommand(t, &commands.LogoutCmd{}, e.rt, nil, false)
	expect(t, stdout, stderr, code, "ok\n", "", exitcode.Success)

	for _, key := range []string{storage.KeyToken, storage.KeyUser, storage.KeyOfflineTasks, storage.KeyOfflineOwner} {
		if e.store.Has(key) {
			t.Errorf("expected %s to be removed", key)
		}
	}
	if e.rt.Sessions.Current() != nil {
		t.Error("expected in-memory session to be cleared")
	}
}

func TestLogoutCommand_NotLoggedIn(t *testing.T) {
	e := newEnv(t, false)

	stdout, stderr, code := runCommand(t, &commands.LogoutCmd{}, e.rt, nil, false)
	expect(t, stdout, stderr, code, "not logged in\n", "", exitcode.Success)
}

func TestLogoutCommand_StorageFailure(t *testing.T) {
	e := newEnv(t, true)
	e.store.RemoveErr = errors.New("disk full")

	stdout, stderr, code := runCommand(t, &commands.LogoutCmd{}, e.rt, nil, false)
	expect(t, stdout, stderr, code, "ok\n", "", exitcode.Success)
}

func TestLoginCommand_SwitchingUsersHidesOfflineTasks(t *testing.T) {
	store := storage.NewMemoryStore()
	rt := commands.NewRuntime(store, testutil.NewFakeService(), testutil.NewFakeAuth(), connectivity.NewPolicy(connectivity.ModeOffline))

	if _, stderr, code := runCommand(t, &commands.LoginCmd{}, rt, []string{"--email", "alice@example.com", "--password", "pw"}, true); code != exitcode.Success {
		t.Fatalf("alice login: %d %q", code, stderr)
	}
	if _, stderr, code := runCommand(t, &commands.AddCmd{}, rt, []string{"alice secret"}, true); code != exitcode.Success {
		t.Fatalf("add: %d %q", code, stderr)
	}

	if _, stderr, code := runCommand(t, &commands.LoginCmd{}, rt, []string{"--email", "bob@example.com", "--password", "pw"}, true); code != exitcode.Success {
		t.Fatalf("bob login: %d %q", code, stderr)
	}
	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, rt, nil, false)
	if code != exitcode.Success {
		t.Fatalf("list: %d %q", code, stderr)
	}
	if strings.Contains(stdout, "alice secret") {
		t.Errorf("bob sees alice's task:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Welcome to your todo app!") {
		t.Errorf("expected bob's starter tasks, got:\n%s", stdout)
	}
}
