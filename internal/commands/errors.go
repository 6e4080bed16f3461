package commands

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"taskboard/internal/backend/httpapi"
	"taskboard/internal/connectivity"
	"taskboard/internal/dashboard"
	"taskboard/internal/exitcode"
	"taskboard/internal/service"
	"taskboard/internal/session"
)

const notLoggedIn = "error: not logged in (run: taskboard login)"

// report prints err to errOut and returns its exit code. slot is the
// dashboard error message, if any, and prefixes backend errors.
func report(errOut io.Writer, err error, slot string) int {
	var apiErr *httpapi.APIError
	switch {
	case errors.Is(err, dashboard.ErrUnauthenticated), errors.Is(err, session.ErrNoSession):
		fmt.Fprintln(errOut, notLoggedIn)
		return exitcode.AuthError

	case errors.Is(err, service.ErrTitleRequired), errors.Is(err, service.ErrTitleTooLong):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError

	case errors.Is(err, service.ErrNotFound), errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		fmt.Fprintln(errOut, "error: task not found")
		return exitcode.UserError

	case httpapi.IsUnauthorized(err):
		fmt.Fprintf(errOut, "error: auth error: %v (run: taskboard login)\n", err)
		return exitcode.AuthError
	}

	if slot != "" {
		fmt.Fprintf(errOut, "error: backend error: %s: %v\n", slot, err)
	} else {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
	}
	return exitcode.BackendError
}

// reportAuth prints a sign-in or sign-up failure. Server messages are shown
// as-is.
func reportAuth(errOut io.Writer, err error) int {
	if connectivity.IsNetworkError(err) {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
	var apiErr *httpapi.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusInternalServerError {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
	fmt.Fprintf(errOut, "error: %v\n", err)
	return exitcode.AuthError
}
