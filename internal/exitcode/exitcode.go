// Package exitcode defines exit codes for the CLI.
package exitcode

// Process exit codes.
const (
	Success = 0

	// UserError covers bad arguments, invalid titles and task references
	// that match nothing.
	UserError = 1

	// AuthError means there is no usable session, or the backend rejected
	// the credentials.
	AuthError = 2

	// BackendError covers unreachable backends and failed API calls.
	BackendError = 3
)
