// Package service defines the backend-agnostic interface for task operations.
package service

import "context"

// Service defines the interface for task backend operations.
// All HTTP calls go through this interface.
// Commands and the dashboard never talk to the API directly.
type Service interface {
	// ListTasks returns the signed-in user's tasks matching the filter,
	// newest first.
	ListTasks(ctx context.Context, filter Filter) ([]Task, error)

	// CreateTask creates a task and returns it as stored.
	CreateTask(ctx context.Context, input TaskInput) (Task, error)

	// UpdateTask applies a partial update and returns the updated task.
	UpdateTask(ctx context.Context, id int, patch TaskPatch) (Task, error)

	// DeleteTask deletes a task by ID.
	DeleteTask(ctx context.Context, id int) error
}

// Authenticator defines the auth endpoints.
type Authenticator interface {
	// Login exchanges credentials for a token.
	Login(ctx context.Context, email, password string) (AuthResponse, error)

	// Register creates an account and returns a token for it.
	Register(ctx context.Context, email, password, name string) (AuthResponse, error)

	// Validate checks that the backend accepts the token.
	Validate(ctx context.Context, token string) error
}
