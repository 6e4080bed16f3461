// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"taskboard/internal/service"
)

// ErrNetwork is a network-level error as the HTTP client would report it.
var ErrNetwork error = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")}

// FakeService is an in-memory implementation of service.Service for testing.
type FakeService struct {
	mu     sync.RWMutex
	tasks  []service.Task // newest first
	nextID int
	calls  map[string]int

	// Error injection for testing
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error

	// BeforeList runs before ListTasks answers, outside the lock.
	BeforeList func(ctx context.Context, filter service.Filter)
}

// NewFakeService creates an empty FakeService.
func NewFakeService() *FakeService {
	return &FakeService{nextID: 1, calls: make(map[string]int)}
}

// AddTask adds a task to the front of the list and returns it.
func (f *FakeService) AddTask(title string, completed bool) service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := service.Task{
		ID:        f.nextID,
		Title:     title,
		Completed: completed,
		UserID:    "user-1",
		CreatedAt: service.Now(),
		UpdatedAt: service.Now(),
	}
	f.nextID++
	f.tasks = append([]service.Task{t}, f.tasks...)
	return t
}

// Tasks returns a copy of the stored tasks.
func (f *FakeService) Tasks() []service.Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]service.Task, len(f.tasks))
	copy(out, f.tasks)
	return out
}

// Calls returns how many times the named method was called.
func (f *FakeService) Calls(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.calls[method]
}

func (f *FakeService) record(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

// ListTasks implements service.Service.
func (f *FakeService) ListTasks(ctx context.Context, filter service.Filter) ([]service.Task, error) {
	f.record("ListTasks")
	if f.BeforeList != nil {
		f.BeforeList(ctx, filter)
	}
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return service.ApplyFilter(f.tasks, filter), nil
}

// CreateTask implements service.Service.
func (f *FakeService) CreateTask(ctx context.Context, input service.TaskInput) (service.Task, error) {
	f.record("CreateTask")
	if f.CreateErr != nil {
		return service.Task{}, f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := service.Task{
		ID:          f.nextID,
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
		UserID:      "user-1",
		CreatedAt:   service.Now(),
		UpdatedAt:   service.Now(),
	}
	f.nextID++
	f.tasks = append([]service.Task{t}, f.tasks...)
	return t, nil
}

// UpdateTask implements service.Service.
func (f *FakeService) UpdateTask(ctx context.Context, id int, patch service.TaskPatch) (service.Task, error) {
	f.record("UpdateTask")
	if f.UpdateErr != nil {
		return service.Task{}, f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks[i] = patch.Apply(t)
			f.tasks[i].UpdatedAt = service.Now()
			return f.tasks[i], nil
		}
	}
	return service.Task{}, fmt.Errorf("task %d: %w", id, service.ErrNotFound)
}

// DeleteTask implements service.Service.
func (f *FakeService) DeleteTask(ctx context.Context, id int) error {
	f.record("DeleteTask")
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("task %d: %w", id, service.ErrNotFound)
}

// FakeAuth is an in-memory service.Authenticator.
type FakeAuth struct {
	mu    sync.Mutex
	users map[string]fakeAccount
	calls map[string]int

	// Error injection for testing
	LoginErr    error
	RegisterErr error
	ValidateErr error
}

type fakeAccount struct {
	user     service.User
	password string
}

// NewFakeAuth creates a FakeAuth with no accounts.
func NewFakeAuth() *FakeAuth {
	return &FakeAuth{users: make(map[string]fakeAccount), calls: make(map[string]int)}
}

// AddUser registers an account directly.
func (f *FakeAuth) AddUser(id, email, password, name string) service.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := service.User{ID: id, Email: email, Name: name}
	f.users[email] = fakeAccount{user: u, password: password}
	return u
}

// Calls returns how many times the named method was called.
func (f *FakeAuth) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Login implements service.Authenticator.
func (f *FakeAuth) Login(ctx context.Context, email, password string) (service.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Login"]++
	if f.LoginErr != nil {
		return service.AuthResponse{}, f.LoginErr
	}
	acct, ok := f.users[email]
	if !ok || acct.password != password {
		return service.AuthResponse{}, errors.New("Incorrect email or password")
	}
	return service.AuthResponse{AccessToken: "token-" + acct.user.ID, TokenType: "bearer", User: acct.user}, nil
}

// Register implements service.Authenticator.
func (f *FakeAuth) Register(ctx context.Context, email, password, name string) (service.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Register"]++
	if f.RegisterErr != nil {
		return service.AuthResponse{}, f.RegisterErr
	}
	if _, ok := f.users[email]; ok {
		return service.AuthResponse{}, errors.New("Email already registered")
	}
	u := service.User{ID: fmt.Sprintf("user-%d", len(f.users)+1), Email: email, Name: name}
	f.users[email] = fakeAccount{user: u, password: password}
	return service.AuthResponse{AccessToken: "token-" + u.ID, TokenType: "bearer", User: u}, nil
}

// Validate implements service.Authenticator.
func (f *FakeAuth) Validate(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Validate"]++
	return f.ValidateErr
}
