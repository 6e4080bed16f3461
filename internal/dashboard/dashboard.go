// Package dashboard holds the task list view-model shared by the CLI
// commands and the interactive UI.
package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"

	"taskboard/internal/logging"
	"taskboard/internal/service"
)

// State is where the dashboard is in its lifecycle.
type State string

const (
	StateLoadingSession  State = "loading-session"
	StateUnauthenticated State = "unauthenticated"
	StateLoadingTasks    State = "loading-tasks"
	StateReady           State = "ready"
	StateError           State = "error"
)

// Messages shown in the error slot.
const (
	MsgLoadSession = "Failed to load session"
	MsgLoadTasks   = "Failed to load tasks"
	MsgCreateTask  = "Failed to create task"
	MsgUpdateTask  = "Failed to update task"
	MsgDeleteTask  = "Failed to delete task"
)

var (
	// ErrUnknownTask is returned for an id that is not in the loaded list.
	ErrUnknownTask = errors.New("unknown task")

	// ErrUnauthenticated is returned when there is no session.
	ErrUnauthenticated = errors.New("not logged in")
)

// SessionSource resolves the current session. It returns nil when nobody
// is signed in.
type SessionSource interface {
	Load(ctx context.Context) (*service.Session, error)
}

// Snapshot is a consistent copy of the dashboard at one instant.
type Snapshot struct {
	State   State
	Filter  service.Filter
	Session *service.Session
	Tasks   []service.Task // visible under Filter
	Total   int
	Err     string
}

// Controller loads and mutates the signed-in user's tasks.
type Controller struct {
	svc      service.Service
	sessions SessionSource

	// actions serializes create, toggle and delete.
	actions sync.Mutex

	mu      sync.Mutex
	state   State
	filter  service.Filter
	session *service.Session
	tasks   []service.Task
	errMsg  string
	gen     uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithFilter sets the filter the first fetch uses.
func WithFilter(f service.Filter) Option {
	return func(c *Controller) { c.filter = f }
}

// New creates a Controller. It shows all tasks unless WithFilter says otherwise.
func New(svc service.Service, sessions SessionSource, opts ...Option) *Controller {
	c := &Controller{
		svc:      svc,
		sessions: sessions,
		state:    StateLoadingSession,
		filter:   service.FilterAll,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount resolves the session and, when there is one, loads the tasks for
// the current filter.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateLoadingSession
	c.mu.Unlock()

	s, err := c.sessions.Load(ctx)
	if err != nil {
		c.fail(MsgLoadSession)
		return err
	}
	if s == nil {
		c.mu.Lock()
		c.session = nil
		c.tasks = nil
		c.state = StateUnauthenticated
		c.mu.Unlock()
		return ErrUnauthenticated
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return c.fetch(ctx)
}

// SetFilter switches the filter and reloads.
func (c *Controller) SetFilter(ctx context.Context, f service.Filter) error {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
	return c.fetch(ctx)
}

// Refresh reloads the tasks for the current filter.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.fetch(ctx)
}

// fetch loads tasks under a new generation. A response that arrives after a
// newer fetch started is dropped.
func (c *Controller) fetch(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return ErrUnauthenticated
	}
	c.gen++
	gen, filter := c.gen, c.filter
	c.state = StateLoadingTasks
	c.mu.Unlock()

	tasks, err := c.svc.ListTasks(ctx, filter)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		logging.Debug(ctx, "dropping stale task list", "filter", filter, "generation", gen)
		return nil
	}
	if err != nil {
		c.state = StateError
		c.errMsg = MsgLoadTasks
		return err
	}
	c.tasks = tasks
	c.state = StateReady
	c.errMsg = ""
	return nil
}

// Create validates title, creates the task and prepends it.
func (c *Controller) Create(ctx context.Context, title, description string) (service.Task, error) {
	if err := c.requireSession(); err != nil {
		return service.Task{}, err
	}
	if err := service.ValidateTitle(title); err != nil {
		c.fail(err.Error())
		return service.Task{}, err
	}

	c.actions.Lock()
	defer c.actions.Unlock()

	task, err := c.svc.CreateTask(ctx, service.TaskInput{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		c.fail(MsgCreateTask)
		return service.Task{}, err
	}

	c.mu.Lock()
	c.tasks = append([]service.Task{task}, c.tasks...)
	c.succeed()
	c.mu.Unlock()
	return task, nil
}

// Toggle flips the completion of the task with id. The new value is taken
// from the list as it stands when the update runs.
func (c *Controller) Toggle(ctx context.Context, id int) (service.Task, error) {
	c.actions.Lock()
	defer c.actions.Unlock()

	current, ok := c.lookup(id)
	if !ok {
		return service.Task{}, ErrUnknownTask
	}

	updated, err := c.svc.UpdateTask(ctx, id, service.CompletedPatch(!current.Completed))
	if err != nil {
		c.fail(MsgUpdateTask)
		return service.Task{}, err
	}

	c.mu.Lock()
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			c.tasks[i] = updated
			break
		}
	}
	c.succeed()
	c.mu.Unlock()
	return updated, nil
}

// Delete removes the task with id.
func (c *Controller) Delete(ctx context.Context, id int) error {
	c.actions.Lock()
	defer c.actions.Unlock()

	if _, ok := c.lookup(id); !ok {
		return ErrUnknownTask
	}
	if err := c.svc.DeleteTask(ctx, id); err != nil {
		c.fail(MsgDeleteTask)
		return err
	}

	c.mu.Lock()
	kept := make([]service.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	c.tasks = kept
	c.succeed()
	c.mu.Unlock()
	return nil
}

// Visible returns the loaded tasks that match the current filter.
func (c *Controller) Visible() []service.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return service.ApplyFilter(c.tasks, c.filter)
}

// Tasks returns all loaded tasks.
func (c *Controller) Tasks() []service.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]service.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Snapshot returns the whole dashboard state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s *service.Session
	if c.session != nil {
		cp := *c.session
		s = &cp
	}
	return Snapshot{
		State:   c.state,
		Filter:  c.filter,
		Session: s,
		Tasks:   service.ApplyFilter(c.tasks, c.filter),
		Total:   len(c.tasks),
		Err:     c.errMsg,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Filter() service.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Err returns the message in the error slot, or "".
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

func (c *Controller) lookup(id int) (service.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return service.Task{}, false
}

func (c *Controller) requireSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ErrUnauthenticated
	}
	return nil
}

func (c *Controller) fail(msg string) {
	c.mu.Lock()
	c.state = StateError
	c.errMsg = msg
	c.mu.Unlock()
}

// succeed clears the error slot and starts a new generation, so a fetch
// that began before the mutation is dropped. Callers hold c.mu.
func (c *Controller) succeed() {
	c.errMsg = ""
	c.gen++
	if c.state == StateError || c.state == StateLoadingTasks {
		c.state = StateReady
	}
}
