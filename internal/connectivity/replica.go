package connectivity

import (
	"encoding/json"
	"fmt"
	"sync"

	"taskboard/internal/service"
	"taskboard/internal/storage"
)

// Replica is the local copy of the user's tasks, persisted under
// storage.KeyOfflineTasks. Tasks are kept newest first.
type Replica struct {
	mu     sync.Mutex
	store  storage.Store
	policy Policy
}

// NewReplica creates a replica persisted in store.
func NewReplica(store storage.Store, policy Policy) *Replica {
	return &Replica{store: store, policy: policy}
}

// List returns the tasks matching filter. A replica that was never written
// is seeded with two starter tasks owned by userID first. One that was
// emptied stays empty.
func (r *Replica) List(filter service.Filter, userID string) ([]service.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, present, err := r.load()
	if err != nil {
		return nil, err
	}
	if !present {
		tasks = r.seed(userID)
		if err := r.save(tasks); err != nil {
			return nil, err
		}
	}
	return service.ApplyFilter(tasks, filter), nil
}

// Create adds a task with the next free id and returns it.
func (r *Replica) Create(input service.TaskInput, userID string) (service.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, _, err := r.load()
	if err != nil {
		return service.Task{}, err
	}

	next := 1
	for _, t := range tasks {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	now := service.Timestamp{Time: r.policy.now().UTC()}
	task := service.Task{
		ID:          next,
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.save(append([]service.Task{task}, tasks...)); err != nil {
		return service.Task{}, err
	}
	return task, nil
}

// Update applies patch to the task with id.
func (r *Replica) Update(id int, patch service.TaskPatch) (service.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, _, err := r.load()
	if err != nil {
		return service.Task{}, err
	}
	for i, t := range tasks {
		if t.ID != id {
			continue
		}
		updated := patch.Apply(t)
		updated.UpdatedAt = service.Timestamp{Time: r.policy.now().UTC()}
		tasks[i] = updated
		if err := r.save(tasks); err != nil {
			return service.Task{}, err
		}
		return updated, nil
	}
	return service.Task{}, fmt.Errorf("task %d: %w", id, service.ErrNotFound)
}

// Remove deletes the task with id. Removing an unknown id is a no-op.
func (r *Replica) Remove(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks, _, err := r.load()
	if err != nil {
		return err
	}
	kept := tasks[:0]
	for _, t := range tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tasks) {
		return nil
	}
	return r.save(kept)
}

// Replace overwrites the replica with the full task list from the backend.
func (r *Replica) Replace(tasks []service.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(tasks)
}

// Upsert merges tasks into the replica. New tasks go to the front.
func (r *Replica) Upsert(tasks ...service.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, _, err := r.load()
	if err != nil {
		return err
	}
	index := make(map[int]int, len(current))
	for i, t := range current {
		index[t.ID] = i
	}
	var added []service.Task
	for _, t := range tasks {
		if i, ok := index[t.ID]; ok {
			current[i] = t
			continue
		}
		added = append(added, t)
	}
	return r.save(append(added, current...))
}

// Own makes userID the owner of the replica. Tasks stored for anyone else
// are dropped first. An empty userID changes nothing.
func (r *Replica) Own(userID string) error {
	if userID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok, err := r.store.Get(storage.KeyOfflineOwner)
	if err != nil {
		return err
	}
	if ok && owner == userID {
		return nil
	}
	if err := r.store.Remove(storage.KeyOfflineTasks); err != nil {
		return err
	}
	return r.store.Set(storage.KeyOfflineOwner, userID)
}

// Clear drops all replica data.
func (r *Replica) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Remove(storage.KeyOfflineTasks); err != nil {
		return err
	}
	return r.store.Remove(storage.KeyOfflineOwner)
}

func (r *Replica) seed(userID string) []service.Task {
	if userID == "" {
		userID = "offline-user"
	}
	now := service.Timestamp{Time: r.policy.now().UTC()}
	return []service.Task{
		{
			ID:          1,
			Title:       "Welcome to your todo app!",
			Description: "This is a sample task to get you started",
			UserID:      userID,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:          2,
			Title:       "Create your first task",
			Description: "Add a new task with: taskboard add <title>",
			UserID:      userID,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// load reads the stored tasks and whether the key was present.
func (r *Replica) load() ([]service.Task, bool, error) {
	raw, ok, err := r.store.Get(storage.KeyOfflineTasks)
	if err != nil {
		return nil, false, err
	}
	if !ok || raw == "" {
		return nil, false, nil
	}
	var tasks []service.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, false, fmt.Errorf("replica: parse %s: %w", storage.KeyOfflineTasks, err)
	}
	return tasks, true, nil
}

func (r *Replica) save(tasks []service.Task) error {
	if tasks == nil {
		tasks = []service.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	return r.store.Set(storage.KeyOfflineTasks, string(data))
}
