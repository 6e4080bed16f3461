package connectivity

import (
	"context"

	"taskboard/internal/logging"
	"taskboard/internal/service"
)

// Service wraps a service.Service. Successful results are mirrored into the
// replica; network failures the policy allows are answered from it. The
// replica belongs to the signed-in user; another user's tasks are dropped
// before it is touched.
type Service struct {
	inner   service.Service
	policy  Policy
	replica *Replica
	userID  func() string
}

// NewService decorates inner. userID names the owner of locally created tasks.
func NewService(inner service.Service, policy Policy, replica *Replica, userID func() string) *Service {
	return &Service{
		inner:   inner,
		policy:  policy,
		replica: replica,
		userID:  userID,
	}
}

// ListTasks implements service.Service.
func (s *Service) ListTasks(ctx context.Context, filter service.Filter) ([]service.Task, error) {
	if s.policy.Reachable() {
		tasks, err := s.inner.ListTasks(ctx, filter)
		if err == nil {
			s.mirror(ctx, func() error {
				if filter == service.FilterAll {
					return s.replica.Replace(tasks)
				}
				return s.replica.Upsert(tasks...)
			})
			return tasks, nil
		}
		if !s.fallback(ctx, "list", err) {
			return nil, err
		}
	}
	if err := s.replica.Own(s.user()); err != nil {
		return nil, err
	}
	return s.replica.List(filter, s.user())
}

// CreateTask implements service.Service.
func (s *Service) CreateTask(ctx context.Context, input service.TaskInput) (service.Task, error) {
	if s.policy.Reachable() {
		task, err := s.inner.CreateTask(ctx, input)
		if err == nil {
			s.mirror(ctx, func() error { return s.replica.Upsert(task) })
			return task, nil
		}
		if !s.fallback(ctx, "create", err) {
			return service.Task{}, err
		}
	}
	if err := s.replica.Own(s.user()); err != nil {
		return service.Task{}, err
	}
	return s.replica.Create(input, s.user())
}

// UpdateTask implements service.Service.
func (s *Service) UpdateTask(ctx context.Context, id int, patch service.TaskPatch) (service.Task, error) {
	if s.policy.Reachable() {
		task, err := s.inner.UpdateTask(ctx, id, patch)
		if err == nil {
			s.mirror(ctx, func() error { return s.replica.Upsert(task) })
			return task, nil
		}
		if !s.fallback(ctx, "update", err) {
			return service.Task{}, err
		}
	}
	if err := s.replica.Own(s.user()); err != nil {
		return service.Task{}, err
	}
	return s.replica.Update(id, patch)
}

// DeleteTask implements service.Service.
func (s *Service) DeleteTask(ctx context.Context, id int) error {
	if s.policy.Reachable() {
		err := s.inner.DeleteTask(ctx, id)
		if err == nil {
			s.mirror(ctx, func() error { return s.replica.Remove(id) })
			return nil
		}
		if !s.fallback(ctx, "delete", err) {
			return err
		}
	}
	if err := s.replica.Own(s.user()); err != nil {
		return err
	}
	return s.replica.Remove(id)
}

func (s *Service) fallback(ctx context.Context, op string, err error) bool {
	if !s.policy.Fallback(err) {
		return false
	}
	logging.Warn(ctx, "backend not reachable, using local replica", "op", op, "error", err)
	return true
}

// mirror runs fn against the replica. Failures are logged and dropped.
func (s *Service) mirror(ctx context.Context, fn func() error) {
	err := s.replica.Own(s.user())
	if err == nil {
		err = fn()
	}
	if err != nil {
		logging.Debug(ctx, "replica update failed", "error", err)
	}
}

func (s *Service) user() string {
	if s.userID == nil {
		return ""
	}
	return s.userID()
}
