package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/pkazancev/task-tracker-api/internal/model"
	"github.com/pkazancev/task-tracker-api/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
)

type TaskService struct {
	repo repo.TaskRepository
}

func NewTaskService(repo repo.TaskRepository) *TaskService {
	return &TaskService{repo: repo}
}

// Create stamps the authenticated user as owner before validating. An
// Idempotency-Key that was already used returns the task it created.
func (s *TaskService) Create(ctx context.Context, ownerID uuid.UUID, t model.Task, idempKey string) (model.Task, error) {
	t.OwnerID = ownerID
	if err := s.validate(t); err != nil {
		return t, err
	}

	if idempKey != "" {
		if existingID, err := s.repo.GetIdempotencyKey(ctx, ownerID, idempKey); err == nil {
			existing, err := s.repo.Get(ctx, existingID)
			if err == nil {
				return existing, nil
			}
			if !errors.Is(err, repo.ErrorNotFound) {
				return model.Task{}, err
			}
			// The mapped task was deleted, drop the stale key and create anew.
			if err := s.repo.DeleteIdempotencyKey(ctx, ownerID, idempKey); err != nil {
				return model.Task{}, err
			}
		}
	}

	resource, err := s.repo.Create(ctx, t)
	if err != nil {
		return resource, err
	}

	if idempKey != "" {
		winnerID, err := s.repo.SaveIdempotencyKey(ctx, ownerID, idempKey, resource.ID)
		if err != nil {
			return resource, err
		}
		if winnerID != resource.ID {
			// Lost a concurrent race on the same key, discard our copy.
			if err := s.repo.Delete(ctx, resource.ID); err != nil && !errors.Is(err, repo.ErrorNotFound) {
				return model.Task{}, err
			}
			return s.repo.Get(ctx, winnerID)
		}
	}

	return resource, nil
}

func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (model.Task, error) {
	return s.repo.Get(ctx, id)
}

func (s *TaskService) ListForUser(ctx context.Context, ownerID uuid.UUID, filter model.TaskFilter, limit int) ([]model.Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByOwner(ctx, ownerID, filter, limit)
}

// Update applies the patch to the stored task after the ownership check and
// re-validates the result. The read-modify-write is non-transactional,
// last write wins.
func (s *TaskService) Update(ctx context.Context, id, userID uuid.UUID, patch model.TaskPatch) (model.Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if err := s.authorizeOwner(task, userID); err != nil {
		return model.Task{}, err
	}

	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	if patch.DueDate != nil {
		task.DueDate = *patch.DueDate
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}

	if err := s.validate(task); err != nil {
		return model.Task{}, err
	}
	return s.repo.Update(ctx, task)
}

func (s *TaskService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeOwner(task, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *TaskService) StatsForUser(ctx context.Context, ownerID uuid.UUID) (repo.Stats, error) {
	return s.repo.StatsByOwner(ctx, ownerID)
}

// authorizeOwner is the single ownership gate shared by update and delete.
func (s *TaskService) authorizeOwner(t model.Task, userID uuid.UUID) error {
	if t.OwnerID != userID {
		return ErrForbidden
	}
	return nil
}

func (s *TaskService) validate(t model.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrValidation
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrValidation
	}
	if !validStatus(t.Status) {
		return ErrValidation
	}
	if t.DueDate.IsZero() {
		return ErrValidation
	}
	if t.Priority != "" && !validPriority(t.Priority) {
		return ErrValidation
	}
	return nil
}

func validStatus(status string) bool {
	switch status {
	case model.StatusPending, model.StatusInProgress, model.StatusCompleted:
		return true
	}
	return false
}

func validPriority(priority string) bool {
	switch priority {
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh:
		return true
	}
	return false
}
