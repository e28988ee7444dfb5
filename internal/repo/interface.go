package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/pkazancev/task-tracker-api/internal/model"
)

// TaskRepository defines the storage capability set for tasks. The store
// technology stays swappable behind it.
type TaskRepository interface {
	Create(ctx context.Context, t model.Task) (model.Task, error)
	Get(ctx context.Context, id uuid.UUID) (model.Task, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter model.TaskFilter, limit int) ([]model.Task, error)
	Update(ctx context.Context, t model.Task) (model.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SaveIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string, resourceID uuid.UUID) (uuid.UUID, error)
	GetIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (uuid.UUID, error)
	DeleteIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) error
	StatsByOwner(ctx context.Context, ownerID uuid.UUID) (Stats, error)
}

// UserRepository persists user credentials.
type UserRepository interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
}
