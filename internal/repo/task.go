package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pkazancev/task-tracker-api/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{
		pool: pool,
	}
}

func (r *TaskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, due_date, priority, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, title, description, status, due_date, priority, overdue, owner_id, created_at, updated_at
	`, t.Title, t.Description, t.Status, t.DueDate.Time, t.Priority, t.OwnerID).Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate.Time, &t.Priority, &t.Overdue, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, r.mapError(err)
}

func (r *TaskRepo) Get(ctx context.Context, id uuid.UUID) (model.Task, error) {
	var t model.Task
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, description, status, due_date, priority, overdue, owner_id, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`, id).Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate.Time, &t.Priority, &t.Overdue, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return t, ErrorNotFound
	}
	return t, err
}

// ListByOwner returns the tasks owned by ownerID, owner-equality query,
// never a lookup by primary id.
func (r *TaskRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter model.TaskFilter, limit int) ([]model.Task, error) {
	query := `
		SELECT id, title, description, status, due_date, priority, overdue, owner_id, created_at, updated_at
		FROM tasks
		WHERE owner_id = $1
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, ownerID, filter.Status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0, limit)
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate.Time, &t.Priority, &t.Overdue, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepo) Update(ctx context.Context, t model.Task) (model.Task, error) {
	err := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, due_date = $5, priority = $6, updated_at = now()
		WHERE id = $1
		RETURNING id, title, description, status, due_date, priority, overdue, owner_id, created_at, updated_at
	`, t.ID, t.Title, t.Description, t.Status, t.DueDate.Time, t.Priority).Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate.Time, &t.Priority, &t.Overdue, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return t, ErrorNotFound
	}
	return t, err
}

func (r *TaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

// SaveIdempotencyKey records the owner's key -> resource mapping and returns
// the mapping that won. When a concurrent request by the same owner already
// claimed the key, the stored resource id comes back instead of resourceID.
// Keys are scoped per owner, one user's key never resolves another's task.
func (r *TaskRepo) SaveIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string, resourceID uuid.UUID) (uuid.UUID, error) {
	var winner uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO idempotency_keys (owner_id, key, resource_id) VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, key) DO UPDATE SET resource_id = idempotency_keys.resource_id
		RETURNING resource_id
	`, ownerID, key, resourceID).Scan(&winner)
	return winner, err
}

func (r *TaskRepo) GetIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT resource_id FROM idempotency_keys WHERE owner_id = $1 AND key = $2
	`, ownerID, key).Scan(&id)

	if err == pgx.ErrNoRows {
		return uuid.Nil, ErrorNotFound
	}
	return id, err
}

// DeleteIdempotencyKey removes a stale mapping whose task no longer exists.
func (r *TaskRepo) DeleteIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM idempotency_keys WHERE owner_id = $1 AND key = $2
	`, ownerID, key)
	return err
}

func (r *TaskRepo) StatsByOwner(ctx context.Context, ownerID uuid.UUID) (Stats, error) {
	stats := Stats{ByStatus: make(map[string]int)}

	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*), COUNT(*) FILTER (WHERE overdue)
		FROM tasks
		WHERE owner_id = $1
		GROUP BY status
	`, ownerID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count, overdue int
		if err := rows.Scan(&status, &count, &overdue); err != nil {
			return stats, err
		}
		stats.ByStatus[status] = count
		stats.Overdue += overdue
		stats.TotalTasks += count
	}
	return stats, rows.Err()
}

func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return ErrorConflict
		}
	}
	return err
}
