package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pkazancev/task-tracker-api/internal/model"
)

// Pool runs background workers that flag tasks past their due date.
// Each claim uses FOR UPDATE SKIP LOCKED so no task is flagged twice.
type Pool struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	count    int
	interval time.Duration
	wg       sync.WaitGroup
	stop     chan struct{}
}

func NewPool(pool *pgxpool.Pool, logger *zap.Logger, count int, interval time.Duration) *Pool {
	return &Pool{
		pool:     pool,
		logger:   logger,
		count:    count,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("Starting overdue sweeper", zap.Int("workers", p.count))

	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) Stop() {
	p.logger.Info("Stopping overdue sweeper...")
	close(p.stop)
	p.wg.Wait()
	p.logger.Info("Overdue sweeper stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.sweepNext(ctx, id); err != nil && err != pgx.ErrNoRows {
				p.logger.Error("sweeper error", zap.Int("worker", id), zap.Error(err))
			}
		}
	}
}

// sweepNext flags a single past-due unfinished task, if any.
func (p *Pool) sweepNext(ctx context.Context, workerID int) error {
	task, err := p.claimOverdue(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("Task overdue",
		zap.Int("worker", workerID),
		zap.String("task_id", task.ID.String()),
		zap.String("title", task.Title),
		zap.String("owner_id", task.OwnerID.String()),
		zap.Time("due_date", task.DueDate.Time),
	)
	return nil
}

func (p *Pool) claimOverdue(ctx context.Context) (model.Task, error) {
	var t model.Task

	err := p.pool.QueryRow(ctx, `
		WITH claimed AS (
			SELECT id
			FROM tasks
			WHERE overdue = false
			  AND due_date < now()
			  AND status <> 'Completed'
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tasks
		SET overdue = true, updated_at = now()
		FROM claimed
		WHERE tasks.id = claimed.id
		RETURNING tasks.id, tasks.title, tasks.status, tasks.due_date,
		          tasks.owner_id, tasks.created_at, tasks.updated_at
	`).Scan(&t.ID, &t.Title, &t.Status, &t.DueDate.Time, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt)

	return t, err
}
