package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workpact/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `id, project_id, title, description, assignee_id, task_admin_id, priority, amount_cents, currency, payment_status, status, due_date, estimated_hours, visibility, version, archived_at, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.AssigneeID, &t.TaskAdminID, &t.Priority, &t.AmountCents, &t.Currency, &t.PaymentStatus, &t.Status, &t.DueDate, &t.EstimatedHours, &t.Visibility, &t.Version, &t.ArchivedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) Create(ctx context.Context, t *models.Task) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, project_id, title, description, assignee_id, task_admin_id, priority, amount_cents, currency, payment_status, status, due_date, estimated_hours, visibility, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`, t.ID, t.ProjectID, t.Title, t.Description, t.AssigneeID, t.TaskAdminID, t.Priority, t.AmountCents, t.Currency, t.PaymentStatus, t.Status, t.DueDate, t.EstimatedHours, t.Visibility, t.Version).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

// Update writes the task with an optimistic version check. It reports false
// when another writer got there first; callers surface that as a conflict and
// re-fetch. On success t.Version is bumped.
func (r *TaskRepo) Update(ctx context.Context, t *models.Task) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, assignee_id = $4, task_admin_id = $5, priority = $6,
			amount_cents = $7, currency = $8, payment_status = $9, status = $10, due_date = $11,
			estimated_hours = $12, visibility = $13, archived_at = $14, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $15
	`, t.ID, t.Title, t.Description, t.AssigneeID, t.TaskAdminID, t.Priority,
		t.AmountCents, t.Currency, t.PaymentStatus, t.Status, t.DueDate,
		t.EstimatedHours, t.Visibility, t.ArchivedAt, t.Version)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	t.Version++
	return true, nil
}

// UpdateTx is Update inside the caller's transaction, for the orchestrator
// sequences that must share a commit boundary with escrow writes.
func (r *TaskRepo) UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Task) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, assignee_id = $4, task_admin_id = $5, priority = $6,
			amount_cents = $7, currency = $8, payment_status = $9, status = $10, due_date = $11,
			estimated_hours = $12, visibility = $13, archived_at = $14, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $15
	`, t.ID, t.Title, t.Description, t.AssigneeID, t.TaskAdminID, t.Priority,
		t.AmountCents, t.Currency, t.PaymentStatus, t.Status, t.DueDate,
		t.EstimatedHours, t.Visibility, t.ArchivedAt, t.Version)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	t.Version++
	return true, nil
}

// SumCommittedPricing sums pricing of all non-archived tasks in a project,
// the figure checked against the project budget at task-creation time.
func (r *TaskRepo) SumCommittedPricing(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM tasks
		WHERE project_id = $1 AND archived_at IS NULL
	`, projectID).Scan(&total)
	return total, err
}

func (r *TaskRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
