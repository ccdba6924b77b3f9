package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workpact/backend/internal/models"
)

type ProofRepo struct {
	pool *pgxpool.Pool
}

func NewProofRepo(pool *pgxpool.Pool) *ProofRepo {
	return &ProofRepo{pool: pool}
}

func (r *ProofRepo) Create(ctx context.Context, p *models.ProofOfTask) error {
	evidence, err := json.Marshal(p.Evidence)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO proofs_of_task (id, task_id, submitter_id, evidence, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING submitted_at
	`, p.ID, p.TaskID, p.SubmitterID, evidence, p.Notes).Scan(&p.SubmittedAt)
}

// GetActiveByTask returns the task's proof with a null decision, or nil. The
// single-active invariant is also backed by a partial unique index on
// (task_id) WHERE decision IS NULL.
func (r *ProofRepo) GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*models.ProofOfTask, error) {
	p, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, task_id, submitter_id, evidence, notes, decision, reviewer_id, submitted_at, reviewed_at
		FROM proofs_of_task WHERE task_id = $1 AND decision IS NULL
	`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// DecideTx records the review outcome on an undecided proof, within the
// caller's transaction so the decision commits together with the task
// transition. Reports false when the proof was already decided.
func (r *ProofRepo) DecideTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, decision string, reviewerID uuid.UUID, reviewedAt time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE proofs_of_task SET decision = $2, reviewer_id = $3, reviewed_at = $4
		WHERE id = $1 AND decision IS NULL
	`, id, decision, reviewerID, reviewedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListDecidedForPendingTasks returns, for each task still in
// pending-validation with no undecided proof, its most recent decided proof.
// These are tasks whose review decision landed but whose status update never
// did; the reconciliation sweep replays the transition.
func (r *ProofRepo) ListDecidedForPendingTasks(ctx context.Context) ([]*models.ProofOfTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (p.task_id)
			p.id, p.task_id, p.submitter_id, p.evidence, p.notes, p.decision, p.reviewer_id, p.submitted_at, p.reviewed_at
		FROM proofs_of_task p
		JOIN tasks t ON t.id = p.task_id
		WHERE p.decision IS NOT NULL
		  AND t.status = 'pending-validation'
		  AND NOT EXISTS (
			SELECT 1 FROM proofs_of_task a
			WHERE a.task_id = p.task_id AND a.decision IS NULL
		  )
		ORDER BY p.task_id, p.submitted_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ProofOfTask
	for rows.Next() {
		p, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// ListByTask returns all proofs for a task, rejected history included.
func (r *ProofRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.ProofOfTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, submitter_id, evidence, notes, decision, reviewer_id, submitted_at, reviewed_at
		FROM proofs_of_task WHERE task_id = $1 ORDER BY submitted_at ASC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ProofOfTask
	for rows.Next() {
		p, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *ProofRepo) scanOne(row pgx.Row) (*models.ProofOfTask, error) {
	var p models.ProofOfTask
	var evidence []byte
	err := row.Scan(&p.ID, &p.TaskID, &p.SubmitterID, &evidence, &p.Notes, &p.Decision, &p.ReviewerID, &p.SubmittedAt, &p.ReviewedAt)
	if err != nil {
		return nil, err
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &p.Evidence); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
