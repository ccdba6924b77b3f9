package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workpact/backend/internal/models"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `id, contract_id, wallet_id, destination_wallet_id, task_id, project_id, amount_cents, currency, status, created_at, released_at`

func scanHold(row pgx.Row) (*models.EscrowHold, error) {
	var h models.EscrowHold
	err := row.Scan(&h.ID, &h.ContractID, &h.WalletID, &h.DestinationWalletID, &h.TaskID, &h.ProjectID, &h.AmountCents, &h.Currency, &h.Status, &h.CreatedAt, &h.ReleasedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *EscrowRepo) CreateTx(ctx context.Context, tx pgx.Tx, h *models.EscrowHold) error {
	return tx.QueryRow(ctx, `
		INSERT INTO escrow_holds (id, contract_id, wallet_id, destination_wallet_id, task_id, project_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, h.ID, h.ContractID, h.WalletID, h.DestinationWalletID, h.TaskID, h.ProjectID, h.AmountCents, h.Currency, h.Status).Scan(&h.CreatedAt)
}

func (r *EscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowHold, error) {
	return scanHold(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_holds WHERE id = $1`, id))
}

func (r *EscrowRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.EscrowHold, error) {
	return scanHold(tx.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_holds WHERE id = $1 FOR UPDATE`, id))
}

// GetByContractID returns the hold opened for a contract, if any. Used to make
// contract-acceptance processing idempotent.
func (r *EscrowRepo) GetByContractID(ctx context.Context, contractID uuid.UUID) (*models.EscrowHold, error) {
	h, err := scanHold(r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_holds WHERE contract_id = $1`, contractID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// GetActiveByTask returns the held hold for a task, or nil.
func (r *EscrowRepo) GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*models.EscrowHold, error) {
	h, err := scanHold(r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrow_holds WHERE task_id = $1 AND status = 'held'
	`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// Resolve moves a hold out of held exactly once; the status guard in the
// WHERE clause is what enforces the single-transition invariant.
func (r *EscrowRepo) Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, toStatus string, destWalletID *uuid.UUID, releasedAt time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_holds
		SET status = $2, destination_wallet_id = COALESCE($3, destination_wallet_id), released_at = $4
		WHERE id = $1 AND status = 'held'
	`, id, toStatus, destWalletID, releasedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListReleasedForUnpaidTasks returns released holds whose task has not reached
// payment_status 'paid'. These are the mismatches the reconciliation sweep
// repairs: money has moved but the task write was lost.
func (r *EscrowRepo) ListReleasedForUnpaidTasks(ctx context.Context) ([]*models.EscrowHold, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowPrefixed("h")+`
		FROM escrow_holds h
		JOIN tasks t ON t.id = h.task_id
		WHERE h.status = 'released' AND t.payment_status <> 'paid'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EscrowHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	return list, rows.Err()
}

func escrowPrefixed(alias string) string {
	return alias + ".id, " + alias + ".contract_id, " + alias + ".wallet_id, " + alias + ".destination_wallet_id, " +
		alias + ".task_id, " + alias + ".project_id, " + alias + ".amount_cents, " + alias + ".currency, " +
		alias + ".status, " + alias + ".created_at, " + alias + ".released_at"
}
