package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workpact/backend/internal/models"
)

type ContractRepo struct {
	pool *pgxpool.Pool
}

func NewContractRepo(pool *pgxpool.Pool) *ContractRepo {
	return &ContractRepo{pool: pool}
}

const contractColumns = `id, sender_id, recipient_id, contract_type, terms, status, expires_at, resolved_by, resolved_at, created_at, updated_at`

func scanContract(row pgx.Row) (*models.Contract, error) {
	var c models.Contract
	err := row.Scan(&c.ID, &c.SenderID, &c.RecipientID, &c.Type, &c.Terms, &c.Status, &c.ExpiresAt, &c.ResolvedBy, &c.ResolvedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContractRepo) Create(ctx context.Context, c *models.Contract) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO contracts (id, sender_id, recipient_id, contract_type, terms, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, c.ID, c.SenderID, c.RecipientID, c.Type, c.Terms, c.Status, c.ExpiresAt).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return scanContract(r.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
}

// Resolve moves a pending contract to a terminal status. The status guard
// makes resolution monotonic: it reports false when the contract was already
// resolved (or expired) by a concurrent actor.
func (r *ContractRepo) Resolve(ctx context.Context, id uuid.UUID, toStatus string, resolvedBy uuid.UUID, resolvedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE contracts
		SET status = $2, resolved_by = $3, resolved_at = $4, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, toStatus, resolvedBy, resolvedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkExpired records lazy expiry. Only flips pending contracts.
func (r *ContractRepo) MarkExpired(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contracts SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	return err
}

func (r *ContractRepo) ListByParty(ctx context.Context, partyID uuid.UUID) ([]*models.Contract, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC
	`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
