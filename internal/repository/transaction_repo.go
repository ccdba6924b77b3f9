package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workpact/backend/internal/models"
)

// TransactionRepo persists the append-only wallet transaction log.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, entry_type, amount_cents, counterparty_wallet_id, task_id, project_id, balance_after_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, t.ID, t.WalletID, t.EntryType, t.AmountCents, t.CounterpartyWalletID, t.TaskID, t.ProjectID, t.BalanceAfterCents).Scan(&t.CreatedAt)
}

func (r *TransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, wallet_id, entry_type, amount_cents, counterparty_wallet_id, task_id, project_id, balance_after_cents, created_at
		FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at ASC
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WalletTransaction
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.EntryType, &t.AmountCents, &t.CounterpartyWalletID, &t.TaskID, &t.ProjectID, &t.BalanceAfterCents, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
