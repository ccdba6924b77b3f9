package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workpact/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// EnsureForOwner returns the owner's wallet, creating it on first use.
// Wallets are never deleted, only zeroed.
func (r *WalletRepo) EnsureForOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		INSERT INTO wallets (id, owner_id, currency, balance_cents, held_cents)
		VALUES ($1, $2, $3, 0, 0)
		ON CONFLICT (owner_id) DO UPDATE SET updated_at = now()
		RETURNING id, owner_id, currency, balance_cents, held_cents, created_at, updated_at
	`, uuid.New(), ownerID, currency).Scan(&w.ID, &w.OwnerID, &w.Currency, &w.BalanceCents, &w.HeldCents, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, currency, balance_cents, held_cents, created_at, updated_at
		FROM wallets WHERE id = $1
	`, id).Scan(&w.ID, &w.OwnerID, &w.Currency, &w.BalanceCents, &w.HeldCents, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByIDForUpdate locks the wallet row for the duration of tx. All balance
// mutations for a wallet go through this lock so open/release/debit against
// the same wallet are serialized.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		SELECT id, owner_id, currency, balance_cents, held_cents, created_at, updated_at
		FROM wallets WHERE id = $1 FOR UPDATE
	`, id).Scan(&w.ID, &w.OwnerID, &w.Currency, &w.BalanceCents, &w.HeldCents, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// SetBalances writes both balance columns. Call after GetByIDForUpdate in the
// same tx.
func (r *WalletRepo) SetBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, balanceCents, heldCents int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE wallets SET balance_cents = $2, held_cents = $3, updated_at = now() WHERE id = $1
	`, id, balanceCents, heldCents)
	return err
}
