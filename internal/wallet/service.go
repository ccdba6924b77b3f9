package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/models"
)

// ErrInsufficientFunds is returned when a debit would exceed the wallet's
// available balance (balance minus committed escrow).
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrInvalidAmount is returned for zero or negative amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// ErrCurrencyMismatch is returned when an operation's currency differs from
// the wallet's.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// WalletRepo is the minimal wallet repository interface for the ledger.
type WalletRepo interface {
	EnsureForOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*models.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error)
	SetBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, balanceCents, heldCents int64) error
}

// TransactionRepo is the append-only transaction log interface.
type TransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error)
}

// Service is the wallet ledger. Every mutation locks the wallet row, writes
// the new balances, and appends a transaction record in the same tx — the
// log is the audit trail and the only input to Recompute.
type Service struct {
	Wallets      WalletRepo
	Transactions TransactionRepo
}

func NewService(wallets WalletRepo, transactions TransactionRepo) *Service {
	return &Service{Wallets: wallets, Transactions: transactions}
}

// EnsureForOwner returns the owner's wallet, creating it on first use.
func (s *Service) EnsureForOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*models.Wallet, error) {
	return s.Wallets.EnsureForOwner(ctx, ownerID, currency)
}

func (s *Service) Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	return s.Wallets.GetByID(ctx, walletID)
}

// Deposit adds funds. Call within a transaction.
func (s *Service) Deposit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, currency string) (*models.Wallet, error) {
	w, err := s.lockAndCheck(ctx, tx, walletID, amountCents, currency)
	if err != nil {
		return nil, err
	}
	w.BalanceCents += amountCents
	if err := s.apply(ctx, tx, w, models.WalletEntryDeposit, amountCents, nil, nil, nil); err != nil {
		return nil, err
	}
	return w, nil
}

// Debit removes available funds. Fails with ErrInsufficientFunds when the
// amount exceeds balance minus committed escrow; no partial debit occurs.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, currency string) (*models.Wallet, error) {
	w, err := s.lockAndCheck(ctx, tx, walletID, amountCents, currency)
	if err != nil {
		return nil, err
	}
	if amountCents > w.Available() {
		return nil, ErrInsufficientFunds
	}
	w.BalanceCents -= amountCents
	if err := s.apply(ctx, tx, w, models.WalletEntryDebit, amountCents, nil, nil, nil); err != nil {
		return nil, err
	}
	return w, nil
}

// Credit adds funds received from a counterparty.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, currency string, counterparty *uuid.UUID) (*models.Wallet, error) {
	w, err := s.lockAndCheck(ctx, tx, walletID, amountCents, currency)
	if err != nil {
		return nil, err
	}
	w.BalanceCents += amountCents
	if err := s.apply(ctx, tx, w, models.WalletEntryCredit, amountCents, counterparty, nil, nil); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error) {
	return s.Transactions.ListByWallet(ctx, walletID)
}

// Recompute rebuilds balance and held from the transaction log. Used by the
// reconciliation sweep to verify escrow conservation.
func (s *Service) Recompute(ctx context.Context, walletID uuid.UUID) (balanceCents, heldCents int64, err error) {
	entries, err := s.Transactions.ListByWallet(ctx, walletID)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		switch e.EntryType {
		case models.WalletEntryDeposit, models.WalletEntryCredit, models.WalletEntryEscrowRelIn:
			balanceCents += e.AmountCents
		case models.WalletEntryDebit, models.WalletEntryEscrowRelOut:
			balanceCents -= e.AmountCents
		}
		switch e.EntryType {
		case models.WalletEntryEscrowOpen:
			heldCents += e.AmountCents
		case models.WalletEntryEscrowRelOut, models.WalletEntryEscrowRefund:
			heldCents -= e.AmountCents
		}
	}
	return balanceCents, heldCents, nil
}

func (s *Service) lockAndCheck(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, currency string) (*models.Wallet, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	w, err := s.Wallets.GetByIDForUpdate(ctx, tx, walletID)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if currency != "" && currency != w.Currency {
		return nil, ErrCurrencyMismatch
	}
	return w, nil
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, w *models.Wallet, entryType string, amountCents int64, counterparty, taskID, projectID *uuid.UUID) error {
	if err := s.Wallets.SetBalances(ctx, tx, w.ID, w.BalanceCents, w.HeldCents); err != nil {
		return fmt.Errorf("set balances: %w", err)
	}
	return s.Transactions.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:                   uuid.New(),
		WalletID:             w.ID,
		EntryType:            entryType,
		AmountCents:          amountCents,
		CounterpartyWalletID: counterparty,
		TaskID:               taskID,
		ProjectID:            projectID,
		BalanceAfterCents:    w.BalanceCents,
	})
}
