package escrow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/models"
)

// ErrInsufficientFunds is returned when a wallet's available balance is too
// low for the requested hold.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrHoldNotActive is returned when releasing or refunding a hold that has
// already been resolved.
var ErrHoldNotActive = errors.New("escrow hold is not active")

// ErrCurrencyMismatch is returned when the hold currency differs from the
// wallet's.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// ErrInvalidAmount is returned for zero or negative hold amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// WalletRepo is the minimal wallet interface for escrow accounting.
type WalletRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Wallet, error)
	SetBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, balanceCents, heldCents int64) error
}

// TransactionRepo appends wallet transaction records.
type TransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.WalletTransaction) error
}

// HoldRepo is the escrow hold store.
type HoldRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, h *models.EscrowHold) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowHold, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.EscrowHold, error)
	GetByContractID(ctx context.Context, contractID uuid.UUID) (*models.EscrowHold, error)
	GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*models.EscrowHold, error)
	Resolve(ctx context.Context, tx pgx.Tx, id uuid.UUID, toStatus string, destWalletID *uuid.UUID, releasedAt time.Time) (bool, error)
}

// Service creates, tracks, and resolves escrow holds against wallets. Funds
// stay on the source wallet while held; only held_cents moves on open, so a
// refund restores the pre-open available balance exactly.
type Service struct {
	Wallets      WalletRepo
	Transactions TransactionRepo
	Holds        HoldRepo
}

func NewService(wallets WalletRepo, transactions TransactionRepo, holds HoldRepo) *Service {
	return &Service{Wallets: wallets, Transactions: transactions, Holds: holds}
}

// Open earmarks amountCents on the wallet for a task or project. The wallet
// row lock serializes concurrent opens, so two holds can never jointly exceed
// the available balance. Call within a transaction.
func (s *Service) Open(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, currency string, contractID, taskID, projectID *uuid.UUID) (*models.EscrowHold, error) {
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
	if amountCents > w.Available() {
		return nil, ErrInsufficientFunds
	}

	w.HeldCents += amountCents
	if err := s.Wallets.SetBalances(ctx, tx, w.ID, w.BalanceCents, w.HeldCents); err != nil {
		return nil, fmt.Errorf("set balances: %w", err)
	}

	hold := &models.EscrowHold{
		ID:          uuid.New(),
		ContractID:  contractID,
		WalletID:    walletID,
		TaskID:      taskID,
		ProjectID:   projectID,
		AmountCents: amountCents,
		Currency:    w.Currency,
		Status:      models.EscrowStatusHeld,
	}
	if err := s.Holds.CreateTx(ctx, tx, hold); err != nil {
		return nil, fmt.Errorf("create hold: %w", err)
	}

	if err := s.Transactions.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:                uuid.New(),
		WalletID:          walletID,
		EntryType:         models.WalletEntryEscrowOpen,
		AmountCents:       amountCents,
		TaskID:            taskID,
		ProjectID:         projectID,
		BalanceAfterCents: w.BalanceCents,
	}); err != nil {
		return nil, err
	}
	return hold, nil
}

// Release pays the earmarked funds out to the destination wallet and marks
// the hold released. Nothing further is debited beyond the earmarked amount.
// Wallets are locked in deterministic UUID order to avoid deadlock. Call
// within the transaction that also writes the task's paid transition.
func (s *Service) Release(ctx context.Context, tx pgx.Tx, holdID, destWalletID uuid.UUID) error {
	hold, err := s.Holds.GetByIDForUpdate(ctx, tx, holdID)
	if err != nil {
		return fmt.Errorf("lock hold: %w", err)
	}
	if hold.Status != models.EscrowStatusHeld {
		return ErrHoldNotActive
	}

	now := time.Now().UTC()
	ok, err := s.Holds.Resolve(ctx, tx, holdID, models.EscrowStatusReleased, &destWalletID, now)
	if err != nil {
		return fmt.Errorf("resolve hold: %w", err)
	}
	if !ok {
		return ErrHoldNotActive
	}

	if hold.WalletID == destWalletID {
		// Self-release: the funds never leave the wallet, only the earmark does.
		w, err := s.Wallets.GetByIDForUpdate(ctx, tx, hold.WalletID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		w.HeldCents -= hold.AmountCents
		if err := s.Wallets.SetBalances(ctx, tx, w.ID, w.BalanceCents, w.HeldCents); err != nil {
			return err
		}
		return s.appendEntry(ctx, tx, w, models.WalletEntryEscrowRefund, hold, nil)
	}

	// Lock both wallets in deterministic order.
	ids := []uuid.UUID{hold.WalletID, destWalletID}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	locked := make(map[uuid.UUID]*models.Wallet, 2)
	for _, id := range ids {
		w, err := s.Wallets.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		locked[id] = w
	}

	src, dst := locked[hold.WalletID], locked[destWalletID]
	src.BalanceCents -= hold.AmountCents
	src.HeldCents -= hold.AmountCents
	if err := s.Wallets.SetBalances(ctx, tx, src.ID, src.BalanceCents, src.HeldCents); err != nil {
		return err
	}
	if err := s.appendEntry(ctx, tx, src, models.WalletEntryEscrowRelOut, hold, &dst.ID); err != nil {
		return err
	}

	dst.BalanceCents += hold.AmountCents
	if err := s.Wallets.SetBalances(ctx, tx, dst.ID, dst.BalanceCents, dst.HeldCents); err != nil {
		return err
	}
	return s.appendEntry(ctx, tx, dst, models.WalletEntryEscrowRelIn, hold, &src.ID)
}

// Refund removes the earmark and returns the hold's amount to the owner's
// available balance, used when a task or project is cancelled before
// settlement. Call within a transaction.
func (s *Service) Refund(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) error {
	hold, err := s.Holds.GetByIDForUpdate(ctx, tx, holdID)
	if err != nil {
		return fmt.Errorf("lock hold: %w", err)
	}
	if hold.Status != models.EscrowStatusHeld {
		return ErrHoldNotActive
	}

	ok, err := s.Holds.Resolve(ctx, tx, holdID, models.EscrowStatusRefunded, nil, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolve hold: %w", err)
	}
	if !ok {
		return ErrHoldNotActive
	}

	w, err := s.Wallets.GetByIDForUpdate(ctx, tx, hold.WalletID)
	if err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}
	w.HeldCents -= hold.AmountCents
	if err := s.Wallets.SetBalances(ctx, tx, w.ID, w.BalanceCents, w.HeldCents); err != nil {
		return err
	}
	return s.appendEntry(ctx, tx, w, models.WalletEntryEscrowRefund, hold, nil)
}

// GetByContractID reports the hold opened for a contract, nil if none.
func (s *Service) GetByContractID(ctx context.Context, contractID uuid.UUID) (*models.EscrowHold, error) {
	return s.Holds.GetByContractID(ctx, contractID)
}

// GetActiveByTask reports the held hold for a task, nil if none.
func (s *Service) GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*models.EscrowHold, error) {
	return s.Holds.GetActiveByTask(ctx, taskID)
}

func (s *Service) Get(ctx context.Context, holdID uuid.UUID) (*models.EscrowHold, error) {
	return s.Holds.GetByID(ctx, holdID)
}

func (s *Service) appendEntry(ctx context.Context, tx pgx.Tx, w *models.Wallet, entryType string, hold *models.EscrowHold, counterparty *uuid.UUID) error {
	return s.Transactions.CreateTx(ctx, tx, &models.WalletTransaction{
		ID:                   uuid.New(),
		WalletID:             w.ID,
		EntryType:            entryType,
		AmountCents:          hold.AmountCents,
		CounterpartyWalletID: counterparty,
		TaskID:               hold.TaskID,
		ProjectID:            hold.ProjectID,
		BalanceAfterCents:    w.BalanceCents,
	})
}
