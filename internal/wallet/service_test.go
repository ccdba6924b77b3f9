package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for WalletRepo and TransactionRepo.
// These let us test the real ledger logic without a database.
// ---------------------------------------------------------------------------

type mockWalletRepo struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet
}

func newMockWalletRepo(ws ...*models.Wallet) *mockWalletRepo {
	m := &mockWalletRepo{wallets: make(map[uuid.UUID]*models.Wallet)}
	for _, w := range ws {
		cp := *w
		m.wallets[w.ID] = &cp
	}
	return m
}

func (m *mockWalletRepo) EnsureForOwner(_ context.Context, ownerID uuid.UUID, currency string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.OwnerID == ownerID {
			cp := *w
			return &cp, nil
		}
	}
	w := &models.Wallet{ID: uuid.New(), OwnerID: ownerID, Currency: currency}
	m.wallets[w.ID] = w
	cp := *w
	return &cp, nil
}

func (m *mockWalletRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, fmt.Errorf("wallet %s not found", id)
	}
	cp := *w
	return &cp, nil
}

func (m *mockWalletRepo) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Wallet, error) {
	return m.GetByID(context.Background(), id)
}

func (m *mockWalletRepo) SetBalances(_ context.Context, _ pgx.Tx, id uuid.UUID, balanceCents, heldCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return fmt.Errorf("wallet %s not found", id)
	}
	w.BalanceCents = balanceCents
	w.HeldCents = heldCents
	return nil
}

func (m *mockWalletRepo) state(id uuid.UUID) (int64, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wallets[id]
	return w.BalanceCents, w.HeldCents
}

// ---

type mockTransactionRepo struct {
	mu      sync.Mutex
	entries []*models.WalletTransaction
}

func (m *mockTransactionRepo) CreateTx(_ context.Context, _ pgx.Tx, t *models.WalletTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockTransactionRepo) ListByWallet(_ context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.WalletTransaction
	for _, e := range m.entries {
		if e.WalletID == walletID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTransactionRepo) byType(entryType string) []*models.WalletTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.WalletTransaction
	for _, e := range m.entries {
		if e.EntryType == entryType {
			out = append(out, e)
		}
	}
	return out
}

func wal(id uuid.UUID, balance, held int64) *models.Wallet {
	return &models.Wallet{ID: id, OwnerID: uuid.New(), Currency: "USD", BalanceCents: balance, HeldCents: held}
}

// ---------------------------------------------------------------------------
// 1. Deposit
// ---------------------------------------------------------------------------

func TestDeposit(t *testing.T) {
	walletID := uuid.New()
	wallets := newMockWalletRepo(wal(walletID, 0, 0))
	txs := &mockTransactionRepo{}
	svc := NewService(wallets, txs)

	ctx := context.Background()
	w, err := svc.Deposit(ctx, nil, walletID, 500, "USD")
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if w.BalanceCents != 500 {
		t.Errorf("balance after deposit: got %d, want 500", w.BalanceCents)
	}

	deposits := txs.byType(models.WalletEntryDeposit)
	if len(deposits) != 1 {
		t.Fatalf("deposit entries: got %d, want 1", len(deposits))
	}
	if deposits[0].BalanceAfterCents != 500 {
		t.Errorf("balance_after on entry: got %d, want 500", deposits[0].BalanceAfterCents)
	}

	if _, err := svc.Deposit(ctx, nil, walletID, 0, "USD"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero deposit: expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.Deposit(ctx, nil, walletID, 100, "EUR"); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("wrong currency: expected ErrCurrencyMismatch, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// 2. Debit respects held funds: only balance - held is spendable.
// ---------------------------------------------------------------------------

func TestDebitRespectsHeldFunds(t *testing.T) {
	walletID := uuid.New()
	wallets := newMockWalletRepo(wal(walletID, 1000, 700))
	txs := &mockTransactionRepo{}
	svc := NewService(wallets, txs)

	ctx := context.Background()

	// Only 300 is available.
	if _, err := svc.Debit(ctx, nil, walletID, 400, "USD"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("over-available debit: expected ErrInsufficientFunds, got %v", err)
	}

	// Balance must be untouched after the failed debit.
	if balance, held := wallets.state(walletID); balance != 1000 || held != 700 {
		t.Errorf("wallet after failed debit: got balance %d held %d, want 1000/700", balance, held)
	}

	w, err := svc.Debit(ctx, nil, walletID, 300, "USD")
	if err != nil {
		t.Fatalf("exact-available debit: %v", err)
	}
	if w.BalanceCents != 700 || w.Available() != 0 {
		t.Errorf("after debit: got balance %d available %d, want 700/0", w.BalanceCents, w.Available())
	}
}

// ---------------------------------------------------------------------------
// 3. Recompute rebuilds balances from the log alone.
// ---------------------------------------------------------------------------

func TestRecomputeMatchesBalances(t *testing.T) {
	walletID := uuid.New()
	wallets := newMockWalletRepo(wal(walletID, 0, 0))
	txs := &mockTransactionRepo{}
	svc := NewService(wallets, txs)

	ctx := context.Background()
	if _, err := svc.Deposit(ctx, nil, walletID, 1000, "USD"); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := svc.Debit(ctx, nil, walletID, 250, "USD"); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if _, err := svc.Credit(ctx, nil, walletID, 100, "USD", nil); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	balance, held, err := svc.Recompute(ctx, walletID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	gotBalance, gotHeld := wallets.state(walletID)
	if balance != gotBalance || held != gotHeld {
		t.Errorf("recomputed %d/%d does not match stored %d/%d", balance, held, gotBalance, gotHeld)
	}
	if balance != 850 {
		t.Errorf("recomputed balance: got %d, want 850", balance)
	}
}
