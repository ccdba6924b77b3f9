package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet transaction entry types. The transaction log is append-only and is
// the only source used to recompute balances during reconciliation.
const (
	WalletEntryDeposit       = "deposit"
	WalletEntryDebit         = "debit"
	WalletEntryCredit        = "credit"
	WalletEntryEscrowOpen    = "escrow_open"
	WalletEntryEscrowRelOut  = "escrow_release_out"
	WalletEntryEscrowRelIn   = "escrow_release_in"
	WalletEntryEscrowRefund  = "escrow_refund"
)

// Wallet is the per-owner money account. BalanceCents is the total owned,
// escrowed funds included; HeldCents is the portion committed to active
// escrow holds. Available funds = BalanceCents - HeldCents.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      uuid.UUID `json:"owner_id"`
	Currency     string    `json:"currency"`
	BalanceCents int64     `json:"balance_cents"`
	HeldCents    int64     `json:"held_cents"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Available returns the spendable portion of the balance.
func (w *Wallet) Available() int64 { return w.BalanceCents - w.HeldCents }

type WalletTransaction struct {
	ID                   uuid.UUID  `json:"id"`
	WalletID             uuid.UUID  `json:"wallet_id"`
	EntryType            string     `json:"entry_type"`
	AmountCents          int64      `json:"amount_cents"`
	CounterpartyWalletID *uuid.UUID `json:"counterparty_wallet_id,omitempty"`
	TaskID               *uuid.UUID `json:"task_id,omitempty"`
	ProjectID            *uuid.UUID `json:"project_id,omitempty"`
	BalanceAfterCents    int64      `json:"balance_after_cents"`
	CreatedAt            time.Time  `json:"created_at"`
}
