package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow hold statuses. A hold transitions exactly once out of held.
const (
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// EscrowHold earmarks wallet funds for a task or project. ContractID links
// the hold to the accepted contract that opened it, which is what makes
// contract-acceptance processing idempotent.
type EscrowHold struct {
	ID                  uuid.UUID  `json:"id"`
	ContractID          *uuid.UUID `json:"contract_id,omitempty"`
	WalletID            uuid.UUID  `json:"wallet_id"`
	DestinationWalletID *uuid.UUID `json:"destination_wallet_id,omitempty"`
	TaskID              *uuid.UUID `json:"task_id,omitempty"`
	ProjectID           *uuid.UUID `json:"project_id,omitempty"`
	AmountCents         int64      `json:"amount_cents"`
	Currency            string     `json:"currency"`
	Status              string     `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	ReleasedAt          *time.Time `json:"released_at,omitempty"`
}
