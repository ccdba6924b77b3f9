package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Contract statuses. Transitions are monotonic and terminal once resolved;
// expiry is evaluated lazily against ExpiresAt on every read and transition.
const (
	ContractStatusPending  = "pending"
	ContractStatusAccepted = "accepted"
	ContractStatusRejected = "rejected"
	ContractStatusExpired  = "expired"
)

// Contract types (the tag of the terms union).
const (
	ContractTypeRoleAssignment   = "role_assignment"
	ContractTypeSubtaskHire      = "subtask_hire"
	ContractTypeProposalResponse = "proposal_response"
)

type Contract struct {
	ID          uuid.UUID       `json:"id"`
	SenderID    uuid.UUID       `json:"sender_id"`
	RecipientID uuid.UUID       `json:"recipient_id"`
	Type        string          `json:"type"`
	Terms       json.RawMessage `json:"terms"`
	Status      string          `json:"status"`
	ExpiresAt   time.Time       `json:"expires_at"`
	ResolvedBy  *uuid.UUID      `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Expired reports whether the contract's deadline has passed at t.
func (c *Contract) Expired(t time.Time) bool {
	return c.Status == ContractStatusPending && t.After(c.ExpiresAt)
}
