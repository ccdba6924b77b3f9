package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProjectStatusPlanning  = "planning"
	ProjectStatusActive    = "active"
	ProjectStatusOnHold    = "on-hold"
	ProjectStatusCompleted = "completed"
)

// Project member roles, in descending order of authority.
const (
	RoleOwner      = "owner"
	RoleSupervisor = "supervisor"
	RoleMember     = "member"
	RoleNone       = "none"
)

type Project struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Name        string     `json:"name"`
	BudgetCents int64      `json:"budget_cents"`
	Currency    string     `json:"currency"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ProjectMember struct {
	ProjectID uuid.UUID `json:"project_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	AddedAt   time.Time `json:"added_at"`
}

// CanReview reports whether a role may review proofs, assign tasks, and act
// on contracts for the project.
func CanReview(role string) bool {
	return role == RoleOwner || role == RoleSupervisor
}
