package models

import (
	"time"

	"github.com/google/uuid"
)

// Task statuses. done and paid are terminal; paid additionally requires the
// task's escrow hold to have been released.
const (
	TaskStatusTodo              = "todo"
	TaskStatusInProgress        = "in-progress"
	TaskStatusPendingValidation = "pending-validation"
	TaskStatusDone              = "done"
	TaskStatusPaid              = "paid"
)

// Payment status of a task's pricing.
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

const (
	TaskVisibilityPrivate = "private"
	TaskVisibilityPublic  = "public"
)

const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

type Task struct {
	ID             uuid.UUID  `json:"id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	AssigneeID     *uuid.UUID `json:"assignee_id,omitempty"`
	TaskAdminID    *uuid.UUID `json:"task_admin_id,omitempty"`
	Priority       string     `json:"priority"`
	AmountCents    int64      `json:"amount_cents"`
	Currency       string     `json:"currency"`
	PaymentStatus  string     `json:"payment_status"`
	Status         string     `json:"status"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	EstimatedHours *int       `json:"estimated_hours,omitempty"`
	Visibility     string     `json:"visibility"`
	Version        int        `json:"version"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Terminal reports whether no further lifecycle transition is allowed.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusDone || t.Status == TaskStatusPaid
}
