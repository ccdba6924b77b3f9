package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workpact/backend/internal/models"
)

// ErrInvalidTerms is returned when a terms payload is malformed or
// inconsistent with the referenced task or project.
var ErrInvalidTerms = errors.New("invalid contract terms")

// Terms is the tagged union of contract terms, keyed by contract type. Each
// variant carries only the fields its type requires and is validated at
// construction, never at point of use.
type Terms interface {
	Kind() string
	validate() error
}

// RoleAssignmentTerms grants the recipient a role on a project.
type RoleAssignmentTerms struct {
	ProjectID uuid.UUID
	Role      string
}

func (RoleAssignmentTerms) Kind() string { return models.ContractTypeRoleAssignment }

func (t RoleAssignmentTerms) validate() error {
	if t.ProjectID == uuid.Nil {
		return fmt.Errorf("%w: role assignment requires projectId", ErrInvalidTerms)
	}
	switch t.Role {
	case models.RoleSupervisor, models.RoleMember:
		return nil
	}
	return fmt.Errorf("%w: role must be supervisor or member, got %q", ErrInvalidTerms, t.Role)
}

// SubtaskHireTerms hires the recipient to execute an existing task for an
// agreed budget. The budget sizes the escrow hold opened on acceptance.
type SubtaskHireTerms struct {
	TaskID      uuid.UUID
	BudgetCents int64
	Currency    string
	Deadline    *time.Time
}

func (SubtaskHireTerms) Kind() string { return models.ContractTypeSubtaskHire }

func (t SubtaskHireTerms) validate() error {
	if t.TaskID == uuid.Nil {
		return fmt.Errorf("%w: sub-task hire requires taskId", ErrInvalidTerms)
	}
	if t.BudgetCents <= 0 {
		return fmt.Errorf("%w: budget must be positive", ErrInvalidTerms)
	}
	if t.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidTerms)
	}
	return nil
}

// ProposalResponseTerms commits the recipient to a project engagement with an
// agreed budget, escrowed at project scope on acceptance.
type ProposalResponseTerms struct {
	ProjectID   uuid.UUID
	BudgetCents int64
	Currency    string
	Deadline    *time.Time
}

func (ProposalResponseTerms) Kind() string { return models.ContractTypeProposalResponse }

func (t ProposalResponseTerms) validate() error {
	if t.ProjectID == uuid.Nil {
		return fmt.Errorf("%w: proposal response requires projectId", ErrInvalidTerms)
	}
	if t.BudgetCents <= 0 {
		return fmt.Errorf("%w: budget must be positive", ErrInvalidTerms)
	}
	if t.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidTerms)
	}
	return nil
}

// termsWire is the JSON envelope for contract terms. Budget is in minor
// units (cents); deadline is an ISO date.
type termsWire struct {
	ProjectID *uuid.UUID `json:"projectId,omitempty"`
	TaskID    *uuid.UUID `json:"taskId,omitempty"`
	Role      string     `json:"role,omitempty"`
	Budget    int64      `json:"budget,omitempty"`
	Currency  string     `json:"currency,omitempty"`
	Deadline  string     `json:"deadline,omitempty"`
}

// ParseTerms decodes and validates a terms payload for the given contract
// type. Unknown types and structurally invalid payloads fail with
// ErrInvalidTerms.
func ParseTerms(contractType string, raw json.RawMessage) (Terms, error) {
	var w termsWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTerms, err)
	}

	var deadline *time.Time
	if w.Deadline != "" {
		d, err := time.Parse("2006-01-02", w.Deadline)
		if err != nil {
			return nil, fmt.Errorf("%w: deadline must be an ISO date: %v", ErrInvalidTerms, err)
		}
		deadline = &d
	}

	var t Terms
	switch contractType {
	case models.ContractTypeRoleAssignment:
		if w.ProjectID == nil {
			return nil, fmt.Errorf("%w: role assignment requires projectId", ErrInvalidTerms)
		}
		t = RoleAssignmentTerms{ProjectID: *w.ProjectID, Role: w.Role}
	case models.ContractTypeSubtaskHire:
		if w.TaskID == nil {
			return nil, fmt.Errorf("%w: sub-task hire requires taskId", ErrInvalidTerms)
		}
		if w.ProjectID != nil {
			return nil, fmt.Errorf("%w: a contract references at most one task or project", ErrInvalidTerms)
		}
		t = SubtaskHireTerms{TaskID: *w.TaskID, BudgetCents: w.Budget, Currency: w.Currency, Deadline: deadline}
	case models.ContractTypeProposalResponse:
		if w.ProjectID == nil {
			return nil, fmt.Errorf("%w: proposal response requires projectId", ErrInvalidTerms)
		}
		if w.TaskID != nil {
			return nil, fmt.Errorf("%w: a contract references at most one task or project", ErrInvalidTerms)
		}
		t = ProposalResponseTerms{ProjectID: *w.ProjectID, BudgetCents: w.Budget, Currency: w.Currency, Deadline: deadline}
	default:
		return nil, fmt.Errorf("%w: unknown contract type %q", ErrInvalidTerms, contractType)
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// EncodeTerms renders a validated terms value back to its wire envelope for
// persistence.
func EncodeTerms(t Terms) (json.RawMessage, error) {
	var w termsWire
	switch v := t.(type) {
	case RoleAssignmentTerms:
		w.ProjectID = &v.ProjectID
		w.Role = v.Role
	case SubtaskHireTerms:
		w.TaskID = &v.TaskID
		w.Budget = v.BudgetCents
		w.Currency = v.Currency
		if v.Deadline != nil {
			w.Deadline = v.Deadline.Format("2006-01-02")
		}
	case ProposalResponseTerms:
		w.ProjectID = &v.ProjectID
		w.Budget = v.BudgetCents
		w.Currency = v.Currency
		if v.Deadline != nil {
			w.Deadline = v.Deadline.Format("2006-01-02")
		}
	default:
		return nil, fmt.Errorf("%w: unknown terms variant %T", ErrInvalidTerms, t)
	}
	return json.Marshal(w)
}
