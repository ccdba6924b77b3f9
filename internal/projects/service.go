package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workpact/backend/internal/models"
)

// ErrNotOwner is returned when membership changes are attempted by anyone
// but the project owner.
var ErrNotOwner = errors.New("actor is not the project owner")

// ErrInvalidProject is returned for malformed project input.
var ErrInvalidProject = errors.New("invalid project")

// ProjectRepo is the project store interface.
type ProjectRepo interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	AddMember(ctx context.Context, m *models.ProjectMember) error
	ListMembers(ctx context.Context, projectID uuid.UUID) ([]*models.ProjectMember, error)
}

// CommittedSummer reports total pricing already committed to a project's
// non-archived tasks.
type CommittedSummer interface {
	SumCommittedPricing(ctx context.Context, projectID uuid.UUID) (int64, error)
}

type Service struct {
	Projects ProjectRepo
	Tasks    CommittedSummer
}

func NewService(projects ProjectRepo, tasks CommittedSummer) *Service {
	return &Service{Projects: projects, Tasks: tasks}
}

// Create records the project and enrolls the creator as owner.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, name string, budgetCents int64, currency string, deadline *time.Time) (*models.Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProject)
	}
	if budgetCents < 0 {
		return nil, fmt.Errorf("%w: budget must not be negative", ErrInvalidProject)
	}
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidProject)
	}

	p := &models.Project{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        name,
		BudgetCents: budgetCents,
		Currency:    currency,
		Deadline:    deadline,
		Status:      models.ProjectStatusActive,
	}
	if err := s.Projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	if err := s.Projects.AddMember(ctx, &models.ProjectMember{
		ProjectID: p.ID,
		UserID:    ownerID,
		Role:      models.RoleOwner,
	}); err != nil {
		return nil, fmt.Errorf("enroll owner: %w", err)
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.Projects.GetByID(ctx, id)
}

// AddMember grants a role on the project. Owner only; the owner role itself
// is not grantable.
func (s *Service) AddMember(ctx context.Context, actorID, projectID, userID uuid.UUID, role string) (*models.ProjectMember, error) {
	p, err := s.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	if role != models.RoleSupervisor && role != models.RoleMember {
		return nil, fmt.Errorf("%w: role must be supervisor or member", ErrInvalidProject)
	}

	m := &models.ProjectMember{ProjectID: projectID, UserID: userID, Role: role}
	if err := s.Projects.AddMember(ctx, m); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return m, nil
}

// SetStatus moves the project between planning, active, on-hold, and
// completed. Owner only.
func (s *Service) SetStatus(ctx context.Context, actorID, projectID uuid.UUID, status string) (*models.Project, error) {
	switch status {
	case models.ProjectStatusPlanning, models.ProjectStatusActive,
		models.ProjectStatusOnHold, models.ProjectStatusCompleted:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidProject, status)
	}

	p, err := s.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, ErrNotOwner
	}
	if err := s.Projects.UpdateStatus(ctx, projectID, status); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	p.Status = status
	return p, nil
}

func (s *Service) ListMembers(ctx context.Context, projectID uuid.UUID) ([]*models.ProjectMember, error) {
	return s.Projects.ListMembers(ctx, projectID)
}

// RemainingBudget is the project budget minus pricing of non-archived tasks.
func (s *Service) RemainingBudget(ctx context.Context, projectID uuid.UUID) (int64, error) {
	p, err := s.Projects.GetByID(ctx, projectID)
	if err != nil {
		return 0, err
	}
	committed, err := s.Tasks.SumCommittedPricing(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return p.BudgetCents - committed, nil
}
