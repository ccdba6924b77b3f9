package projects

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/models"
)

type mockProjectRepo struct {
	projects map[uuid.UUID]*models.Project
	members  []*models.ProjectMember
}

func newMockProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{projects: make(map[uuid.UUID]*models.Project)}
}

func (m *mockProjectRepo) Create(_ context.Context, p *models.Project) error {
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *mockProjectRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjectRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	p, ok := m.projects[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.Status = status
	return nil
}

func (m *mockProjectRepo) AddMember(_ context.Context, mem *models.ProjectMember) error {
	cp := *mem
	m.members = append(m.members, &cp)
	return nil
}

func (m *mockProjectRepo) ListMembers(_ context.Context, projectID uuid.UUID) ([]*models.ProjectMember, error) {
	var out []*models.ProjectMember
	for _, mem := range m.members {
		if mem.ProjectID == projectID {
			cp := *mem
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockSummer struct{ committed int64 }

func (m *mockSummer) SumCommittedPricing(_ context.Context, _ uuid.UUID) (int64, error) {
	return m.committed, nil
}

func TestCreateEnrollsOwner(t *testing.T) {
	repo := newMockProjectRepo()
	svc := NewService(repo, &mockSummer{})
	owner := uuid.New()

	p, err := svc.Create(context.Background(), owner, "migration", 50000, "USD", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Status != models.ProjectStatusActive {
		t.Errorf("status: got %s, want active", p.Status)
	}

	members, _ := repo.ListMembers(context.Background(), p.ID)
	if len(members) != 1 || members[0].UserID != owner || members[0].Role != models.RoleOwner {
		t.Errorf("owner not enrolled: %+v", members)
	}

	if _, err := svc.Create(context.Background(), owner, "", 100, "USD", nil); !errors.Is(err, ErrInvalidProject) {
		t.Errorf("empty name: expected ErrInvalidProject, got %v", err)
	}
}

func TestAddMemberOwnerOnly(t *testing.T) {
	repo := newMockProjectRepo()
	svc := NewService(repo, &mockSummer{})
	owner, stranger, hire := uuid.New(), uuid.New(), uuid.New()
	p, _ := svc.Create(context.Background(), owner, "migration", 50000, "USD", nil)

	if _, err := svc.AddMember(context.Background(), stranger, p.ID, hire, models.RoleMember); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner: expected ErrNotOwner, got %v", err)
	}
	if _, err := svc.AddMember(context.Background(), owner, p.ID, hire, models.RoleOwner); !errors.Is(err, ErrInvalidProject) {
		t.Errorf("granting owner: expected ErrInvalidProject, got %v", err)
	}

	m, err := svc.AddMember(context.Background(), owner, p.ID, hire, models.RoleSupervisor)
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if m.Role != models.RoleSupervisor {
		t.Errorf("role: got %s, want supervisor", m.Role)
	}
}

func TestSetStatus(t *testing.T) {
	repo := newMockProjectRepo()
	svc := NewService(repo, &mockSummer{})
	owner := uuid.New()
	p, _ := svc.Create(context.Background(), owner, "migration", 50000, "USD", nil)

	if _, err := svc.SetStatus(context.Background(), uuid.New(), p.ID, models.ProjectStatusOnHold); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner: expected ErrNotOwner, got %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), owner, p.ID, "abandoned"); !errors.Is(err, ErrInvalidProject) {
		t.Errorf("unknown status: expected ErrInvalidProject, got %v", err)
	}

	updated, err := svc.SetStatus(context.Background(), owner, p.ID, models.ProjectStatusCompleted)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if updated.Status != models.ProjectStatusCompleted {
		t.Errorf("status: got %s, want completed", updated.Status)
	}
	stored, _ := repo.GetByID(context.Background(), p.ID)
	if stored.Status != models.ProjectStatusCompleted {
		t.Errorf("stored status: got %s, want completed", stored.Status)
	}
}

func TestRemainingBudget(t *testing.T) {
	repo := newMockProjectRepo()
	svc := NewService(repo, &mockSummer{committed: 30000})
	p, _ := svc.Create(context.Background(), uuid.New(), "migration", 50000, "USD", nil)

	remaining, err := svc.RemainingBudget(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("RemainingBudget: %v", err)
	}
	if remaining != 20000 {
		t.Errorf("remaining: got %d, want 20000", remaining)
	}
}
