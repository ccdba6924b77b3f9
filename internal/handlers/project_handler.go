package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/workpact/backend/internal/middleware"
	"github.com/workpact/backend/internal/models"
)

// ProjectService is the project surface the handler drives.
type ProjectService interface {
	Create(ctx context.Context, ownerID uuid.UUID, name string, budgetCents int64, currency string, deadline *time.Time) (*models.Project, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	AddMember(ctx context.Context, actorID, projectID, userID uuid.UUID, role string) (*models.ProjectMember, error)
	ListMembers(ctx context.Context, projectID uuid.UUID) ([]*models.ProjectMember, error)
	RemainingBudget(ctx context.Context, projectID uuid.UUID) (int64, error)
	SetStatus(ctx context.Context, actorID, projectID uuid.UUID, status string) (*models.Project, error)
}

// ProjectHandler serves /v1/projects endpoints.
type ProjectHandler struct {
	Projects ProjectService
	Logger   *slog.Logger
}

type createProjectRequest struct {
	Name        string  `json:"name"`
	BudgetCents int64   `json:"budget_cents"`
	Currency    string  `json:"currency"`
	Deadline    *string `json:"deadline"`
}

type projectResponse struct {
	ID                   string `json:"id"`
	OwnerID              string `json:"owner_id"`
	Name                 string `json:"name"`
	BudgetCents          int64  `json:"budget_cents"`
	RemainingBudgetCents *int64 `json:"remaining_budget_cents,omitempty"`
	Currency             string `json:"currency"`
	Status               string `json:"status"`
}

// Create handles POST /v1/projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var deadline *time.Time
	if req.Deadline != nil {
		d, err := time.Parse("2006-01-02", *req.Deadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid deadline")
			return
		}
		deadline = &d
	}
	p, err := h.Projects.Create(r.Context(), actor, req.Name, req.BudgetCents, req.Currency, deadline)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectToResponse(p, nil))
}

// Get handles GET /v1/projects/{id}, including the remaining budget.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	p, err := h.Projects.Get(r.Context(), projectID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	remaining, err := h.Projects.RemainingBudget(r.Context(), projectID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, projectToResponse(p, &remaining))
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles POST /v1/projects/{id}/status.
func (h *ProjectHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	projectID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, err := h.Projects.SetStatus(r.Context(), actor, projectID, req.Status)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, projectToResponse(p, nil))
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// AddMember handles POST /v1/projects/{id}/members.
func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	projectID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	m, err := h.Projects.AddMember(r.Context(), actor, projectID, userID, req.Role)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"project_id": m.ProjectID.String(),
		"user_id":    m.UserID.String(),
		"role":       m.Role,
	})
}

// ListMembers handles GET /v1/projects/{id}/members.
func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	members, err := h.Projects.ListMembers(r.Context(), projectID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	resp := make([]map[string]string, 0, len(members))
	for _, m := range members {
		resp = append(resp, map[string]string{
			"user_id": m.UserID.String(),
			"role":    m.Role,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func projectToResponse(p *models.Project, remaining *int64) projectResponse {
	return projectResponse{
		ID:                   p.ID.String(),
		OwnerID:              p.OwnerID.String(),
		Name:                 p.Name,
		BudgetCents:          p.BudgetCents,
		RemainingBudgetCents: remaining,
		Currency:             p.Currency,
		Status:               p.Status,
	}
}
