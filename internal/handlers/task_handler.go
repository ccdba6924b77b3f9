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
	"github.com/workpact/backend/internal/tasks"
)

// TaskService is the lifecycle surface the handler drives.
type TaskService interface {
	Create(ctx context.Context, actorID uuid.UUID, in tasks.CreateInput) (*models.Task, error)
	CreateBulk(ctx context.Context, actorID, projectID uuid.UUID, inputs []tasks.CreateInput) ([]*models.Task, error)
	Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error)
	Assign(ctx context.Context, taskID, assigneeID, actorID uuid.UUID) (*models.Task, error)
	Reassign(ctx context.Context, taskID, newAssigneeID, actorID uuid.UUID) (*models.Task, error)
	Unassign(ctx context.Context, taskID, actorID uuid.UUID) (*models.Task, *models.EscrowHold, error)
	SubmitProof(ctx context.Context, taskID, submitterID uuid.UUID, evidence []models.EvidenceItem, notes string) (*models.ProofOfTask, *models.Task, error)
	ReviewProof(ctx context.Context, taskID uuid.UUID, decision string, reviewerID uuid.UUID) (*models.Task, *models.ProofOfTask, error)
	ListProofs(ctx context.Context, taskID uuid.UUID) ([]*models.ProofOfTask, error)
}

// Settler consumes proof approvals and settles payment.
type Settler interface {
	HandleProofApproved(ctx context.Context, taskID uuid.UUID) error
}

// TaskHandler serves /v1/tasks endpoints.
type TaskHandler struct {
	Tasks   TaskService
	Settler Settler
	Logger  *slog.Logger
}

type createTaskRequest struct {
	ProjectID      string  `json:"project_id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Priority       string  `json:"priority"`
	AmountCents    int64   `json:"amount_cents"`
	Currency       string  `json:"currency"`
	DueDate        *string `json:"due_date"`
	EstimatedHours *int    `json:"estimated_hours"`
	Visibility     string  `json:"visibility"`
	TaskAdminID    *string `json:"task_admin_id"`
}

type taskResponse struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"project_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	Priority      string  `json:"priority"`
	AmountCents   int64   `json:"amount_cents"`
	Currency      string  `json:"currency"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
	Version       int     `json:"version"`
}

// Create handles POST /v1/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.Tasks.Create(r.Context(), actor, in)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskToResponse(t))
}

type bulkCreateRequest struct {
	ProjectID string              `json:"project_id"`
	Tasks     []createTaskRequest `json:"tasks"`
}

// CreateBulk handles POST /v1/tasks/bulk. The batch budget is validated as a
// whole, so a batch that jointly exceeds the remaining budget fails entirely.
func (h *TaskHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req bulkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project_id")
		return
	}
	if len(req.Tasks) == 0 {
		writeError(w, http.StatusBadRequest, "tasks must not be empty")
		return
	}

	inputs := make([]tasks.CreateInput, 0, len(req.Tasks))
	for _, item := range req.Tasks {
		item.ProjectID = req.ProjectID
		in, err := item.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		inputs = append(inputs, in)
	}

	created, err := h.Tasks.CreateBulk(r.Context(), actor, projectID, inputs)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	resp := make([]taskResponse, 0, len(created))
	for _, t := range created {
		resp = append(resp, taskToResponse(t))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /v1/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	t, err := h.Tasks.Get(r.Context(), taskID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(t))
}

// ListByProject handles GET /v1/projects/{id}/tasks.
func (h *TaskHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	list, err := h.Tasks.ListByProject(r.Context(), projectID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	resp := make([]taskResponse, 0, len(list))
	for _, t := range list {
		resp = append(resp, taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

type assignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// Assign handles POST /v1/tasks/{id}/assign.
func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	h.reassignLike(w, r, h.Tasks.Assign)
}

// Reassign handles POST /v1/tasks/{id}/reassign.
func (h *TaskHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	h.reassignLike(w, r, h.Tasks.Reassign)
}

func (h *TaskHandler) reassignLike(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, taskID, assigneeID, actorID uuid.UUID) (*models.Task, error)) {
	actor := middleware.ActorFromCtx(r.Context())
	taskID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	assigneeID, err := uuid.Parse(req.AssigneeID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid assignee_id")
		return
	}
	t, err := fn(r.Context(), taskID, assigneeID, actor)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(t))
}

type unassignResponse struct {
	Task     taskResponse `json:"task"`
	OpenHold *string      `json:"open_hold_id,omitempty"`
}

// Unassign handles POST /v1/tasks/{id}/unassign. Any still-open hold is
// reported, not refunded; refunding is a separate explicit call.
func (h *TaskHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	taskID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	t, hold, err := h.Tasks.Unassign(r.Context(), taskID, actor)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	resp := unassignResponse{Task: taskToResponse(t)}
	if hold != nil {
		s := hold.ID.String()
		resp.OpenHold = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitProofRequest struct {
	Evidence []models.EvidenceItem `json:"evidence"`
	Notes    string                `json:"notes"`
}

type proofResponse struct {
	ID          string                `json:"id"`
	TaskID      string                `json:"task_id"`
	SubmitterID string                `json:"submitter_id"`
	Evidence    []models.EvidenceItem `json:"evidence"`
	Notes       string                `json:"notes,omitempty"`
	Decision    *string               `json:"decision"`
}

// SubmitProof handles POST /v1/tasks/{id}/proof.
func (h *TaskHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	taskID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req submitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, t, err := h.Tasks.SubmitProof(r.Context(), taskID, actor, req.Evidence, req.Notes)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"proof": proofToResponse(p),
		"task":  taskToResponse(t),
	})
}

type reviewRequest struct {
	Decision string `json:"decision"`
}

// Review handles POST /v1/tasks/{id}/review. Approval triggers settlement;
// if settlement fails the review stands and payment stays pending, so the
// response is 202 rather than an error.
func (h *TaskHandler) Review(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	taskID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	t, p, err := h.Tasks.ReviewProof(r.Context(), taskID, req.Decision, actor)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}

	if req.Decision == models.ProofDecisionApproved {
		if err := h.Settler.HandleProofApproved(r.Context(), taskID); err != nil {
			h.Logger.Error("settlement failed after approval", "task_id", taskID, "error", err)
			writeJSON(w, http.StatusAccepted, map[string]any{
				"task":  taskToResponse(t),
				"proof": proofToResponse(p),
				"note":  "approved, payment pending retry",
			})
			return
		}
		// Re-read for the post-settlement paid status.
		if settled, err := h.Tasks.Get(r.Context(), taskID); err == nil {
			t = settled
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":  taskToResponse(t),
		"proof": proofToResponse(p),
	})
}

// ListProofs handles GET /v1/tasks/{id}/proofs.
func (h *TaskHandler) ListProofs(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	list, err := h.Tasks.ListProofs(r.Context(), taskID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	resp := make([]proofResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, proofToResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r createTaskRequest) toInput() (tasks.CreateInput, error) {
	projectID, err := uuid.Parse(r.ProjectID)
	if err != nil {
		return tasks.CreateInput{}, err
	}
	in := tasks.CreateInput{
		ProjectID:      projectID,
		Title:          r.Title,
		Description:    r.Description,
		Priority:       r.Priority,
		AmountCents:    r.AmountCents,
		Currency:       r.Currency,
		EstimatedHours: r.EstimatedHours,
		Visibility:     r.Visibility,
	}
	if r.DueDate != nil {
		due, err := time.Parse("2006-01-02", *r.DueDate)
		if err != nil {
			return tasks.CreateInput{}, err
		}
		in.DueDate = &due
	}
	if r.TaskAdminID != nil {
		adminID, err := uuid.Parse(*r.TaskAdminID)
		if err != nil {
			return tasks.CreateInput{}, err
		}
		in.TaskAdminID = &adminID
	}
	return in, nil
}

func taskToResponse(t *models.Task) taskResponse {
	resp := taskResponse{
		ID:            t.ID.String(),
		ProjectID:     t.ProjectID.String(),
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		PaymentStatus: t.PaymentStatus,
		Priority:      t.Priority,
		AmountCents:   t.AmountCents,
		Currency:      t.Currency,
		Version:       t.Version,
	}
	if t.AssigneeID != nil {
		s := t.AssigneeID.String()
		resp.AssigneeID = &s
	}
	return resp
}

func proofToResponse(p *models.ProofOfTask) proofResponse {
	return proofResponse{
		ID:          p.ID.String(),
		TaskID:      p.TaskID.String(),
		SubmitterID: p.SubmitterID.String(),
		Evidence:    p.Evidence,
		Notes:       p.Notes,
		Decision:    p.Decision,
	}
}
