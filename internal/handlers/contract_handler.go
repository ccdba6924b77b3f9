package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/workpact/backend/internal/escrow"
	"github.com/workpact/backend/internal/middleware"
	"github.com/workpact/backend/internal/models"
	"github.com/workpact/backend/internal/orchestrator"
)

// ContractService is the negotiation surface the handler drives.
type ContractService interface {
	Offer(ctx context.Context, senderID, recipientID uuid.UUID, contractType string, rawTerms json.RawMessage, expiresInDays int) (*models.Contract, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	Accept(ctx context.Context, contractID, actorID uuid.UUID) (*models.Contract, error)
	Reject(ctx context.Context, contractID, actorID uuid.UUID) (*models.Contract, error)
	Cancel(ctx context.Context, contractID, actorID uuid.UUID) (*models.Contract, error)
	ListByParty(ctx context.Context, partyID uuid.UUID) ([]*models.Contract, error)
}

// Fulfiller consumes contract acceptance events.
type Fulfiller interface {
	HandleContractAccepted(ctx context.Context, contractID uuid.UUID) error
}

// ContractHandler serves /v1/contracts endpoints.
type ContractHandler struct {
	Contracts ContractService
	Fulfiller Fulfiller
	Logger    *slog.Logger
}

type offerContractRequest struct {
	RecipientID   string          `json:"recipient_id"`
	Type          string          `json:"type"`
	Terms         json.RawMessage `json:"terms"`
	ExpiresInDays int             `json:"expires_in_days"`
}

type contractResponse struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"sender_id"`
	RecipientID string          `json:"recipient_id"`
	Type        string          `json:"type"`
	Terms       json.RawMessage `json:"terms"`
	Status      string          `json:"status"`
	ExpiresAt   string          `json:"expires_at"`
	ResolvedBy  *string         `json:"resolved_by,omitempty"`
}

// Offer handles POST /v1/contracts.
func (h *ContractHandler) Offer(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req offerContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient_id")
		return
	}

	c, err := h.Contracts.Offer(r.Context(), actor, recipientID, req.Type, req.Terms, req.ExpiresInDays)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, contractToResponse(c))
}

// Accept handles POST /v1/contracts/{id}/accept. Acceptance is recorded
// first; fulfillment runs after and its failure does not un-accept the
// contract, it is surfaced to the caller and retryable.
func (h *ContractHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	contractID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid contract id")
		return
	}

	c, err := h.Contracts.Accept(r.Context(), contractID, actor)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}

	if err := h.Fulfiller.HandleContractAccepted(r.Context(), c.ID); err != nil {
		if errors.Is(err, escrow.ErrInsufficientFunds) {
			writeError(w, http.StatusPaymentRequired, "accepted, but escrow funding failed: insufficient funds")
			return
		}
		if errors.Is(err, orchestrator.ErrNotAssignable) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.Logger.Error("fulfillment failed after acceptance", "contract_id", c.ID, "error", err)
		// Accepted but unfulfilled; a retry of acceptance processing picks it up.
		writeJSON(w, http.StatusAccepted, contractToResponse(c))
		return
	}
	writeJSON(w, http.StatusOK, contractToResponse(c))
}

// Reject handles POST /v1/contracts/{id}/reject.
func (h *ContractHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.Contracts.Reject)
}

// Cancel handles POST /v1/contracts/{id}/cancel, the sender's withdrawal.
func (h *ContractHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.Contracts.Cancel)
}

// Get handles GET /v1/contracts/{id}.
func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	contractID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid contract id")
		return
	}
	c, err := h.Contracts.Get(r.Context(), contractID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, contractToResponse(c))
}

// List handles GET /v1/contracts, returning contracts the actor is party to.
func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	list, err := h.Contracts.ListByParty(r.Context(), actor)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	resp := make([]contractResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, contractToResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ContractHandler) resolve(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, contractID, actorID uuid.UUID) (*models.Contract, error)) {
	actor := middleware.ActorFromCtx(r.Context())
	contractID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid contract id")
		return
	}
	c, err := fn(r.Context(), contractID, actor)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, contractToResponse(c))
}

func contractToResponse(c *models.Contract) contractResponse {
	resp := contractResponse{
		ID:          c.ID.String(),
		SenderID:    c.SenderID.String(),
		RecipientID: c.RecipientID.String(),
		Type:        c.Type,
		Terms:       c.Terms,
		Status:      c.Status,
		ExpiresAt:   c.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if c.ResolvedBy != nil {
		s := c.ResolvedBy.String()
		resp.ResolvedBy = &s
	}
	return resp
}
