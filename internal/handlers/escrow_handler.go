package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/middleware"
	"github.com/workpact/backend/internal/models"
	"github.com/workpact/backend/internal/orchestrator"
)

// EscrowService is the holder surface the handler drives.
type EscrowService interface {
	Get(ctx context.Context, holdID uuid.UUID) (*models.EscrowHold, error)
	Refund(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) error
}

// WalletReader resolves wallet ownership for the refund authorization check.
type WalletReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
}

// TaskRefunder wraps a task-scoped refund in the active-hold lookup and the
// commit boundary.
type TaskRefunder interface {
	RefundForTask(ctx context.Context, taskID uuid.UUID, refund func(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) error) error
}

// EscrowHandler serves /v1/escrow endpoints.
type EscrowHandler struct {
	Pool     TxBeginner
	Escrow   EscrowService
	Wallets  WalletReader
	Refunder TaskRefunder
	Logger   *slog.Logger
}

type holdResponse struct {
	ID            string  `json:"id"`
	WalletID      string  `json:"wallet_id"`
	ContractID    *string `json:"contract_id,omitempty"`
	TaskID        *string `json:"task_id,omitempty"`
	AmountCents   int64   `json:"amount_cents"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	DestinationID *string `json:"destination_wallet_id,omitempty"`
}

// Get handles GET /v1/escrow/{id}.
func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	holdID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid hold id")
		return
	}
	hold, err := h.Escrow.Get(r.Context(), holdID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, holdToResponse(hold))
}

// Refund handles POST /v1/escrow/{id}/refund. Only the owner of the funding
// wallet may refund, and only while the hold is still held.
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	holdID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid hold id")
		return
	}

	hold, err := h.Escrow.Get(r.Context(), holdID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	wal, err := h.Wallets.GetByID(r.Context(), hold.WalletID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	if wal.OwnerID != actor {
		writeError(w, http.StatusForbidden, "only the funding wallet owner may refund")
		return
	}

	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("begin tx", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer tx.Rollback(r.Context())

	if err := h.Escrow.Refund(r.Context(), tx, holdID); err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.Logger.Error("commit tx", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	hold.Status = models.EscrowStatusRefunded
	writeJSON(w, http.StatusOK, holdToResponse(hold))
}

// RefundForTask handles POST /v1/tasks/{id}/refund, the explicit refund
// decision after an unassignment reported an open hold.
func (h *EscrowHandler) RefundForTask(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	taskID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	errNotFunder := errors.New("only the funding wallet owner may refund")
	var refunded *models.EscrowHold
	err := h.Refunder.RefundForTask(r.Context(), taskID, func(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) error {
		hold, err := h.Escrow.Get(ctx, holdID)
		if err != nil {
			return err
		}
		wal, err := h.Wallets.GetByID(ctx, hold.WalletID)
		if err != nil {
			return err
		}
		if wal.OwnerID != actor {
			return errNotFunder
		}
		if err := h.Escrow.Refund(ctx, tx, holdID); err != nil {
			return err
		}
		hold.Status = models.EscrowStatusRefunded
		refunded = hold
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errNotFunder):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, orchestrator.ErrNothingToSettle):
			writeError(w, http.StatusConflict, "task has no active hold")
		default:
			respondServiceError(w, h.Logger, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, holdToResponse(refunded))
}

func holdToResponse(hold *models.EscrowHold) holdResponse {
	resp := holdResponse{
		ID:          hold.ID.String(),
		WalletID:    hold.WalletID.String(),
		AmountCents: hold.AmountCents,
		Currency:    hold.Currency,
		Status:      hold.Status,
	}
	if hold.ContractID != nil {
		s := hold.ContractID.String()
		resp.ContractID = &s
	}
	if hold.TaskID != nil {
		s := hold.TaskID.String()
		resp.TaskID = &s
	}
	if hold.DestinationWalletID != nil {
		s := hold.DestinationWalletID.String()
		resp.DestinationID = &s
	}
	return resp
}
