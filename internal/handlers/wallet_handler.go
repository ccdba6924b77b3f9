package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/middleware"
	"github.com/workpact/backend/internal/models"
)

// WalletService is the ledger surface the handler drives.
type WalletService interface {
	EnsureForOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*models.Wallet, error)
	Deposit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, currency string) (*models.Wallet, error)
	Debit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, currency string) (*models.Wallet, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]*models.WalletTransaction, error)
}

// WalletHandler serves /v1/wallet endpoints.
type WalletHandler struct {
	Pool            TxBeginner
	Wallets         WalletService
	DefaultCurrency string
	Logger          *slog.Logger
}

type walletMutationRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type walletResponse struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	Currency       string `json:"currency"`
	BalanceCents   int64  `json:"balance_cents"`
	HeldCents      int64  `json:"held_cents"`
	AvailableCents int64  `json:"available_cents"`
}

type transactionResponse struct {
	ID                string `json:"id"`
	EntryType         string `json:"entry_type"`
	AmountCents       int64  `json:"amount_cents"`
	BalanceAfterCents int64  `json:"balance_after_cents"`
}

// Get handles GET /v1/wallet, returning the actor's wallet and its ledger.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wal, err := h.Wallets.EnsureForOwner(r.Context(), actor, h.DefaultCurrency)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	entries, err := h.Wallets.ListTransactions(r.Context(), wal.ID)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	txResp := make([]transactionResponse, 0, len(entries))
	for _, e := range entries {
		txResp = append(txResp, transactionResponse{
			ID:                e.ID.String(),
			EntryType:         e.EntryType,
			AmountCents:       e.AmountCents,
			BalanceAfterCents: e.BalanceAfterCents,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":       walletToResponse(wal),
		"transactions": txResp,
	})
}

// Deposit handles POST /v1/wallet/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Wallets.Deposit)
}

// Debit handles POST /v1/wallet/debit. Fails with 402 when the amount
// exceeds the available balance.
func (h *WalletHandler) Debit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Wallets.Debit)
}

func (h *WalletHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, currency string) (*models.Wallet, error)) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req walletMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = h.DefaultCurrency
	}
	wal, err := h.Wallets.EnsureForOwner(r.Context(), actor, currency)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}

	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("begin tx", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer tx.Rollback(r.Context())

	wal, err = fn(r.Context(), tx, wal.ID, req.AmountCents, currency)
	if err != nil {
		respondServiceError(w, h.Logger, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.Logger.Error("commit tx", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, walletToResponse(wal))
}

func walletToResponse(wal *models.Wallet) walletResponse {
	return walletResponse{
		ID:             wal.ID.String(),
		OwnerID:        wal.OwnerID.String(),
		Currency:       wal.Currency,
		BalanceCents:   wal.BalanceCents,
		HeldCents:      wal.HeldCents,
		AvailableCents: wal.Available(),
	}
}
