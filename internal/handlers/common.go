package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/contracts"
	"github.com/workpact/backend/internal/escrow"
	"github.com/workpact/backend/internal/projects"
	"github.com/workpact/backend/internal/tasks"
	"github.com/workpact/backend/internal/wallet"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathUUID parses a UUID path segment registered as {name} in the route
// pattern.
func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// respondServiceError maps domain sentinels onto HTTP statuses. Unknown
// errors are logged and hidden behind a 500.
func respondServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	var transition *tasks.TransitionError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "not found")

	case errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, escrow.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient funds")

	case errors.Is(err, contracts.ErrNotRecipient),
		errors.Is(err, contracts.ErrNotSender),
		errors.Is(err, tasks.ErrNotAuthorized),
		errors.Is(err, tasks.ErrNotAuthorizedSubmitter),
		errors.Is(err, tasks.ErrNotAuthorizedReviewer),
		errors.Is(err, projects.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, contracts.ErrAlreadyResolved),
		errors.Is(err, contracts.ErrExpired),
		errors.Is(err, tasks.ErrAlreadyResolved),
		errors.Is(err, tasks.ErrVersionConflict),
		errors.Is(err, tasks.ErrTaskAlreadyAssigned),
		errors.Is(err, tasks.ErrTaskTerminal),
		errors.Is(err, tasks.ErrNoAssignee),
		errors.Is(err, escrow.ErrHoldNotActive),
		errors.As(err, &transition):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, contracts.ErrInvalidTerms),
		errors.Is(err, tasks.ErrBudgetExceeded),
		errors.Is(err, tasks.ErrInvalidDecision),
		errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrCurrencyMismatch),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrCurrencyMismatch),
		errors.Is(err, projects.ErrInvalidProject):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	default:
		log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
