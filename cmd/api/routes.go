package main

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workpact/backend/internal/contracts"
	"github.com/workpact/backend/internal/escrow"
	"github.com/workpact/backend/internal/handlers"
	"github.com/workpact/backend/internal/middleware"
	"github.com/workpact/backend/internal/orchestrator"
	"github.com/workpact/backend/internal/projects"
	"github.com/workpact/backend/internal/repository"
	"github.com/workpact/backend/internal/tasks"
	"github.com/workpact/backend/internal/wallet"
)

// RegisterV1Routes adds the /v1/ engine endpoints to the given mux.
// Middleware chain: Auth -> (PricingCheck on money-writing POSTs) -> handler.
func RegisterV1Routes(
	mux *http.ServeMux,
	pool *pgxpool.Pool,
	walletSvc *wallet.Service,
	escrowSvc *escrow.Service,
	contractSvc *contracts.Service,
	taskSvc *tasks.Service,
	projectSvc *projects.Service,
	orch *orchestrator.Service,
	walletRepo *repository.WalletRepo,
	validator middleware.TokenValidator,
	logger *slog.Logger,
) {
	ch := &handlers.ContractHandler{Contracts: contractSvc, Fulfiller: orch, Logger: logger}
	th := &handlers.TaskHandler{Tasks: taskSvc, Settler: orch, Logger: logger}
	wh := &handlers.WalletHandler{Pool: pool, Wallets: walletSvc, DefaultCurrency: "USD", Logger: logger}
	eh := &handlers.EscrowHandler{Pool: pool, Escrow: escrowSvc, Wallets: walletRepo, Refunder: orch, Logger: logger}
	ph := &handlers.ProjectHandler{Projects: projectSvc, Logger: logger}

	auth := middleware.Auth(validator)
	pricing := middleware.PricingCheck()

	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(h))
	}
	handlePriced := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(pricing(h)))
	}

	// Contracts
	handle("POST /v1/contracts", ch.Offer)
	handle("GET /v1/contracts", ch.List)
	handle("GET /v1/contracts/{id}", ch.Get)
	handle("POST /v1/contracts/{id}/accept", ch.Accept)
	handle("POST /v1/contracts/{id}/reject", ch.Reject)
	handle("POST /v1/contracts/{id}/cancel", ch.Cancel)

	// Projects
	handle("POST /v1/projects", ph.Create)
	handle("GET /v1/projects/{id}", ph.Get)
	handle("POST /v1/projects/{id}/status", ph.SetStatus)
	handle("POST /v1/projects/{id}/members", ph.AddMember)
	handle("GET /v1/projects/{id}/members", ph.ListMembers)
	handle("GET /v1/projects/{id}/tasks", th.ListByProject)

	// Tasks
	handlePriced("POST /v1/tasks", th.Create)
	handle("POST /v1/tasks/bulk", th.CreateBulk)
	handle("GET /v1/tasks/{id}", th.Get)
	handle("POST /v1/tasks/{id}/assign", th.Assign)
	handle("POST /v1/tasks/{id}/reassign", th.Reassign)
	handle("POST /v1/tasks/{id}/unassign", th.Unassign)
	handle("POST /v1/tasks/{id}/proof", th.SubmitProof)
	handle("POST /v1/tasks/{id}/review", th.Review)
	handle("POST /v1/tasks/{id}/refund", eh.RefundForTask)
	handle("GET /v1/tasks/{id}/proofs", th.ListProofs)

	// Wallet
	handle("GET /v1/wallet", wh.Get)
	handlePriced("POST /v1/wallet/deposit", wh.Deposit)
	handlePriced("POST /v1/wallet/debit", wh.Debit)

	// Escrow
	handle("GET /v1/escrow/{id}", eh.Get)
	handle("POST /v1/escrow/{id}/refund", eh.Refund)
}
