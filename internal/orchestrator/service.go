package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/contracts"
	"github.com/workpact/backend/internal/metrics"
	"github.com/workpact/backend/internal/models"
	"github.com/workpact/backend/internal/notify"
)

// ErrNotAssignable is returned when an accepted contract references a task
// that is no longer in an assignable state.
var ErrNotAssignable = errors.New("referenced task is not assignable")

// ErrNothingToSettle is returned when settlement is requested for a task with
// no active escrow hold and no pending payment.
var ErrNothingToSettle = errors.New("task has no pending settlement")

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TaskRepo is the subset of the task store the orchestrator needs.
type TaskRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Update(ctx context.Context, t *models.Task) (bool, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Task) (bool, error)
}

// ContractRepo resolves accepted contracts.
type ContractRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
}

// WalletRepo resolves wallets by owner, creating on first use.
type WalletRepo interface {
	EnsureForOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*models.Wallet, error)
}

// EscrowService is the escrow holder surface the orchestrator drives. The
// orchestrator is the only component permitted to call a task transition and
// an escrow operation in the same logical step.
type EscrowService interface {
	Open(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amountCents int64, currency string, contractID, taskID, projectID *uuid.UUID) (*models.EscrowHold, error)
	Release(ctx context.Context, tx pgx.Tx, holdID, destWalletID uuid.UUID) error
	GetByContractID(ctx context.Context, contractID uuid.UUID) (*models.EscrowHold, error)
	GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*models.EscrowHold, error)
}

// MemberAdder grants project roles when a role-assignment contract is
// accepted.
type MemberAdder interface {
	AddMember(ctx context.Context, m *models.ProjectMember) error
}

// Notifier dispatches fire-and-forget notifications.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, eventType string, payload any)
}

// Service keeps contract, task, and escrow state mutually consistent. It
// consumes contract acceptance events and proof approvals and owns the two
// critical sequences plus the reconciliation sweep.
type Service struct {
	Pool      TxBeginner
	Tasks     TaskRepo
	Contracts ContractRepo
	Wallets   WalletRepo
	Escrow    EscrowService
	Members   MemberAdder
	Notifier  Notifier
	Logger    *slog.Logger
}

func NewService(pool TxBeginner, tasks TaskRepo, contractRepo ContractRepo, wallets WalletRepo, escrow EscrowService, members MemberAdder, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Pool:      pool,
		Tasks:     tasks,
		Contracts: contractRepo,
		Wallets:   wallets,
		Escrow:    escrow,
		Members:   members,
		Notifier:  notifier,
		Logger:    logger,
	}
}

// HandleContractAccepted consumes a contract acceptance event. Processing is
// idempotent keyed by contract id: an already-fulfilled contract is a no-op,
// never a duplicate escrow hold.
func (s *Service) HandleContractAccepted(ctx context.Context, contractID uuid.UUID) error {
	c, err := s.Contracts.GetByID(ctx, contractID)
	if err != nil {
		return fmt.Errorf("load contract: %w", err)
	}
	if c.Status != models.ContractStatusAccepted {
		return fmt.Errorf("contract %s is %s, not accepted", c.ID, c.Status)
	}

	terms, err := contracts.ParseTerms(c.Type, c.Terms)
	if err != nil {
		return fmt.Errorf("parse accepted terms: %w", err)
	}

	switch t := terms.(type) {
	case contracts.RoleAssignmentTerms:
		return s.Members.AddMember(ctx, &models.ProjectMember{
			ProjectID: t.ProjectID,
			UserID:    c.RecipientID,
			Role:      t.Role,
		})
	case contracts.SubtaskHireTerms:
		return s.fulfillHire(ctx, c, t)
	case contracts.ProposalResponseTerms:
		return s.fulfillProposal(ctx, c, t)
	default:
		return fmt.Errorf("unhandled terms variant %T", terms)
	}
}

// fulfillHire binds the task to the accepted party and opens escrow sized to
// the agreed budget. On escrow failure the assignment is rolled back — the
// task returns to todo.
func (s *Service) fulfillHire(ctx context.Context, c *models.Contract, terms contracts.SubtaskHireTerms) error {
	if existing, err := s.Escrow.GetByContractID(ctx, c.ID); err != nil {
		return fmt.Errorf("check fulfillment: %w", err)
	} else if existing != nil {
		s.Logger.Info("contract already fulfilled, skipping", "contract_id", c.ID, "hold_id", existing.ID)
		return nil
	}

	task, err := s.Tasks.GetByID(ctx, terms.TaskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if task.Status != models.TaskStatusTodo {
		return fmt.Errorf("%w: task %s is %s", ErrNotAssignable, task.ID, task.Status)
	}

	assignee := c.RecipientID
	task.AssigneeID = &assignee
	task.Status = models.TaskStatusInProgress
	if ok, err := s.Tasks.Update(ctx, task); err != nil {
		return fmt.Errorf("assign task: %w", err)
	} else if !ok {
		return fmt.Errorf("%w: lost assignment race for task %s", ErrNotAssignable, task.ID)
	}
	metrics.TaskTransitions.WithLabelValues(models.TaskStatusTodo, models.TaskStatusInProgress).Inc()

	srcWallet, err := s.Wallets.EnsureForOwner(ctx, c.SenderID, terms.Currency)
	if err != nil {
		s.rollbackAssignment(ctx, task)
		return fmt.Errorf("resolve sender wallet: %w", err)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		s.rollbackAssignment(ctx, task)
		return fmt.Errorf("begin escrow tx: %w", err)
	}
	defer tx.Rollback(ctx)

	hold, err := s.Escrow.Open(ctx, tx, srcWallet.ID, terms.BudgetCents, terms.Currency, &c.ID, &task.ID, nil)
	if err != nil {
		s.rollbackAssignment(ctx, task)
		return fmt.Errorf("open escrow: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		s.rollbackAssignment(ctx, task)
		return fmt.Errorf("commit escrow tx: %w", err)
	}

	s.Logger.Info("contract fulfilled",
		"contract_id", c.ID, "task_id", task.ID, "hold_id", hold.ID, "amount_cents", hold.AmountCents)
	s.notify(ctx, c.RecipientID, notify.EventTaskAssigned, map[string]any{
		"task_id": task.ID, "contract_id": c.ID,
	})
	return nil
}

// fulfillProposal opens a project-scoped hold for an accepted proposal.
func (s *Service) fulfillProposal(ctx context.Context, c *models.Contract, terms contracts.ProposalResponseTerms) error {
	if existing, err := s.Escrow.GetByContractID(ctx, c.ID); err != nil {
		return fmt.Errorf("check fulfillment: %w", err)
	} else if existing != nil {
		return nil
	}

	srcWallet, err := s.Wallets.EnsureForOwner(ctx, c.SenderID, terms.Currency)
	if err != nil {
		return fmt.Errorf("resolve sender wallet: %w", err)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin escrow tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.Escrow.Open(ctx, tx, srcWallet.ID, terms.BudgetCents, terms.Currency, &c.ID, nil, &terms.ProjectID); err != nil {
		return fmt.Errorf("open escrow: %w", err)
	}
	return tx.Commit(ctx)
}

// rollbackAssignment undoes the assign half of the acceptance sequence. This
// is the one place a two-step operation is compensated on partial failure.
func (s *Service) rollbackAssignment(ctx context.Context, task *models.Task) {
	task.AssigneeID = nil
	task.Status = models.TaskStatusTodo
	if ok, err := s.Tasks.Update(ctx, task); err != nil || !ok {
		s.Logger.Error("failed to roll back assignment, reconciliation required",
			"task_id", task.ID, "error", err)
	}
}

// HandleProofApproved settles an approved task: escrow release and the paid
// transition share one commit boundary, so the task can never be paid
// without a released hold. A release failure leaves the task done/pending
// and is surfaced for retry.
func (s *Service) HandleProofApproved(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if task.Status == models.TaskStatusPaid {
		return nil
	}
	if task.Status != models.TaskStatusDone || task.PaymentStatus != models.PaymentStatusPending {
		return fmt.Errorf("%w: task %s is %s/%s", ErrNothingToSettle, task.ID, task.Status, task.PaymentStatus)
	}
	if task.AssigneeID == nil {
		return fmt.Errorf("%w: task %s has no assignee", ErrNothingToSettle, task.ID)
	}

	hold, err := s.Escrow.GetActiveByTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load hold: %w", err)
	}
	if hold == nil {
		metrics.SettlementFailures.Inc()
		return fmt.Errorf("%w: no active hold for task %s, reconciliation required", ErrNothingToSettle, taskID)
	}

	destWallet, err := s.Wallets.EnsureForOwner(ctx, *task.AssigneeID, hold.Currency)
	if err != nil {
		return fmt.Errorf("resolve assignee wallet: %w", err)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settle tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.Escrow.Release(ctx, tx, hold.ID, destWallet.ID); err != nil {
		metrics.SettlementFailures.Inc()
		return fmt.Errorf("release escrow: %w", err)
	}

	now := time.Now().UTC()
	task.Status = models.TaskStatusPaid
	task.PaymentStatus = models.PaymentStatusPaid
	task.ArchivedAt = &now
	if ok, err := s.Tasks.UpdateTx(ctx, tx, task); err != nil {
		metrics.SettlementFailures.Inc()
		return fmt.Errorf("mark task paid: %w", err)
	} else if !ok {
		metrics.SettlementFailures.Inc()
		return fmt.Errorf("mark task paid: concurrent modification of task %s", task.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.SettlementFailures.Inc()
		return fmt.Errorf("commit settle tx: %w", err)
	}

	metrics.SettlementsTotal.Inc()
	metrics.TaskTransitions.WithLabelValues(models.TaskStatusDone, models.TaskStatusPaid).Inc()
	s.Logger.Info("task settled", "task_id", task.ID, "hold_id", hold.ID, "amount_cents", hold.AmountCents)
	s.notify(ctx, *task.AssigneeID, notify.EventTaskPaid, map[string]any{
		"task_id": task.ID, "amount_cents": hold.AmountCents, "currency": hold.Currency,
	})
	return nil
}

// RefundForTask refunds a task's open hold, the explicit escrow decision
// after unassignment or cancellation.
func (s *Service) RefundForTask(ctx context.Context, taskID uuid.UUID, refund func(ctx context.Context, tx pgx.Tx, holdID uuid.UUID) error) error {
	hold, err := s.Escrow.GetActiveByTask(ctx, taskID)
	if err != nil {
		return err
	}
	if hold == nil {
		return ErrNothingToSettle
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := refund(ctx, tx, hold.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) notify(ctx context.Context, recipientID uuid.UUID, eventType string, payload any) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(ctx, recipientID, eventType, payload)
}
