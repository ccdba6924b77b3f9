package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/metrics"
	"github.com/workpact/backend/internal/models"
	"github.com/workpact/backend/internal/notify"
)

// State-conflict and authorization errors. Callers must re-fetch current
// state before retrying after any of these.
var (
	ErrTaskAlreadyAssigned     = errors.New("task is already assigned")
	ErrNotAuthorizedSubmitter  = errors.New("submitter is not the assignee or task admin")
	ErrNotAuthorizedReviewer   = errors.New("reviewer does not hold owner or supervisor role")
	ErrNotAuthorized           = errors.New("actor does not hold owner or supervisor role")
	ErrAlreadyResolved         = errors.New("proof already reviewed")
	ErrVersionConflict         = errors.New("task was modified concurrently, re-fetch and retry")
	ErrBudgetExceeded          = errors.New("task pricing exceeds remaining project budget")
	ErrTaskTerminal            = errors.New("task is in a terminal state")
	ErrNoAssignee              = errors.New("task has no assignee")
	ErrInvalidDecision         = errors.New("decision must be approved or rejected")
)

// TransitionError reports an operation attempted from the wrong status; it
// carries the current status so the caller knows what transition is valid
// next.
type TransitionError struct {
	TaskID    uuid.UUID
	Current   string
	Operation string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot %s while %s", e.TaskID, e.Operation, e.Current)
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TaskRepo is the task store interface.
type TaskRepo interface {
	Create(ctx context.Context, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Update(ctx context.Context, t *models.Task) (bool, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, t *models.Task) (bool, error)
	SumCommittedPricing(ctx context.Context, projectID uuid.UUID) (int64, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error)
}

// ProofRepo is the proof-of-task store interface.
type ProofRepo interface {
	Create(ctx context.Context, p *models.ProofOfTask) error
	GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*models.ProofOfTask, error)
	DecideTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, decision string, reviewerID uuid.UUID, reviewedAt time.Time) (bool, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.ProofOfTask, error)
}

// ProjectReader resolves the owning project for budget checks.
type ProjectReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

// Roles is the identity collaborator used for authorization.
type Roles interface {
	RoleOf(ctx context.Context, userID, projectID uuid.UUID) (string, error)
}

// EscrowReader reports the active hold for a task so unassignment can
// surface the pending refund decision.
type EscrowReader interface {
	GetActiveByTask(ctx context.Context, taskID uuid.UUID) (*models.EscrowHold, error)
}

// Notifier dispatches fire-and-forget notifications.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, eventType string, payload any)
}

// Service is the task lifecycle state machine. All transitions are optimistic
// read-modify-write cycles: a concurrent writer surfaces as
// ErrVersionConflict rather than a silent overwrite.
type Service struct {
	Pool     TxBeginner
	Tasks    TaskRepo
	Proofs   ProofRepo
	Projects ProjectReader
	Roles    Roles
	Escrow   EscrowReader
	Notifier Notifier
}

func NewService(pool TxBeginner, tasks TaskRepo, proofs ProofRepo, projects ProjectReader, roles Roles, escrow EscrowReader) *Service {
	return &Service{Pool: pool, Tasks: tasks, Proofs: proofs, Projects: projects, Roles: roles, Escrow: escrow}
}

// CreateInput carries the caller-supplied task fields.
type CreateInput struct {
	ProjectID      uuid.UUID
	Title          string
	Description    string
	Priority       string
	AmountCents    int64
	Currency       string
	DueDate        *time.Time
	EstimatedHours *int
	Visibility     string
	TaskAdminID    *uuid.UUID
}

// Create validates the input against the project budget and persists a todo
// task. Committed pricing across non-archived tasks never exceeds the
// project budget.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, in CreateInput) (*models.Task, error) {
	tasks, err := s.CreateBulk(ctx, actorID, in.ProjectID, []CreateInput{in})
	if err != nil {
		return nil, err
	}
	return tasks[0], nil
}

// CreateBulk creates several tasks for one project, validating the batch as a
// whole against the remaining budget.
func (s *Service) CreateBulk(ctx context.Context, actorID, projectID uuid.UUID, inputs []CreateInput) ([]*models.Task, error) {
	if err := s.requireReviewRole(ctx, actorID, projectID, ErrNotAuthorized); err != nil {
		return nil, err
	}
	project, err := s.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	var batchTotal int64
	for _, in := range inputs {
		if in.ProjectID != projectID {
			return nil, errors.New("all tasks in a batch must share one project")
		}
		if in.Title == "" {
			return nil, errors.New("title is required")
		}
		if in.AmountCents <= 0 {
			return nil, errors.New("pricing amount must be positive")
		}
		if in.Currency != project.Currency {
			return nil, fmt.Errorf("currency %s does not match project currency %s", in.Currency, project.Currency)
		}
		batchTotal += in.AmountCents
	}

	committed, err := s.Tasks.SumCommittedPricing(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("sum committed pricing: %w", err)
	}
	if committed+batchTotal > project.BudgetCents {
		return nil, fmt.Errorf("%w: committed %d + new %d > budget %d",
			ErrBudgetExceeded, committed, batchTotal, project.BudgetCents)
	}

	out := make([]*models.Task, 0, len(inputs))
	for _, in := range inputs {
		t := &models.Task{
			ID:             uuid.New(),
			ProjectID:      projectID,
			Title:          in.Title,
			Description:    in.Description,
			TaskAdminID:    in.TaskAdminID,
			Priority:       defaultStr(in.Priority, models.TaskPriorityMedium),
			AmountCents:    in.AmountCents,
			Currency:       in.Currency,
			PaymentStatus:  models.PaymentStatusUnpaid,
			Status:         models.TaskStatusTodo,
			DueDate:        in.DueDate,
			EstimatedHours: in.EstimatedHours,
			Visibility:     defaultStr(in.Visibility, models.TaskVisibilityPrivate),
		}
		if err := s.Tasks.Create(ctx, t); err != nil {
			return nil, fmt.Errorf("create task: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	return s.Tasks.GetByID(ctx, taskID)
}

// ListByProject returns the project's tasks, archived included.
func (s *Service) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error) {
	return s.Tasks.ListByProject(ctx, projectID)
}

func (s *Service) ListProofs(ctx context.Context, taskID uuid.UUID) ([]*models.ProofOfTask, error) {
	return s.Proofs.ListByTask(ctx, taskID)
}

// Assign binds an assignee to a todo task and starts it.
func (s *Service) Assign(ctx context.Context, taskID, assigneeID, actorID uuid.UUID) (*models.Task, error) {
	t, err := s.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReviewRole(ctx, actorID, t.ProjectID, ErrNotAuthorized); err != nil {
		return nil, err
	}
	if t.Status != models.TaskStatusTodo {
		return nil, ErrTaskAlreadyAssigned
	}
	t.AssigneeID = &assigneeID
	return s.transition(ctx, t, models.TaskStatusInProgress)
}

// Reassign replaces the assignee of an already-assigned, non-terminal task.
// Escrow is untouched: the release destination is resolved from the current
// assignee only at settlement time.
func (s *Service) Reassign(ctx context.Context, taskID, newAssigneeID, actorID uuid.UUID) (*models.Task, error) {
	t, err := s.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReviewRole(ctx, actorID, t.ProjectID, ErrNotAuthorized); err != nil {
		return nil, err
	}
	if t.Terminal() {
		return nil, ErrTaskTerminal
	}
	if t.AssigneeID == nil {
		return nil, ErrNoAssignee
	}
	t.AssigneeID = &newAssigneeID
	if ok, err := s.Tasks.Update(ctx, t); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrVersionConflict
	}
	return t, nil
}

// Unassign returns a started task to todo and reports the still-open escrow
// hold, if any, so the caller makes the explicit refund decision. The engine
// never silently refunds.
func (s *Service) Unassign(ctx context.Context, taskID, actorID uuid.UUID) (*models.Task, *models.EscrowHold, error) {
	t, err := s.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireReviewRole(ctx, actorID, t.ProjectID, ErrNotAuthorized); err != nil {
		return nil, nil, err
	}
	if t.Status != models.TaskStatusTodo && t.Status != models.TaskStatusInProgress {
		return nil, nil, &TransitionError{TaskID: t.ID, Current: t.Status, Operation: "unassign"}
	}
	t.AssigneeID = nil
	t2, err := s.transition(ctx, t, models.TaskStatusTodo)
	if err != nil {
		return nil, nil, err
	}
	hold, err := s.Escrow.GetActiveByTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	return t2, hold, nil
}

// SubmitProof records a proof-of-task and moves the task to
// pending-validation. Only the assignee or the task's designated admin may
// submit; a task has at most one undecided proof.
func (s *Service) SubmitProof(ctx context.Context, taskID, submitterID uuid.UUID, evidence []models.EvidenceItem, notes string) (*models.ProofOfTask, *models.Task, error) {
	t, err := s.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if t.Status != models.TaskStatusInProgress {
		return nil, nil, &TransitionError{TaskID: t.ID, Current: t.Status, Operation: "submit proof"}
	}
	if !isSubmitter(t, submitterID) {
		return nil, nil, ErrNotAuthorizedSubmitter
	}
	if active, err := s.Proofs.GetActiveByTask(ctx, taskID); err != nil {
		return nil, nil, err
	} else if active != nil {
		return nil, nil, &TransitionError{TaskID: t.ID, Current: t.Status, Operation: "submit a second proof"}
	}
	if len(evidence) == 0 {
		return nil, nil, errors.New("at least one evidence item is required")
	}

	// The status CAS serializes concurrent submissions; the proof is only
	// written by the winner.
	t2, err := s.transition(ctx, t, models.TaskStatusPendingValidation)
	if err != nil {
		return nil, nil, err
	}

	p := &models.ProofOfTask{
		ID:          uuid.New(),
		TaskID:      taskID,
		SubmitterID: submitterID,
		Evidence:    evidence,
		Notes:       notes,
	}
	if err := s.Proofs.Create(ctx, p); err != nil {
		// Put the task back so the submitter can retry.
		t2.Status = models.TaskStatusInProgress
		if _, revertErr := s.Tasks.Update(ctx, t2); revertErr != nil {
			return nil, nil, fmt.Errorf("create proof failed (%v) and revert failed: %w", err, revertErr)
		}
		return nil, nil, fmt.Errorf("create proof: %w", err)
	}

	if project, err := s.Projects.GetByID(ctx, t2.ProjectID); err == nil {
		s.emit(ctx, project.OwnerID, notify.EventProofSubmitted, map[string]any{
			"task_id": t2.ID, "proof_id": p.ID,
		})
	}
	return p, t2, nil
}

// ReviewProof records the review decision on the task's active proof.
// Approve moves the task to done with payment pending; settlement is the
// orchestrator's job. Reject returns the task to in-progress with the same
// assignee and archives the proof as rejected.
func (s *Service) ReviewProof(ctx context.Context, taskID uuid.UUID, decision string, reviewerID uuid.UUID) (*models.Task, *models.ProofOfTask, error) {
	if decision != models.ProofDecisionApproved && decision != models.ProofDecisionRejected {
		return nil, nil, ErrInvalidDecision
	}
	t, err := s.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireReviewRole(ctx, reviewerID, t.ProjectID, ErrNotAuthorizedReviewer); err != nil {
		return nil, nil, err
	}
	if t.Status != models.TaskStatusPendingValidation {
		if t.Terminal() {
			return nil, nil, ErrAlreadyResolved
		}
		return nil, nil, &TransitionError{TaskID: t.ID, Current: t.Status, Operation: "review proof"}
	}

	proof, err := s.Proofs.GetActiveByTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if proof == nil {
		return nil, nil, ErrAlreadyResolved
	}

	// The decision and the transition share one commit boundary. A lost
	// version race rolls the decision back with the transition, so the proof
	// stays active and the review can simply be retried.
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin review tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	ok, err := s.Proofs.DecideTx(ctx, tx, proof.ID, decision, reviewerID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("decide proof: %w", err)
	}
	if !ok {
		return nil, nil, ErrAlreadyResolved
	}

	from := t.Status
	if decision == models.ProofDecisionApproved {
		t.PaymentStatus = models.PaymentStatusPending
		t.Status = models.TaskStatusDone
	} else {
		t.Status = models.TaskStatusInProgress
	}
	if ok, err := s.Tasks.UpdateTx(ctx, tx, t); err != nil {
		return nil, nil, fmt.Errorf("update task: %w", err)
	} else if !ok {
		return nil, nil, ErrVersionConflict
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit review tx: %w", err)
	}
	metrics.TaskTransitions.WithLabelValues(from, t.Status).Inc()

	proof.Decision = &decision
	proof.ReviewerID = &reviewerID
	proof.ReviewedAt = &now

	if t.AssigneeID != nil {
		s.emit(ctx, *t.AssigneeID, notify.EventProofReviewed, map[string]any{
			"task_id": t.ID, "proof_id": proof.ID, "decision": decision,
		})
	}
	return t, proof, nil
}

func (s *Service) emit(ctx context.Context, recipientID uuid.UUID, event string, payload any) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(ctx, recipientID, event, payload)
}

func (s *Service) transition(ctx context.Context, t *models.Task, to string) (*models.Task, error) {
	from := t.Status
	t.Status = to
	ok, err := s.Tasks.Update(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if !ok {
		return nil, ErrVersionConflict
	}
	metrics.TaskTransitions.WithLabelValues(from, to).Inc()
	return t, nil
}

func (s *Service) requireReviewRole(ctx context.Context, actorID, projectID uuid.UUID, authErr error) error {
	role, err := s.Roles.RoleOf(ctx, actorID, projectID)
	if err != nil {
		return fmt.Errorf("resolve role: %w", err)
	}
	if !models.CanReview(role) {
		return authErr
	}
	return nil
}

func isSubmitter(t *models.Task, userID uuid.UUID) bool {
	if t.AssigneeID != nil && *t.AssigneeID == userID {
		return true
	}
	return t.TaskAdminID != nil && *t.TaskAdminID == userID
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
