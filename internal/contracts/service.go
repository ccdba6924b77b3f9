package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workpact/backend/internal/models"
	"github.com/workpact/backend/internal/notify"
)

// ErrNotRecipient is returned when anyone other than the recipient tries to
// accept or reject a contract.
var ErrNotRecipient = errors.New("actor is not the contract recipient")

// ErrNotSender is returned when anyone other than the sender tries to cancel
// a pending contract.
var ErrNotSender = errors.New("actor is not the contract sender")

// ErrAlreadyResolved is returned for transitions on a contract that has
// already reached a terminal status.
var ErrAlreadyResolved = errors.New("contract already resolved")

// ErrExpired is returned when a transition is attempted past the contract's
// expiry deadline.
var ErrExpired = errors.New("contract has expired")

// ContractRepo is the contract store interface.
type ContractRepo interface {
	Create(ctx context.Context, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	Resolve(ctx context.Context, id uuid.UUID, toStatus string, resolvedBy uuid.UUID, resolvedAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID) error
	ListByParty(ctx context.Context, partyID uuid.UUID) ([]*models.Contract, error)
}

// ProjectReader resolves projects referenced by terms.
type ProjectReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

// TaskReader resolves tasks referenced by terms and the committed pricing
// used for the remaining-budget check.
type TaskReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	SumCommittedPricing(ctx context.Context, projectID uuid.UUID) (int64, error)
}

// Notifier dispatches fire-and-forget notifications.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, eventType string, payload any)
}

// Service is the contract negotiation state machine. It records negotiation
// outcomes only; the orchestrator performs the consequential task and escrow
// actions so that acceptance processing can be retried idempotently.
type Service struct {
	Contracts ContractRepo
	Projects  ProjectReader
	Tasks     TaskReader
	Notifier  Notifier
}

func NewService(contracts ContractRepo, projects ProjectReader, tasks TaskReader) *Service {
	return &Service{Contracts: contracts, Projects: projects, Tasks: tasks}
}

// Offer creates a pending contract after validating the terms against the
// referenced task or project.
func (s *Service) Offer(ctx context.Context, senderID, recipientID uuid.UUID, contractType string, rawTerms json.RawMessage, expiresInDays int) (*models.Contract, error) {
	if expiresInDays <= 0 {
		return nil, fmt.Errorf("%w: expiresInDays must be positive", ErrInvalidTerms)
	}
	if senderID == recipientID {
		return nil, fmt.Errorf("%w: sender and recipient must differ", ErrInvalidTerms)
	}

	terms, err := ParseTerms(contractType, rawTerms)
	if err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, terms); err != nil {
		return nil, err
	}

	normalized, err := EncodeTerms(terms)
	if err != nil {
		return nil, err
	}

	c := &models.Contract{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Type:        contractType,
		Terms:       normalized,
		Status:      models.ContractStatusPending,
		ExpiresAt:   time.Now().UTC().AddDate(0, 0, expiresInDays),
	}
	if err := s.Contracts.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contract: %w", err)
	}
	s.emit(ctx, recipientID, notify.EventContractOffered, c)
	return c, nil
}

// Get returns the contract, applying lazy expiry: a pending contract past its
// deadline is persisted and reported as expired.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	c, err := s.Contracts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Expired(time.Now().UTC()) {
		if err := s.Contracts.MarkExpired(ctx, id); err != nil {
			return nil, fmt.Errorf("mark expired: %w", err)
		}
		c.Status = models.ContractStatusExpired
	}
	return c, nil
}

// Accept resolves a pending contract in the recipient's favor. The caller is
// expected to hand the accepted contract to the orchestrator.
func (s *Service) Accept(ctx context.Context, contractID, actorID uuid.UUID) (*models.Contract, error) {
	return s.resolve(ctx, contractID, actorID, models.ContractStatusAccepted)
}

// Reject resolves a pending contract terminally against the offer.
func (s *Service) Reject(ctx context.Context, contractID, actorID uuid.UUID) (*models.Contract, error) {
	return s.resolve(ctx, contractID, actorID, models.ContractStatusRejected)
}

// Cancel lets the sender withdraw a pending contract before acceptance. The
// contract resolves to rejected with the sender recorded as resolver.
func (s *Service) Cancel(ctx context.Context, contractID, actorID uuid.UUID) (*models.Contract, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.ContractStatusExpired {
		return nil, ErrExpired
	}
	if c.Status != models.ContractStatusPending {
		return nil, ErrAlreadyResolved
	}
	if actorID != c.SenderID {
		return nil, ErrNotSender
	}
	return s.finish(ctx, c, actorID, models.ContractStatusRejected)
}

func (s *Service) ListByParty(ctx context.Context, partyID uuid.UUID) ([]*models.Contract, error) {
	return s.Contracts.ListByParty(ctx, partyID)
}

func (s *Service) resolve(ctx context.Context, contractID, actorID uuid.UUID, toStatus string) (*models.Contract, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.ContractStatusExpired {
		return nil, ErrExpired
	}
	if c.Status != models.ContractStatusPending {
		return nil, ErrAlreadyResolved
	}
	if actorID != c.RecipientID {
		return nil, ErrNotRecipient
	}
	return s.finish(ctx, c, actorID, toStatus)
}

func (s *Service) finish(ctx context.Context, c *models.Contract, actorID uuid.UUID, toStatus string) (*models.Contract, error) {
	now := time.Now().UTC()
	ok, err := s.Contracts.Resolve(ctx, c.ID, toStatus, actorID, now)
	if err != nil {
		return nil, fmt.Errorf("resolve contract: %w", err)
	}
	if !ok {
		// Lost the race to a concurrent resolver.
		return nil, ErrAlreadyResolved
	}
	c.Status = toStatus
	c.ResolvedBy = &actorID
	c.ResolvedAt = &now

	event := notify.EventContractRejected
	if toStatus == models.ContractStatusAccepted {
		event = notify.EventContractAccepted
	}
	counterparty := c.SenderID
	if actorID == c.SenderID {
		counterparty = c.RecipientID
	}
	s.emit(ctx, counterparty, event, c)
	return c, nil
}

// emit sends the contract's id and status to the counterparty. Nil notifier
// means notifications are off.
func (s *Service) emit(ctx context.Context, recipientID uuid.UUID, event string, c *models.Contract) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(ctx, recipientID, event, map[string]any{
		"contract_id": c.ID, "type": c.Type, "status": c.Status,
	})
}

// checkReferences validates terms against the referenced task or project:
// budgets must fit the remaining project budget and deadlines must not
// outrun the project's.
func (s *Service) checkReferences(ctx context.Context, terms Terms) error {
	switch t := terms.(type) {
	case RoleAssignmentTerms:
		if _, err := s.Projects.GetByID(ctx, t.ProjectID); err != nil {
			return fmt.Errorf("%w: project not found", ErrInvalidTerms)
		}

	case SubtaskHireTerms:
		task, err := s.Tasks.GetByID(ctx, t.TaskID)
		if err != nil {
			return fmt.Errorf("%w: task not found", ErrInvalidTerms)
		}
		if task.Terminal() {
			return fmt.Errorf("%w: task %s is already settled", ErrInvalidTerms, task.ID)
		}
		if t.Currency != task.Currency {
			return fmt.Errorf("%w: currency %s does not match task currency %s", ErrInvalidTerms, t.Currency, task.Currency)
		}
		// The task's own pricing is the ceiling for a hire on it.
		if t.BudgetCents > task.AmountCents {
			return fmt.Errorf("%w: budget %d exceeds task pricing %d", ErrInvalidTerms, t.BudgetCents, task.AmountCents)
		}

	case ProposalResponseTerms:
		project, err := s.Projects.GetByID(ctx, t.ProjectID)
		if err != nil {
			return fmt.Errorf("%w: project not found", ErrInvalidTerms)
		}
		if t.Currency != project.Currency {
			return fmt.Errorf("%w: currency %s does not match project currency %s", ErrInvalidTerms, t.Currency, project.Currency)
		}
		committed, err := s.Tasks.SumCommittedPricing(ctx, t.ProjectID)
		if err != nil {
			return fmt.Errorf("sum committed pricing: %w", err)
		}
		if t.BudgetCents > project.BudgetCents-committed {
			return fmt.Errorf("%w: budget %d exceeds remaining project budget %d", ErrInvalidTerms, t.BudgetCents, project.BudgetCents-committed)
		}
		if t.Deadline != nil && project.Deadline != nil && t.Deadline.After(*project.Deadline) {
			return fmt.Errorf("%w: deadline is past the project deadline", ErrInvalidTerms)
		}
	}
	return nil
}
