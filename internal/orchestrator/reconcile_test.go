package orchestrator

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/workpact/backend/internal/models"
)

type staticHoldLister struct {
	holds []*models.EscrowHold
}

func (s *staticHoldLister) ListReleasedForUnpaidTasks(_ context.Context) ([]*models.EscrowHold, error) {
	return s.holds, nil
}

type staticProofLister struct {
	proofs []*models.ProofOfTask
}

func (s *staticProofLister) ListDecidedForPendingTasks(_ context.Context) ([]*models.ProofOfTask, error) {
	return s.proofs, nil
}

func decidedProof(taskID, submitterID uuid.UUID, decision string) *models.ProofOfTask {
	return &models.ProofOfTask{
		ID:          uuid.New(),
		TaskID:      taskID,
		SubmitterID: submitterID,
		Decision:    &decision,
	}
}

// ---------------------------------------------------------------------------
// 1. Released hold, task never marked paid.
// ---------------------------------------------------------------------------

func TestReconcileRepairsReleasedButUnpaid(t *testing.T) {
	assignee := uuid.New()
	task := &models.Task{
		ID:            uuid.New(),
		ProjectID:     uuid.New(),
		Status:        models.TaskStatusDone,
		PaymentStatus: models.PaymentStatusPending,
		AssigneeID:    &assignee,
		AmountCents:   30000,
		Currency:      "USD",
	}
	c := hireContract(uuid.New(), assignee, task.ID, 25000)
	svc, taskRepo, _, _ := newFixture(c, task)

	released := &models.EscrowHold{
		ID:          uuid.New(),
		TaskID:      &task.ID,
		AmountCents: 25000,
		Currency:    "USD",
		Status:      models.EscrowStatusReleased,
	}

	repaired, err := svc.Reconcile(context.Background(), &staticHoldLister{holds: []*models.EscrowHold{released}}, &staticProofLister{})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired: got %d, want 1", repaired)
	}
	got := taskRepo.get(task.ID)
	if got.Status != models.TaskStatusPaid || got.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("task after repair: got %s/%s, want paid/paid", got.Status, got.PaymentStatus)
	}

	// A second sweep finds nothing left to repair through the task check.
	repaired, err = svc.Reconcile(context.Background(), &staticHoldLister{holds: []*models.EscrowHold{released}}, &staticProofLister{})
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if repaired != 0 {
		t.Errorf("second sweep repaired %d, want 0", repaired)
	}
}

// ---------------------------------------------------------------------------
// 2. Decided proof, task never left pending-validation.
// ---------------------------------------------------------------------------

func TestReconcileReplaysApprovedProofAndSettles(t *testing.T) {
	assignee := uuid.New()
	task := &models.Task{
		ID:            uuid.New(),
		ProjectID:     uuid.New(),
		Status:        models.TaskStatusPendingValidation,
		PaymentStatus: models.PaymentStatusUnpaid,
		AssigneeID:    &assignee,
		AmountCents:   30000,
		Currency:      "USD",
	}
	c := hireContract(uuid.New(), assignee, task.ID, 25000)
	svc, taskRepo, esc, _ := newFixture(c, task)

	hold := &models.EscrowHold{
		ID:          uuid.New(),
		ContractID:  &c.ID,
		WalletID:    uuid.New(),
		TaskID:      &task.ID,
		AmountCents: 25000,
		Currency:    "USD",
		Status:      models.EscrowStatusHeld,
	}
	esc.holds[hold.ID] = hold

	proofs := &staticProofLister{proofs: []*models.ProofOfTask{
		decidedProof(task.ID, assignee, models.ProofDecisionApproved),
	}}

	repaired, err := svc.Reconcile(context.Background(), &staticHoldLister{}, proofs)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired: got %d, want 1", repaired)
	}

	// The replay drove the task to done/pending and settlement ran to
	// completion: escrow released, task paid.
	got := taskRepo.get(task.ID)
	if got.Status != models.TaskStatusPaid || got.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("task after replay: got %s/%s, want paid/paid", got.Status, got.PaymentStatus)
	}
	if h, _ := esc.GetActiveByTask(context.Background(), task.ID); h != nil {
		t.Error("hold should no longer be active after settlement")
	}

	// The task moved on, so the same proof repairs nothing further.
	repaired, err = svc.Reconcile(context.Background(), &staticHoldLister{}, proofs)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if repaired != 0 {
		t.Errorf("second sweep repaired %d, want 0", repaired)
	}
}

func TestReconcileReplaysRejectedProof(t *testing.T) {
	assignee := uuid.New()
	task := &models.Task{
		ID:            uuid.New(),
		ProjectID:     uuid.New(),
		Status:        models.TaskStatusPendingValidation,
		PaymentStatus: models.PaymentStatusUnpaid,
		AssigneeID:    &assignee,
		AmountCents:   30000,
		Currency:      "USD",
	}
	c := hireContract(uuid.New(), assignee, task.ID, 25000)
	svc, taskRepo, _, _ := newFixture(c, task)

	proofs := &staticProofLister{proofs: []*models.ProofOfTask{
		decidedProof(task.ID, assignee, models.ProofDecisionRejected),
	}}

	repaired, err := svc.Reconcile(context.Background(), &staticHoldLister{}, proofs)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired: got %d, want 1", repaired)
	}

	// Rejection hands the task back to the same assignee.
	got := taskRepo.get(task.ID)
	if got.Status != models.TaskStatusInProgress || got.PaymentStatus != models.PaymentStatusUnpaid {
		t.Errorf("task after replay: got %s/%s, want in-progress/unpaid", got.Status, got.PaymentStatus)
	}
	if got.AssigneeID == nil || *got.AssigneeID != assignee {
		t.Error("replay must keep the assignee")
	}
}
