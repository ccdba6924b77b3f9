package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/workpact/backend/internal/metrics"
	"github.com/workpact/backend/internal/models"
)

// ReleasedHoldLister surfaces holds that released but whose task never
// recorded payment, the one mismatch a crash between release and the paid
// update could leave behind if the two ever ran in separate transactions.
type ReleasedHoldLister interface {
	ListReleasedForUnpaidTasks(ctx context.Context) ([]*models.EscrowHold, error)
}

// DecidedProofLister surfaces decided proofs whose task never left
// pending-validation, the mismatch left behind when the review decision
// landed but the task transition did not.
type DecidedProofLister interface {
	ListDecidedForPendingTasks(ctx context.Context) ([]*models.ProofOfTask, error)
}

// Reconcile sweeps for the two mismatches a partial failure can leave behind
// and repairs the task side: released-but-unpaid holds, and decided proofs
// whose task is still pending-validation.
func (s *Service) Reconcile(ctx context.Context, holds ReleasedHoldLister, proofs DecidedProofLister) (int, error) {
	repaired, err := s.repairReleasedHolds(ctx, holds)
	if err != nil {
		return repaired, err
	}
	n, err := s.replayDecidedProofs(ctx, proofs)
	return repaired + n, err
}

// repairReleasedHolds marks tasks paid whose escrow already released. Money
// already moved, so the task record is what gets fixed.
func (s *Service) repairReleasedHolds(ctx context.Context, holds ReleasedHoldLister) (int, error) {
	list, err := holds.ListReleasedForUnpaidTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list released holds: %w", err)
	}

	repaired := 0
	for _, hold := range list {
		if hold.TaskID == nil {
			continue
		}
		task, err := s.Tasks.GetByID(ctx, *hold.TaskID)
		if err != nil {
			s.Logger.Error("reconcile: load task failed", "task_id", hold.TaskID, "error", err)
			continue
		}
		if task.PaymentStatus == models.PaymentStatusPaid {
			continue
		}

		now := time.Now().UTC()
		task.Status = models.TaskStatusPaid
		task.PaymentStatus = models.PaymentStatusPaid
		if task.ArchivedAt == nil {
			task.ArchivedAt = &now
		}
		if ok, err := s.Tasks.Update(ctx, task); err != nil {
			s.Logger.Error("reconcile: repair failed", "task_id", task.ID, "error", err)
			continue
		} else if !ok {
			// Someone else is mutating the task; next sweep picks it up.
			continue
		}

		repaired++
		metrics.ReconcileRepairs.Inc()
		s.Logger.Warn("reconcile: repaired released-but-unpaid task",
			"task_id", task.ID, "hold_id", hold.ID, "amount_cents", hold.AmountCents)
	}
	return repaired, nil
}

// replayDecidedProofs drives tasks stuck in pending-validation to the status
// their decided proof dictates: approved to done with payment pending,
// rejected back to in-progress. An approved repair immediately attempts
// settlement; a settlement failure is left for the next sweep.
func (s *Service) replayDecidedProofs(ctx context.Context, proofs DecidedProofLister) (int, error) {
	list, err := proofs.ListDecidedForPendingTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list decided proofs: %w", err)
	}

	repaired := 0
	for _, p := range list {
		if p.Decision == nil {
			continue
		}
		task, err := s.Tasks.GetByID(ctx, p.TaskID)
		if err != nil {
			s.Logger.Error("reconcile: load task failed", "task_id", p.TaskID, "error", err)
			continue
		}
		if task.Status != models.TaskStatusPendingValidation {
			continue
		}

		from := task.Status
		approved := *p.Decision == models.ProofDecisionApproved
		if approved {
			task.Status = models.TaskStatusDone
			task.PaymentStatus = models.PaymentStatusPending
		} else {
			task.Status = models.TaskStatusInProgress
		}
		if ok, err := s.Tasks.Update(ctx, task); err != nil {
			s.Logger.Error("reconcile: repair failed", "task_id", task.ID, "error", err)
			continue
		} else if !ok {
			// Someone else is mutating the task; next sweep picks it up.
			continue
		}

		repaired++
		metrics.ReconcileRepairs.Inc()
		metrics.TaskTransitions.WithLabelValues(from, task.Status).Inc()
		s.Logger.Warn("reconcile: replayed decided proof onto stuck task",
			"task_id", task.ID, "proof_id", p.ID, "decision", *p.Decision)

		if approved {
			if err := s.HandleProofApproved(ctx, task.ID); err != nil {
				s.Logger.Error("reconcile: settlement after repair failed",
					"task_id", task.ID, "error", err)
			}
		}
	}
	return repaired, nil
}

// ReconcileArgs is the periodic reconciliation job.
type ReconcileArgs struct{}

func (ReconcileArgs) Kind() string { return "reconcile_settlements" }

type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]
	svc    *Service
	holds  ReleasedHoldLister
	proofs DecidedProofLister
}

func NewReconcileWorker(svc *Service, holds ReleasedHoldLister, proofs DecidedProofLister) *ReconcileWorker {
	return &ReconcileWorker{svc: svc, holds: holds, proofs: proofs}
}

func (w *ReconcileWorker) Work(ctx context.Context, job *river.Job[ReconcileArgs]) error {
	repaired, err := w.svc.Reconcile(ctx, w.holds, w.proofs)
	if err != nil {
		return err
	}
	if repaired > 0 {
		w.svc.Logger.Info("reconciliation sweep finished", "repaired", repaired)
	}
	return nil
}
