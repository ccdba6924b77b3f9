package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Event types emitted by the engine.
const (
	EventContractOffered  = "contract.offered"
	EventContractAccepted = "contract.accepted"
	EventContractRejected = "contract.rejected"
	EventTaskAssigned     = "task.assigned"
	EventProofSubmitted   = "proof.submitted"
	EventProofReviewed    = "proof.reviewed"
	EventTaskPaid         = "task.paid"
)

// InsertNotificationTxFunc enqueues a delivery job. Wired to the River client
// in main after the client exists.
type InsertNotificationTxFunc func(ctx context.Context, tx pgx.Tx, args NotificationJobArgs) error

// Enqueuer hands notifications to the delivery queue. Delivery is
// fire-and-forget from the caller's perspective: enqueue failures are logged,
// never propagated, so a dead queue cannot block a settlement.
type Enqueuer struct {
	mu       sync.Mutex
	insertFn InsertNotificationTxFunc
	logger   *slog.Logger
}

func NewEnqueuer(logger *slog.Logger) *Enqueuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enqueuer{logger: logger}
}

// SetInsertFunc wires the queue insert after the River client is built.
func (e *Enqueuer) SetInsertFunc(fn InsertNotificationTxFunc) {
	e.mu.Lock()
	e.insertFn = fn
	e.mu.Unlock()
}

func (e *Enqueuer) Notify(ctx context.Context, recipientID uuid.UUID, eventType string, payload any) {
	e.mu.Lock()
	fn := e.insertFn
	e.mu.Unlock()
	if fn == nil {
		e.logger.Warn("notification dropped, queue not wired", "event", eventType, "recipient_id", recipientID)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("notification payload marshal failed", "event", eventType, "error", err)
		return
	}
	args := NotificationJobArgs{
		RecipientID: recipientID,
		EventType:   eventType,
		Payload:     body,
	}
	if err := fn(ctx, nil, args); err != nil {
		e.logger.Error("notification enqueue failed", "event", eventType, "recipient_id", recipientID, "error", err)
	}
}
