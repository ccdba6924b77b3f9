package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

type NotificationJobArgs struct {
	RecipientID uuid.UUID       `json:"recipient_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
}

func (NotificationJobArgs) Kind() string { return "deliver_notification" }

// DeliverWorker posts notifications to the configured webhook. Non-2xx
// responses are returned as errors so River retries with backoff.
type DeliverWorker struct {
	river.WorkerDefaults[NotificationJobArgs]
	webhookURL string
	httpClient *http.Client
}

func NewDeliverWorker(webhookURL string) *DeliverWorker {
	return &DeliverWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[NotificationJobArgs]) error {
	if w.webhookURL == "" {
		// No sink configured; drop silently.
		return nil
	}
	args := job.Args

	body, err := json.Marshal(map[string]any{
		"recipient_id": args.RecipientID,
		"event_type":   args.EventType,
		"payload":      args.Payload,
		"sent_at":      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification sink returned status %d", resp.StatusCode)
	}
	return nil
}
