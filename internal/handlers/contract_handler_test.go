package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/workpact/backend/internal/contracts"
	"github.com/workpact/backend/internal/escrow"
	"github.com/workpact/backend/internal/middleware"
	"github.com/workpact/backend/internal/models"
	"github.com/workpact/backend/internal/orchestrator"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubContractService struct {
	contract   *models.Contract
	offerErr   error
	acceptErr  error
	resolveErr error
}

func (s *stubContractService) Offer(_ context.Context, senderID, recipientID uuid.UUID, contractType string, rawTerms json.RawMessage, _ int) (*models.Contract, error) {
	if s.offerErr != nil {
		return nil, s.offerErr
	}
	return &models.Contract{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Type:        contractType,
		Terms:       rawTerms,
		Status:      models.ContractStatusPending,
		ExpiresAt:   time.Now().UTC().Add(24 * time.Hour),
	}, nil
}

func (s *stubContractService) Get(_ context.Context, _ uuid.UUID) (*models.Contract, error) {
	if s.contract == nil {
		return nil, pgx.ErrNoRows
	}
	return s.contract, nil
}

func (s *stubContractService) Accept(_ context.Context, _, actorID uuid.UUID) (*models.Contract, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	c := *s.contract
	c.Status = models.ContractStatusAccepted
	c.ResolvedBy = &actorID
	return &c, nil
}

func (s *stubContractService) Reject(_ context.Context, _, actorID uuid.UUID) (*models.Contract, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	c := *s.contract
	c.Status = models.ContractStatusRejected
	c.ResolvedBy = &actorID
	return &c, nil
}

func (s *stubContractService) Cancel(ctx context.Context, id, actorID uuid.UUID) (*models.Contract, error) {
	return s.Reject(ctx, id, actorID)
}

func (s *stubContractService) ListByParty(_ context.Context, _ uuid.UUID) ([]*models.Contract, error) {
	if s.contract == nil {
		return nil, nil
	}
	return []*models.Contract{s.contract}, nil
}

type stubFulfiller struct {
	err    error
	called int
}

func (s *stubFulfiller) HandleContractAccepted(_ context.Context, _ uuid.UUID) error {
	s.called++
	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authedRequest(method, target, body string, actor uuid.UUID) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	return req.WithContext(middleware.WithActor(req.Context(), actor))
}

// ---------------------------------------------------------------------------
// Offer
// ---------------------------------------------------------------------------

func TestOfferContract(t *testing.T) {
	actor := uuid.New()
	recipient := uuid.New()
	h := &ContractHandler{
		Contracts: &stubContractService{},
		Fulfiller: &stubFulfiller{},
		Logger:    discardLogger(),
	}

	body := `{"recipient_id":"` + recipient.String() + `","type":"subtask_hire","terms":{"taskId":"` + uuid.NewString() + `","budget":5000,"currency":"USD"},"expires_in_days":7}`
	rec := httptest.NewRecorder()
	h.Offer(rec, authedRequest(http.MethodPost, "/v1/contracts", body, actor))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	var resp contractResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SenderID != actor.String() {
		t.Errorf("sender_id: got %s, want the authenticated actor %s", resp.SenderID, actor)
	}
	if resp.Status != models.ContractStatusPending {
		t.Errorf("status: got %s, want pending", resp.Status)
	}
}

func TestOfferContractRejectsBadRecipient(t *testing.T) {
	h := &ContractHandler{Contracts: &stubContractService{}, Fulfiller: &stubFulfiller{}, Logger: discardLogger()}
	rec := httptest.NewRecorder()
	h.Offer(rec, authedRequest(http.MethodPost, "/v1/contracts", `{"recipient_id":"not-a-uuid"}`, uuid.New()))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Accept: acceptance sticks regardless of how fulfillment goes.
// ---------------------------------------------------------------------------

func TestAcceptFulfillmentOutcomes(t *testing.T) {
	recipient := uuid.New()
	pending := &models.Contract{
		ID:          uuid.New(),
		SenderID:    uuid.New(),
		RecipientID: recipient,
		Type:        models.ContractTypeSubtaskHire,
		Status:      models.ContractStatusPending,
		ExpiresAt:   time.Now().UTC().Add(24 * time.Hour),
	}

	cases := []struct {
		name       string
		fulfillErr error
		wantStatus int
	}{
		{"fulfilled", nil, http.StatusOK},
		{"insufficient funds", escrow.ErrInsufficientFunds, http.StatusPaymentRequired},
		{"task not assignable", orchestrator.ErrNotAssignable, http.StatusConflict},
		{"transient failure", errors.New("pool exhausted"), http.StatusAccepted},
	}
	for _, tc := range cases {
		fulfiller := &stubFulfiller{err: tc.fulfillErr}
		h := &ContractHandler{
			Contracts: &stubContractService{contract: pending},
			Fulfiller: fulfiller,
			Logger:    discardLogger(),
		}

		req := authedRequest(http.MethodPost, "/v1/contracts/"+pending.ID.String()+"/accept", "", recipient)
		req.SetPathValue("id", pending.ID.String())
		rec := httptest.NewRecorder()
		h.Accept(rec, req)

		if rec.Code != tc.wantStatus {
			t.Errorf("%s: status got %d, want %d", tc.name, rec.Code, tc.wantStatus)
		}
		if fulfiller.called != 1 {
			t.Errorf("%s: fulfiller called %d times, want 1", tc.name, fulfiller.called)
		}
	}
}

func TestAcceptDoesNotFulfillWhenAcceptanceFails(t *testing.T) {
	fulfiller := &stubFulfiller{}
	h := &ContractHandler{
		Contracts: &stubContractService{acceptErr: contracts.ErrNotRecipient},
		Fulfiller: fulfiller,
		Logger:    discardLogger(),
	}

	id := uuid.New()
	req := authedRequest(http.MethodPost, "/v1/contracts/"+id.String()+"/accept", "", uuid.New())
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	h.Accept(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", rec.Code)
	}
	if fulfiller.called != 0 {
		t.Error("fulfiller must not run when acceptance is refused")
	}
}

// ---------------------------------------------------------------------------
// Error mapping through resolve and Get.
// ---------------------------------------------------------------------------

func TestResolveErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"already resolved", contracts.ErrAlreadyResolved, http.StatusConflict},
		{"expired", contracts.ErrExpired, http.StatusConflict},
		{"not sender", contracts.ErrNotSender, http.StatusForbidden},
		{"missing", pgx.ErrNoRows, http.StatusNotFound},
	}
	for _, tc := range cases {
		h := &ContractHandler{
			Contracts: &stubContractService{contract: &models.Contract{}, resolveErr: tc.err},
			Fulfiller: &stubFulfiller{},
			Logger:    discardLogger(),
		}
		id := uuid.New()
		req := authedRequest(http.MethodPost, "/v1/contracts/"+id.String()+"/cancel", "", uuid.New())
		req.SetPathValue("id", id.String())
		rec := httptest.NewRecorder()
		h.Cancel(rec, req)
		if rec.Code != tc.wantStatus {
			t.Errorf("%s: status got %d, want %d", tc.name, rec.Code, tc.wantStatus)
		}
	}
}

func TestGetContractNotFound(t *testing.T) {
	h := &ContractHandler{Contracts: &stubContractService{}, Fulfiller: &stubFulfiller{}, Logger: discardLogger()}
	id := uuid.New()
	req := authedRequest(http.MethodGet, "/v1/contracts/"+id.String(), "", uuid.New())
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}
