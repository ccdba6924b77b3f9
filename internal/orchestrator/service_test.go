package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/workpact/backend/internal/escrow"
	"github.com/workpact/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- task repo with version CAS ---

type mockTasks struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newMockTasks(ts ...*models.Task) *mockTasks {
	m := &mockTasks{tasks: make(map[uuid.UUID]*models.Task)}
	for _, t := range ts {
		cp := *t
		m.tasks[t.ID] = &cp
	}
	return m
}

func (m *mockTasks) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *mockTasks) Update(_ context.Context, t *models.Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[t.ID]
	if !ok || cur.Version != t.Version {
		return false, nil
	}
	cp := *t
	cp.Version++
	m.tasks[t.ID] = &cp
	t.Version = cp.Version
	return true, nil
}

func (m *mockTasks) UpdateTx(ctx context.Context, _ pgx.Tx, t *models.Task) (bool, error) {
	return m.Update(ctx, t)
}

func (m *mockTasks) get(id uuid.UUID) *models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.tasks[id]
	return &cp
}

// --- contract repo ---

type mockContracts struct {
	contracts map[uuid.UUID]*models.Contract
}

func (m *mockContracts) GetByID(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

// --- wallet repo ---

type mockWallets struct {
	mu      sync.Mutex
	byOwner map[uuid.UUID]*models.Wallet
}

func newMockWallets() *mockWallets {
	return &mockWallets{byOwner: make(map[uuid.UUID]*models.Wallet)}
}

func (m *mockWallets) EnsureForOwner(_ context.Context, ownerID uuid.UUID, currency string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.byOwner[ownerID]; ok {
		cp := *w
		return &cp, nil
	}
	w := &models.Wallet{ID: uuid.New(), OwnerID: ownerID, Currency: currency}
	m.byOwner[ownerID] = w
	cp := *w
	return &cp, nil
}

// --- escrow service mock ---

type mockEscrow struct {
	mu           sync.Mutex
	holds        map[uuid.UUID]*models.EscrowHold
	openErr      error
	releaseErr   error
	releaseCalls int
}

func newMockEscrow() *mockEscrow {
	return &mockEscrow{holds: make(map[uuid.UUID]*models.EscrowHold)}
}

func (m *mockEscrow) Open(_ context.Context, _ pgx.Tx, walletID uuid.UUID, amountCents int64, currency string, contractID, taskID, projectID *uuid.UUID) (*models.EscrowHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	h := &models.EscrowHold{
		ID:          uuid.New(),
		ContractID:  contractID,
		WalletID:    walletID,
		TaskID:      taskID,
		ProjectID:   projectID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      models.EscrowStatusHeld,
	}
	m.holds[h.ID] = h
	return h, nil
}

func (m *mockEscrow) Release(_ context.Context, _ pgx.Tx, holdID, destWalletID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++
	if m.releaseErr != nil {
		return m.releaseErr
	}
	h, ok := m.holds[holdID]
	if !ok || h.Status != models.EscrowStatusHeld {
		return escrow.ErrHoldNotActive
	}
	now := time.Now().UTC()
	h.Status = models.EscrowStatusReleased
	h.DestinationWalletID = &destWalletID
	h.ReleasedAt = &now
	return nil
}

func (m *mockEscrow) GetByContractID(_ context.Context, contractID uuid.UUID) (*models.EscrowHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.holds {
		if h.ContractID != nil && *h.ContractID == contractID {
			cp := *h
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockEscrow) GetActiveByTask(_ context.Context, taskID uuid.UUID) (*models.EscrowHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.holds {
		if h.TaskID != nil && *h.TaskID == taskID && h.Status == models.EscrowStatusHeld {
			cp := *h
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockEscrow) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holds)
}

// --- member adder ---

type mockMembers struct {
	added []*models.ProjectMember
}

func (m *mockMembers) AddMember(_ context.Context, mem *models.ProjectMember) error {
	m.added = append(m.added, mem)
	return nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func hireContract(sender, recipient, taskID uuid.UUID, budget int64) *models.Contract {
	terms := json.RawMessage(fmt.Sprintf(`{"taskId":%q,"budget":%d,"currency":"USD"}`, taskID, budget))
	return &models.Contract{
		ID:          uuid.New(),
		SenderID:    sender,
		RecipientID: recipient,
		Type:        models.ContractTypeSubtaskHire,
		Terms:       terms,
		Status:      models.ContractStatusAccepted,
		ExpiresAt:   time.Now().UTC().Add(24 * time.Hour),
	}
}

func newFixture(c *models.Contract, ts ...*models.Task) (*Service, *mockTasks, *mockEscrow, *mockMembers) {
	taskRepo := newMockTasks(ts...)
	esc := newMockEscrow()
	members := &mockMembers{}
	svc := NewService(
		mockPool{},
		taskRepo,
		&mockContracts{contracts: map[uuid.UUID]*models.Contract{c.ID: c}},
		newMockWallets(),
		esc,
		members,
		nil,
		nil,
	)
	return svc, taskRepo, esc, members
}

// ---------------------------------------------------------------------------
// 1. Acceptance fulfillment: assign + escrow, atomically or not at all.
// ---------------------------------------------------------------------------

func TestHandleContractAcceptedHire(t *testing.T) {
	sender, recipient := uuid.New(), uuid.New()
	task := &models.Task{ID: uuid.New(), ProjectID: uuid.New(), Status: models.TaskStatusTodo, AmountCents: 30000, Currency: "USD"}
	c := hireContract(sender, recipient, task.ID, 25000)
	svc, taskRepo, esc, _ := newFixture(c, task)

	if err := svc.HandleContractAccepted(context.Background(), c.ID); err != nil {
		t.Fatalf("HandleContractAccepted: %v", err)
	}

	got := taskRepo.get(task.ID)
	if got.Status != models.TaskStatusInProgress {
		t.Errorf("task status: got %s, want in-progress", got.Status)
	}
	if got.AssigneeID == nil || *got.AssigneeID != recipient {
		t.Error("task should be assigned to the contract recipient")
	}

	hold, err := esc.GetByContractID(context.Background(), c.ID)
	if err != nil || hold == nil {
		t.Fatalf("hold for contract: %v, %v", hold, err)
	}
	if hold.AmountCents != 25000 {
		t.Errorf("hold amount: got %d, want the contract budget 25000", hold.AmountCents)
	}
	if hold.TaskID == nil || *hold.TaskID != task.ID {
		t.Error("hold should reference the task")
	}
}

func TestHandleContractAcceptedRollsBackOnEscrowFailure(t *testing.T) {
	sender, recipient := uuid.New(), uuid.New()
	task := &models.Task{ID: uuid.New(), ProjectID: uuid.New(), Status: models.TaskStatusTodo, AmountCents: 30000, Currency: "USD"}
	c := hireContract(sender, recipient, task.ID, 25000)
	svc, taskRepo, esc, _ := newFixture(c, task)
	esc.openErr = escrow.ErrInsufficientFunds

	err := svc.HandleContractAccepted(context.Background(), c.ID)
	if !errors.Is(err, escrow.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The assignment was compensated: back to todo, no assignee, no hold.
	got := taskRepo.get(task.ID)
	if got.Status != models.TaskStatusTodo || got.AssigneeID != nil {
		t.Errorf("after rollback: got %s assignee %v, want todo/nil", got.Status, got.AssigneeID)
	}
	if esc.count() != 0 {
		t.Errorf("no hold should exist, got %d", esc.count())
	}
}

func TestHandleContractAcceptedIsIdempotent(t *testing.T) {
	sender, recipient := uuid.New(), uuid.New()
	task := &models.Task{ID: uuid.New(), ProjectID: uuid.New(), Status: models.TaskStatusTodo, AmountCents: 30000, Currency: "USD"}
	c := hireContract(sender, recipient, task.ID, 25000)
	svc, _, esc, _ := newFixture(c, task)

	ctx := context.Background()
	if err := svc.HandleContractAccepted(ctx, c.ID); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.HandleContractAccepted(ctx, c.ID); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if esc.count() != 1 {
		t.Errorf("duplicate delivery opened %d holds, want 1", esc.count())
	}
}

func TestHandleContractAcceptedRoleAssignment(t *testing.T) {
	sender, recipient := uuid.New(), uuid.New()
	projectID := uuid.New()
	c := &models.Contract{
		ID:          uuid.New(),
		SenderID:    sender,
		RecipientID: recipient,
		Type:        models.ContractTypeRoleAssignment,
		Terms:       json.RawMessage(fmt.Sprintf(`{"projectId":%q,"role":"supervisor"}`, projectID)),
		Status:      models.ContractStatusAccepted,
		ExpiresAt:   time.Now().UTC().Add(24 * time.Hour),
	}
	svc, _, _, members := newFixture(c)

	if err := svc.HandleContractAccepted(context.Background(), c.ID); err != nil {
		t.Fatalf("HandleContractAccepted: %v", err)
	}
	if len(members.added) != 1 {
		t.Fatalf("members added: got %d, want 1", len(members.added))
	}
	m := members.added[0]
	if m.UserID != recipient || m.ProjectID != projectID || m.Role != models.RoleSupervisor {
		t.Errorf("granted membership: got %+v", m)
	}
}

// ---------------------------------------------------------------------------
// 2. Settlement: release + paid share one outcome.
// ---------------------------------------------------------------------------

func settlementFixture(t *testing.T) (*Service, *mockTasks, *mockEscrow, uuid.UUID) {
	t.Helper()
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
	return svc, taskRepo, esc, task.ID
}

func TestHandleProofApprovedSettles(t *testing.T) {
	svc, taskRepo, esc, taskID := settlementFixture(t)

	if err := svc.HandleProofApproved(context.Background(), taskID); err != nil {
		t.Fatalf("HandleProofApproved: %v", err)
	}

	got := taskRepo.get(taskID)
	if got.Status != models.TaskStatusPaid || got.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("task after settle: got %s/%s, want paid/paid", got.Status, got.PaymentStatus)
	}
	if got.ArchivedAt == nil {
		t.Error("settled task should be archived")
	}
	if hold, _ := esc.GetActiveByTask(context.Background(), taskID); hold != nil {
		t.Error("hold should no longer be active")
	}

	// Re-delivery of the approval is a no-op.
	if err := svc.HandleProofApproved(context.Background(), taskID); err != nil {
		t.Errorf("duplicate approval: %v", err)
	}
	if esc.releaseCalls != 1 {
		t.Errorf("release calls: got %d, want 1", esc.releaseCalls)
	}
}

func TestHandleProofApprovedReleaseFailureLeavesPaymentPending(t *testing.T) {
	svc, taskRepo, esc, taskID := settlementFixture(t)
	esc.releaseErr = errors.New("hold store unavailable")

	if err := svc.HandleProofApproved(context.Background(), taskID); err == nil {
		t.Fatal("expected settlement error")
	}

	// The task stays done/pending so a retry can settle it.
	got := taskRepo.get(taskID)
	if got.Status != models.TaskStatusDone || got.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("task after failed settle: got %s/%s, want done/pending", got.Status, got.PaymentStatus)
	}
}

// Reconciliation sweeps are covered in reconcile_test.go.
