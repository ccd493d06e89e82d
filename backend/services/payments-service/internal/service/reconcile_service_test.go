package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"coursehub/backend/services/payments-service/internal/metrics"
	"coursehub/backend/services/payments-service/internal/models"
	"coursehub/backend/services/payments-service/internal/paystack"
	"coursehub/backend/services/payments-service/internal/repository"
)

type fakeTxStore struct {
	mu     sync.Mutex
	nextID int64
	txs    map[string]*models.Transaction
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{txs: make(map[string]*models.Transaction)}
}

func (f *fakeTxStore) Create(ctx context.Context, tx *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.txs[tx.GatewayReference]; exists {
		return errors.New("duplicate reference")
	}
	f.nextID++
	tx.ID = f.nextID
	tx.CreatedAt = time.Now().UTC()
	tx.UpdatedAt = tx.CreatedAt
	clone := *tx
	f.txs[tx.GatewayReference] = &clone
	return nil
}

func (f *fakeTxStore) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[reference]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	clone := *tx
	return &clone, nil
}

// FinalizeFromPending mirrors the conditional UPDATE ... WHERE status='pending'
// semantics: exactly one concurrent caller observes an affected row.
func (f *fakeTxStore) FinalizeFromPending(ctx context.Context, reference, status string, payload []byte, completedAt *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[reference]
	if !ok || tx.Status != models.TransactionStatusPending {
		return false, nil
	}
	tx.Status = status
	tx.GatewayPayload = append([]byte(nil), payload...)
	if completedAt != nil {
		tx.CompletedAt = completedAt
	}
	tx.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakeTxStore) SavePayload(ctx context.Context, reference string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[reference]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	tx.GatewayPayload = append([]byte(nil), payload...)
	return nil
}

func (f *fakeTxStore) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Transaction
	for _, tx := range f.txs {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (f *fakeTxStore) status(reference string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[reference]; ok {
		return tx.Status
	}
	return ""
}

type fakeEnrollStore struct {
	mu      sync.Mutex
	calls   int
	granted map[[2]int64]bool
	failErr error
}

func newFakeEnrollStore() *fakeEnrollStore {
	return &fakeEnrollStore{granted: make(map[[2]int64]bool)}
}

func (f *fakeEnrollStore) CreateIfAbsent(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failErr != nil {
		return nil, f.failErr
	}
	f.granted[[2]int64{enrollment.UserID, enrollment.CourseID}] = true
	enrollment.ID = int64(len(f.granted))
	enrollment.CreatedAt = time.Now().UTC()
	return enrollment, nil
}

func (f *fakeEnrollStore) Exists(ctx context.Context, userID, courseID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted[[2]int64{userID, courseID}], nil
}

func (f *fakeEnrollStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGateway struct {
	status *paystack.PaymentStatus
	err    error
}

func (f *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (*paystack.PaymentStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	clone := *f.status
	clone.Reference = reference
	return &clone, nil
}

func newEngine(store *fakeTxStore, gateway GatewayVerifier, enrollStore *fakeEnrollStore) *ReconcileService {
	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	enrollments := NewEnrollmentService(enrollStore, logger)
	return NewReconcileService(store, gateway, enrollments, nil, m, logger)
}

func pendingTransaction(t *testing.T, store *fakeTxStore, reference string) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		UserID:           7,
		CourseID:         42,
		GatewayReference: reference,
		AmountMinor:      49900,
		Currency:         "ZAR",
		Status:           models.TransactionStatusPending,
	}
	if err := store.Create(context.Background(), tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func successPayload(amount int64) *paystack.PaymentStatus {
	return &paystack.PaymentStatus{
		Status:      paystack.StatusSuccess,
		AmountMinor: amount,
		Currency:    "ZAR",
		Raw:         json.RawMessage(`{"event":"charge.success"}`),
	}
}

func TestReconcileCompletesAndEnrolls(t *testing.T) {
	store := newFakeTxStore()
	enrollStore := newFakeEnrollStore()
	engine := newEngine(store, &fakeGateway{}, enrollStore)
	pendingTransaction(t, store, "ref-a")

	result, err := engine.Reconcile(context.Background(), "ref-a", successPayload(49900))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.Transitioned {
		t.Fatalf("expected this call to perform the transition")
	}
	if result.Status != models.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if store.status("ref-a") != models.TransactionStatusCompleted {
		t.Fatalf("expected stored status completed, got %s", store.status("ref-a"))
	}
	if enrollStore.callCount() != 1 {
		t.Fatalf("expected exactly one enrollment call, got %d", enrollStore.callCount())
	}
	enrolled, _ := enrollStore.Exists(context.Background(), 7, 42)
	if !enrolled {
		t.Fatalf("expected enrollment for (7, 42)")
	}
}

func TestReconcileAmountMismatchFails(t *testing.T) {
	store := newFakeTxStore()
	enrollStore := newFakeEnrollStore()
	engine := newEngine(store, &fakeGateway{}, enrollStore)
	pendingTransaction(t, store, "ref-b")

	result, err := engine.Reconcile(context.Background(), "ref-b", successPayload(40000))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Status != models.TransactionStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Reason != ReasonAmountMismatch {
		t.Fatalf("expected amount mismatch reason, got %q", result.Reason)
	}
	if enrollStore.callCount() != 0 {
		t.Fatalf("expected no enrollment, got %d calls", enrollStore.callCount())
	}
}

func TestReconcileGatewayFailureFails(t *testing.T) {
	store := newFakeTxStore()
	enrollStore := newFakeEnrollStore()
	engine := newEngine(store, &fakeGateway{}, enrollStore)
	pendingTransaction(t, store, "ref-c")

	payload := &paystack.PaymentStatus{Status: "failed", AmountMinor: 49900, Raw: json.RawMessage(`{}`)}
	result, err := engine.Reconcile(context.Background(), "ref-c", payload)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Status != models.TransactionStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if enrollStore.callCount() != 0 {
		t.Fatalf("expected no enrollment on failed payment")
	}
}

func TestReconcileDuplicateDeliveryNoOps(t *testing.T) {
	store := newFakeTxStore()
	enrollStore := newFakeEnrollStore()
	engine := newEngine(store, &fakeGateway{}, enrollStore)
	pendingTransaction(t, store, "ref-d")

	if _, err := engine.Reconcile(context.Background(), "ref-d", successPayload(49900)); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	second, err := engine.Reconcile(context.Background(), "ref-d", successPayload(49900))
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if second.Transitioned {
		t.Fatalf("expected duplicate delivery to be a no-op")
	}
	if second.Status != models.TransactionStatusCompleted {
		t.Fatalf("expected completed on duplicate, got %s", second.Status)
	}
	if enrollStore.callCount() != 1 {
		t.Fatalf("expected one enrollment call total, got %d", enrollStore.callCount())
	}
}

func TestReconcileTerminalStateNeverRegresses(t *testing.T) {
	store := newFakeTxStore()
	enrollStore := newFakeEnrollStore()
	engine := newEngine(store, &fakeGateway{}, enrollStore)
	pendingTransaction(t, store, "ref-e")

	if _, err := engine.Reconcile(context.Background(), "ref-e", successPayload(40000)); err != nil {
		t.Fatalf("mismatch reconcile: %v", err)
	}
	if store.status("ref-e") != models.TransactionStatusFailed {
		t.Fatalf("expected failed after mismatch")
	}

	// A later well-formed success payload must not flip a failed transaction.
	result, err := engine.Reconcile(context.Background(), "ref-e", successPayload(49900))
	if err != nil {
		t.Fatalf("late success reconcile: %v", err)
	}
	if result.Status != models.TransactionStatusFailed {
		t.Fatalf("expected failed to stick, got %s", result.Status)
	}
	if enrollStore.callCount() != 0 {
		t.Fatalf("expected no enrollment after terminal failed")
	}
}

func TestReconcileUnknownReference(t *testing.T) {
	store := newFakeTxStore()
	engine := newEngine(store, &fakeGateway{}, newFakeEnrollStore())

	_, err := engine.Reconcile(context.Background(), "ref-missing", successPayload(49900))
	if !errors.Is(err, repository.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestReconcileConcurrentCallsTransitionOnce(t *testing.T) {
	store := newFakeTxStore()
	enrollStore := newFakeEnrollStore()
	engine := newEngine(store, &fakeGateway{}, enrollStore)
	pendingTransaction(t, store, "ref-f")

	const callers = 32
	results := make(chan *ReconcileResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.Reconcile(context.Background(), "ref-f", successPayload(49900))
			if err != nil {
				t.Errorf("reconcile: %v", err)
				return
			}
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	transitions := 0
	for result := range results {
		if result.Transitioned {
			transitions++
		}
		if result.Status != models.TransactionStatusCompleted {
			t.Fatalf("every caller should observe completed, got %s", result.Status)
		}
	}
	if transitions != 1 {
		t.Fatalf("expected exactly one transition, got %d", transitions)
	}
	if enrollStore.callCount() != 1 {
		t.Fatalf("expected exactly one enrollment call, got %d", enrollStore.callCount())
	}
}

func TestWebhookAndClientPathsRace(t *testing.T) {
	store := newFakeTxStore()
	enrollStore := newFakeEnrollStore()
	gateway := &fakeGateway{status: successPayload(49900)}
	engine := newEngine(store, gateway, enrollStore)
	pendingTransaction(t, store, "ref-g")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := engine.Reconcile(context.Background(), "ref-g", successPayload(49900)); err != nil {
			t.Errorf("webhook path: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := engine.VerifyByReference(context.Background(), 7, "ref-g"); err != nil {
			t.Errorf("client path: %v", err)
		}
	}()
	wg.Wait()

	if store.status("ref-g") != models.TransactionStatusCompleted {
		t.Fatalf("expected completed, got %s", store.status("ref-g"))
	}
	if enrollStore.callCount() != 1 {
		t.Fatalf("expected exactly one enrollment call, got %d", enrollStore.callCount())
	}
}

func TestClientPathCompletesBeforeWebhook(t *testing.T) {
	store := newFakeTxStore()
	enrollStore := newFakeEnrollStore()
	gateway := &fakeGateway{status: successPayload(49900)}
	engine := newEngine(store, gateway, enrollStore)
	pendingTransaction(t, store, "ref-h")

	verify, err := engine.VerifyByReference(context.Background(), 7, "ref-h")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verify.Status != VerifyStatusSuccess {
		t.Fatalf("expected success, got %s", verify.Status)
	}
	if verify.CourseID != 42 {
		t.Fatalf("expected course id 42, got %d", verify.CourseID)
	}

	// Webhook arrives seconds later for the same reference and must no-op.
	late, err := engine.Reconcile(context.Background(), "ref-h", successPayload(49900))
	if err != nil {
		t.Fatalf("late webhook: %v", err)
	}
	if late.Transitioned {
		t.Fatalf("expected late webhook to be a no-op")
	}
	if enrollStore.callCount() != 1 {
		t.Fatalf("expected one enrollment call, got %d", enrollStore.callCount())
	}
}

func TestVerifyGatewayUnavailableReportsPending(t *testing.T) {
	store := newFakeTxStore()
	gateway := &fakeGateway{err: paystack.ErrGatewayUnavailable}
	engine := newEngine(store, gateway, newFakeEnrollStore())
	pendingTransaction(t, store, "ref-i")

	result, err := engine.VerifyByReference(context.Background(), 7, "ref-i")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Status != VerifyStatusPending {
		t.Fatalf("gateway outage must map to pending, got %s", result.Status)
	}
	if store.status("ref-i") != models.TransactionStatusPending {
		t.Fatalf("transaction must stay pending, got %s", store.status("ref-i"))
	}
}

func TestVerifyInFlightGatewayStatusReportsPending(t *testing.T) {
	store := newFakeTxStore()
	gateway := &fakeGateway{status: &paystack.PaymentStatus{Status: "abandoned", Raw: json.RawMessage(`{}`)}}
	engine := newEngine(store, gateway, newFakeEnrollStore())
	pendingTransaction(t, store, "ref-j")

	result, err := engine.VerifyByReference(context.Background(), 7, "ref-j")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Status != VerifyStatusPending {
		t.Fatalf("in-flight status must map to pending, got %s", result.Status)
	}
	if store.status("ref-j") != models.TransactionStatusPending {
		t.Fatalf("transaction must stay pending, got %s", store.status("ref-j"))
	}
}

func TestVerifyRejectsForeignReference(t *testing.T) {
	store := newFakeTxStore()
	engine := newEngine(store, &fakeGateway{status: successPayload(49900)}, newFakeEnrollStore())
	pendingTransaction(t, store, "ref-k")

	_, err := engine.VerifyByReference(context.Background(), 99, "ref-k")
	if !errors.Is(err, repository.ErrTransactionNotFound) {
		t.Fatalf("expected not-found for another user's reference, got %v", err)
	}
}

func TestEnrollmentFailureDoesNotRollBackCompletion(t *testing.T) {
	store := newFakeTxStore()
	enrollStore := newFakeEnrollStore()
	enrollStore.failErr = errors.New("insert refused")
	engine := newEngine(store, &fakeGateway{}, enrollStore)
	pendingTransaction(t, store, "ref-l")

	result, err := engine.Reconcile(context.Background(), "ref-l", successPayload(49900))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Status != models.TransactionStatusCompleted {
		t.Fatalf("expected completed despite enrollment failure, got %s", result.Status)
	}
	if !errors.Is(result.EnrollmentErr, ErrEnrollmentFailed) {
		t.Fatalf("expected ErrEnrollmentFailed, got %v", result.EnrollmentErr)
	}
	if store.status("ref-l") != models.TransactionStatusCompleted {
		t.Fatalf("completed status must not be rolled back")
	}

	verify, err := engine.VerifyByReference(context.Background(), 7, "ref-l")
	if err != nil {
		t.Fatalf("verify after enrollment failure: %v", err)
	}
	if verify.Status != VerifyStatusSuccess {
		t.Fatalf("buyer must see success for a settled payment, got %s", verify.Status)
	}
}
