package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coursehub/backend/services/payments-service/internal/metrics"
	"coursehub/backend/services/payments-service/internal/models"
	"coursehub/backend/services/payments-service/internal/paystack"
	redisstore "coursehub/backend/services/payments-service/internal/redis"
	"coursehub/backend/services/payments-service/internal/repository"
)

// Failure classifications attached to a reconciliation result.
const (
	ReasonAmountMismatch = "amount_mismatch"
	ReasonGatewayFailed  = "gateway_failed"
)

// Client-facing verification statuses.
const (
	VerifyStatusSuccess = "success"
	VerifyStatusFailed  = "failed"
	VerifyStatusPending = "pending"
)

// TransactionStore defines the ledger contract used by the engine.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	FinalizeFromPending(ctx context.Context, reference, status string, payload []byte, completedAt *time.Time) (bool, error)
	SavePayload(ctx context.Context, reference string, payload []byte) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Transaction, error)
}

// GatewayVerifier re-fetches the authoritative payment status.
type GatewayVerifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.PaymentStatus, error)
}

// OutcomeCache caches terminal outcomes by reference. Optional.
type OutcomeCache interface {
	Save(ctx context.Context, outcome redisstore.Outcome) error
	Get(ctx context.Context, reference string) (*redisstore.Outcome, error)
}

// ReconcileResult is the engine's answer for one observed payload.
type ReconcileResult struct {
	Status       string // transaction status after this call
	UserID       int64
	CourseID     int64
	Transitioned bool   // this call won the pending→terminal write
	Reason       string // failure classification, empty on success
	// EnrollmentErr is set when the payment completed but the access grant
	// could not be created. The completed status stands regardless.
	EnrollmentErr error
}

// VerifyResult is the client confirmation path's answer.
type VerifyResult struct {
	Status   string `json:"status"`
	CourseID int64  `json:"course_id,omitempty"`
	Message  string `json:"message"`
}

// ReconcileService drives the one-way transaction state machine. Both the
// webhook and client confirmation paths converge here; correctness under
// concurrent or duplicate invocation comes from the store's conditional
// write, not from any in-process coordination.
type ReconcileService struct {
	store       TransactionStore
	gateway     GatewayVerifier
	enrollments *EnrollmentService
	cache       OutcomeCache
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewReconcileService builds the engine.
func NewReconcileService(
	store TransactionStore,
	gateway GatewayVerifier,
	enrollments *EnrollmentService,
	cache OutcomeCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:       store,
		gateway:     gateway,
		enrollments: enrollments,
		cache:       cache,
		metrics:     m,
		logger:      logger,
	}
}

// Reconcile applies one observed confirmation payload to the transaction
// identified by reference. Safe to call any number of times, from any number
// of instances, for the same reference: at most one call ever performs the
// completed transition and its enrollment side effect.
func (s *ReconcileService) Reconcile(ctx context.Context, reference string, observed *paystack.PaymentStatus) (*ReconcileResult, error) {
	tx, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	// Idempotency guard: redundant deliveries for a settled transaction only
	// refresh the audit payload.
	if tx.IsTerminal() {
		s.persistPayload(ctx, reference, observed.Raw)
		return &ReconcileResult{Status: tx.Status, UserID: tx.UserID, CourseID: tx.CourseID}, nil
	}

	target := models.TransactionStatusCompleted
	reason := ""
	switch {
	case observed.Status != paystack.StatusSuccess:
		target = models.TransactionStatusFailed
		reason = ReasonGatewayFailed
	case observed.AmountMinor != tx.AmountMinor:
		// Amount tampering or gateway-side inconsistency. Terminal, not
		// retryable: the captured price is the only trusted amount.
		target = models.TransactionStatusFailed
		reason = ReasonAmountMismatch
		s.logger.Warn("payment amount mismatch",
			zap.String("reference", reference),
			zap.Int64("expected_minor", tx.AmountMinor),
			zap.Int64("observed_minor", observed.AmountMinor),
		)
	}

	var completedAt *time.Time
	if target == models.TransactionStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	won, err := s.store.FinalizeFromPending(ctx, reference, target, observed.Raw, completedAt)
	if err != nil {
		return nil, err
	}
	if !won {
		// The other confirmation path transitioned first. Re-read the
		// terminal status and exit without side effects.
		current, err := s.store.GetByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
		s.persistPayload(ctx, reference, observed.Raw)
		return &ReconcileResult{Status: current.Status, UserID: current.UserID, CourseID: current.CourseID}, nil
	}

	result := &ReconcileResult{
		Status:       target,
		UserID:       tx.UserID,
		CourseID:     tx.CourseID,
		Transitioned: true,
		Reason:       reason,
	}

	outcome := target
	if reason == ReasonAmountMismatch {
		outcome = ReasonAmountMismatch
	}
	s.metrics.ReconcileOutcomes.WithLabelValues(outcome).Inc()

	s.cacheOutcome(ctx, redisstore.Outcome{
		Reference: reference,
		UserID:    tx.UserID,
		CourseID:  tx.CourseID,
		Status:    target,
	})

	if target == models.TransactionStatusFailed {
		s.logger.Info("transaction failed",
			zap.String("reference", reference),
			zap.String("reason", reason),
		)
		return result, nil
	}

	s.logger.Info("transaction completed",
		zap.String("reference", reference),
		zap.Int64("user_id", tx.UserID),
		zap.Int64("course_id", tx.CourseID),
	)

	// The completed write is already committed; a failing enrollment is a
	// reportable inconsistency, never a rollback.
	if _, err := s.enrollments.CreateIfAbsent(ctx, tx.UserID, tx.CourseID, tx.ID); err != nil {
		s.metrics.EnrollmentFailures.Inc()
		result.EnrollmentErr = err
	}

	return result, nil
}

// VerifyByReference is the client confirmation path: the buyer's return
// navigation supplies nothing but the reference, so the authoritative status
// is re-fetched from the gateway before feeding the same state machine.
func (s *ReconcileService) VerifyByReference(ctx context.Context, userID int64, reference string) (*VerifyResult, error) {
	if cached := s.cachedOutcome(ctx, reference); cached != nil && cached.UserID == userID {
		return verifyResultFor(cached.Status, cached.CourseID, nil), nil
	}

	tx, err := s.store.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		// Do not leak other buyers' references.
		return nil, repository.ErrTransactionNotFound
	}

	if tx.IsTerminal() {
		return verifyResultFor(tx.Status, tx.CourseID, nil), nil
	}

	observed, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		if errors.Is(err, paystack.ErrGatewayUnavailable) || errors.Is(err, paystack.ErrGatewayRejected) {
			// Never fail a transaction because we could not ask: the webhook
			// will settle it, the buyer can poll again.
			return &VerifyResult{
				Status:  VerifyStatusPending,
				Message: "payment verification is still in progress, check back shortly",
			}, nil
		}
		return nil, err
	}

	// The gateway may still report an in-flight status (buyer on the checkout
	// page, charge processing). That is not a confirmation signal yet.
	if !isFinalGatewayStatus(observed.Status) {
		return &VerifyResult{
			Status:  VerifyStatusPending,
			Message: "payment has not settled yet, check back shortly",
		}, nil
	}

	result, err := s.Reconcile(ctx, reference, observed)
	if err != nil {
		return nil, err
	}
	return verifyResultFor(result.Status, result.CourseID, result.EnrollmentErr), nil
}

// PaymentsForUser returns the buyer's transaction history.
func (s *ReconcileService) PaymentsForUser(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

func (s *ReconcileService) persistPayload(ctx context.Context, reference string, payload []byte) {
	if len(payload) == 0 {
		return
	}
	if err := s.store.SavePayload(ctx, reference, payload); err != nil {
		s.logger.Warn("failed to persist gateway payload", zap.String("reference", reference), zap.Error(err))
	}
}

func (s *ReconcileService) cacheOutcome(ctx context.Context, outcome redisstore.Outcome) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(ctx, outcome); err != nil {
		s.logger.Warn("failed to cache reconciliation outcome", zap.String("reference", outcome.Reference), zap.Error(err))
	}
}

func (s *ReconcileService) cachedOutcome(ctx context.Context, reference string) *redisstore.Outcome {
	if s.cache == nil {
		return nil
	}
	outcome, err := s.cache.Get(ctx, reference)
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("outcome cache read failed", zap.String("reference", reference), zap.Error(err))
		}
		return nil
	}
	return outcome
}

func isFinalGatewayStatus(status string) bool {
	return status == paystack.StatusSuccess || status == "failed" || status == "reversed"
}

func verifyResultFor(txStatus string, courseID int64, enrollmentErr error) *VerifyResult {
	switch txStatus {
	case models.TransactionStatusCompleted:
		if enrollmentErr != nil {
			return &VerifyResult{
				Status:   VerifyStatusSuccess,
				CourseID: courseID,
				Message:  "payment received, but access setup is delayed; contact support if the course does not appear",
			}
		}
		return &VerifyResult{
			Status:   VerifyStatusSuccess,
			CourseID: courseID,
			Message:  "payment verified",
		}
	case models.TransactionStatusFailed:
		return &VerifyResult{
			Status:  VerifyStatusFailed,
			Message: "payment was not successful",
		}
	default:
		return &VerifyResult{
			Status:  VerifyStatusPending,
			Message: "payment verification is still in progress, check back shortly",
		}
	}
}
