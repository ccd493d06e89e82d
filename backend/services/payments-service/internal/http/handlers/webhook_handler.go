package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"coursehub/backend/services/payments-service/internal/metrics"
	"coursehub/backend/services/payments-service/internal/paystack"
	"coursehub/backend/services/payments-service/internal/repository"
	"coursehub/backend/services/payments-service/internal/service"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler receives gateway notifications. Authentication is the body
// signature, checked against the raw bytes before any parsing. The endpoint
// is idempotent: redelivering a processed event answers 200.
type WebhookHandler struct {
	engine  *service.ReconcileService
	secret  []byte
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewWebhookHandler builds handler.
func NewWebhookHandler(engine *service.ReconcileService, secret string, m *metrics.Metrics, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		engine:  engine,
		secret:  []byte(secret),
		metrics: m,
		logger:  logger,
	}
}

// ServeHTTP handles POST /webhooks/paystack.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !paystack.VerifySignature(rawBody, r.Header.Get(paystack.SignatureHeader), h.secret) {
		h.metrics.WebhookRejected.WithLabelValues("bad_signature").Inc()
		h.logger.Warn("webhook signature rejected", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event, err := paystack.ParseWebhookEvent(rawBody)
	if err != nil {
		h.metrics.WebhookRejected.WithLabelValues("malformed").Inc()
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	if !event.IsChargeEvent() {
		// Signed but irrelevant event family; acknowledge so the gateway
		// stops redelivering.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if event.Data.Reference == "" {
		writeError(w, http.StatusBadRequest, "missing reference")
		return
	}

	result, err := h.engine.Reconcile(r.Context(), event.Data.Reference, event.PaymentStatus(rawBody))
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			h.logger.Warn("webhook for unknown reference", zap.String("reference", event.Data.Reference))
			writeError(w, http.StatusNotFound, "unknown reference")
			return
		}
		h.logger.Error("webhook reconciliation failed", zap.String("reference", event.Data.Reference), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	if result.Transitioned && result.Reason == service.ReasonAmountMismatch {
		writeError(w, http.StatusBadRequest, "amount mismatch")
		return
	}

	if result.EnrollmentErr != nil {
		// The payment is settled; enrollment remediation is an operator task.
		// Still 200: redelivery would change nothing.
		h.logger.Error("enrollment failed after completed payment",
			zap.String("reference", event.Data.Reference),
			zap.Error(result.EnrollmentErr),
		)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": result.Status})
}
