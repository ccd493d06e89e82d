package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"coursehub/backend/services/payments-service/internal/clients"
	"coursehub/backend/services/payments-service/internal/http/middleware"
	"coursehub/backend/services/payments-service/internal/paystack"
	"coursehub/backend/services/payments-service/internal/service"
)

// CheckoutHandler starts a payment session for a course.
type CheckoutHandler struct {
	checkout *service.CheckoutService
	logger   *zap.Logger
}

// NewCheckoutHandler builds handler.
func NewCheckoutHandler(checkout *service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, logger: logger}
}

type checkoutRequest struct {
	CourseID int64  `json:"course_id"`
	Email    string `json:"email"`
}

// ServeHTTP handles POST /payments/checkout.
func (h *CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CourseID == 0 {
		writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	result, err := h.checkout.StartCheckout(r.Context(), userID, req.CourseID, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyEnrolled):
			writeError(w, http.StatusConflict, "already enrolled in this course")
		case errors.Is(err, clients.ErrCourseNotFound):
			writeError(w, http.StatusNotFound, "course not found")
		case errors.Is(err, clients.ErrCatalogUnavailable), errors.Is(err, paystack.ErrGatewayUnavailable):
			writeError(w, http.StatusServiceUnavailable, "checkout temporarily unavailable")
		case errors.Is(err, paystack.ErrGatewayRejected):
			writeError(w, http.StatusBadGateway, "payment gateway rejected the request")
		default:
			h.logger.Error("checkout failed", zap.Int64("course_id", req.CourseID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "checkout failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
