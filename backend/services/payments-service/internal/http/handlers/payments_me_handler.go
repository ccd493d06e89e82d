package handlers

import (
	"net/http"

	"coursehub/backend/services/payments-service/internal/http/middleware"
	"coursehub/backend/services/payments-service/internal/service"
)

// NewPaymentsMeHandler returns GET /payments/me handler.
func NewPaymentsMeHandler(engine *service.ReconcileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		transactions, err := engine.PaymentsForUser(r.Context(), userID, 50)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch payments")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"payments": transactions,
		})
	}
}
