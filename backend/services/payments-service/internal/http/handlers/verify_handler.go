package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"coursehub/backend/services/payments-service/internal/http/middleware"
	"coursehub/backend/services/payments-service/internal/repository"
	"coursehub/backend/services/payments-service/internal/service"
)

// VerifyHandler serves the client confirmation path after gateway redirect.
type VerifyHandler struct {
	engine *service.ReconcileService
	logger *zap.Logger
}

// NewVerifyHandler builds handler.
func NewVerifyHandler(engine *service.ReconcileService, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{engine: engine, logger: logger}
}

type verifyRequest struct {
	Reference string `json:"reference"`
}

// ServeHTTP handles POST /payments/verify.
func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Reference == "" {
		writeError(w, http.StatusBadRequest, "reference is required")
		return
	}

	result, err := h.engine.VerifyByReference(r.Context(), userID, req.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			writeError(w, http.StatusNotFound, "unknown reference")
			return
		}
		h.logger.Error("verification failed", zap.String("reference", req.Reference), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
