package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// EntitlementHandler exposes the credit balance and the check-and-reserve
// endpoint feature gates call before running a paid operation.
type EntitlementHandler struct {
	entSvc   service.EntitlementService
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewEntitlementHandler(entSvc service.EntitlementService, v *validator.Validate, logger zerolog.Logger) *EntitlementHandler {
	return &EntitlementHandler{entSvc: entSvc, validate: v, logger: logger}
}

// RegisterRoutes mounts v1 credit routes
func (h *EntitlementHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/credits", authMw(http.HandlerFunc(h.getBalance)))
	mux.Handle("/credits/check", authMw(http.HandlerFunc(h.check)))
}

func (h *EntitlementHandler) getBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	balance, err := h.entSvc.Balance(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to read credit balance")
		http.Error(w, "failed to read balance", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.CreditBalanceResponse{Credits: balance})
}

// check runs the entitlement decision. A disallowed decision is still a 200:
// the caller inspects the structured body, not the status code.
func (h *EntitlementHandler) check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req dto.EntitlementCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	op, err := model.ParseOperation(req.Operation)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	decision, err := h.entSvc.CheckAndReserve(r.Context(), userID, op)
	if err != nil {
		if errors.Is(err, model.ErrUnknownOperation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Str("operation", req.Operation).Msg("entitlement check failed")
		http.Error(w, "entitlement check failed", http.StatusInternalServerError)
		return
	}

	resp := dto.EntitlementDecisionDTO{
		Allowed:   decision.Allowed,
		Operation: string(decision.Op),
		Cost:      decision.Cost,
		Balance:   decision.Balance,
		Bypassed:  decision.Bypassed,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
