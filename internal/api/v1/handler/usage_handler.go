package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// UsageHandler exposes the usage window counters and limit checks.
type UsageHandler struct {
	usageSvc service.UsageService
	subSvc   service.SubscriptionService
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewUsageHandler(usageSvc service.UsageService, subSvc service.SubscriptionService, v *validator.Validate, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{usageSvc: usageSvc, subSvc: subSvc, validate: v, logger: logger}
}

// RegisterRoutes mounts v1 usage routes
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/usage", authMw(http.HandlerFunc(h.getUsage)))
	mux.Handle("/usage/check", authMw(http.HandlerFunc(h.checkLimit)))
	mux.Handle("/usage/increment", authMw(http.HandlerFunc(h.increment)))
}

func (h *UsageHandler) getUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	counters, err := h.usageSvc.GetUsage(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to read usage counters")
		http.Error(w, "failed to read usage", http.StatusInternalServerError)
		return
	}
	counts := make(map[string]int, len(counters.Counts))
	for op, n := range counters.Counts {
		counts[string(op)] = n
	}
	resp := dto.UsageResponseDTO{
		Counts:           counts,
		LastResetDate:    counters.LastResetDate,
		LastMonthlyReset: counters.LastMonthlyReset,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *UsageHandler) checkLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, op, ok := h.decodeOperation(w, r)
	if !ok {
		return
	}
	subscribed, err := h.subSvc.IsSubscribed(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to resolve subscription state")
		http.Error(w, "failed to check limit", http.StatusInternalServerError)
		return
	}
	result, err := h.usageSvc.CheckLimit(r.Context(), userID, op, subscribed)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Str("operation", string(op)).Msg("failed to check usage limit")
		http.Error(w, "failed to check limit", http.StatusInternalServerError)
		return
	}
	resp := dto.LimitResultDTO{
		Allowed:   result.Allowed,
		Current:   result.Current,
		Limit:     result.Limit,
		Remaining: result.Remaining,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *UsageHandler) increment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, op, ok := h.decodeOperation(w, r)
	if !ok {
		return
	}
	if err := h.usageSvc.Increment(r.Context(), userID, op); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Str("operation", string(op)).Msg("failed to increment usage")
		http.Error(w, "failed to increment usage", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeOperation pulls the authenticated user and a validated operation out
// of the request, writing the error response itself on failure.
func (h *UsageHandler) decodeOperation(w http.ResponseWriter, r *http.Request) (string, model.Operation, bool) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", "", false
	}
	var req dto.UsageCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return "", "", false
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	op, err := model.ParseOperation(req.Operation)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	return userID, op, true
}
