package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// DispatchHandler receives the dispatcher's signed execution callback. The
// signature middleware has already verified the request before it lands here.
type DispatchHandler struct {
	deliverySvc *service.DeliveryService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewDispatchHandler(deliverySvc *service.DeliveryService, v *validator.Validate, logger zerolog.Logger) *DispatchHandler {
	return &DispatchHandler{deliverySvc: deliverySvc, validate: v, logger: logger}
}

// RegisterRoutes mounts the execute callback behind the dispatch signature
// middleware.
func (h *DispatchHandler) RegisterRoutes(mux *http.ServeMux, dispatchAuthMw func(http.Handler) http.Handler) {
	mux.Handle("/dispatch/execute", dispatchAuthMw(http.HandlerFunc(h.Execute)))
}

// Execute delivers the named scheduled item. A non-2xx response makes the
// dispatcher retry, so only genuine processing failures return 500.
func (h *DispatchHandler) Execute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.DispatchExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.deliverySvc.Execute(r.Context(), req.ItemID); err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("item_id", req.ItemID).Msg("failed to execute scheduled item")
		http.Error(w, "failed to execute scheduled item", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
