package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ScheduleHandler handles scheduled-item CRUD, media upload URLs and platform
// token storage.
type ScheduleHandler struct {
	scheduleSvc *service.ScheduleService
	mediaSvc    service.MediaService
	secretSvc   service.SecretManagerService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewScheduleHandler(
	scheduleSvc *service.ScheduleService,
	mediaSvc service.MediaService,
	secretSvc service.SecretManagerService,
	v *validator.Validate,
	logger zerolog.Logger,
) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleSvc: scheduleSvc,
		mediaSvc:    mediaSvc,
		secretSvc:   secretSvc,
		validate:    v,
		logger:      logger,
	}
}

// RegisterRoutes mounts v1 schedule routes
func (h *ScheduleHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/schedule", authMw(http.HandlerFunc(h.handleCollection)))
	mux.Handle("/schedule/", authMw(http.HandlerFunc(h.handleItem)))
	mux.Handle("/media/upload-url", authMw(http.HandlerFunc(h.mediaUploadURL)))
	mux.Handle("/platform-tokens", authMw(http.HandlerFunc(h.storePlatformToken)))
}

func (h *ScheduleHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleItem routes /schedule/{id} and /schedule/{id}/cancel.
func (h *ScheduleHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/schedule/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
		h.get(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.cancel(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *ScheduleHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req dto.ScheduleCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	kind := model.ItemKind(req.Kind)
	if kind == model.KindPost && len(req.Platforms) == 0 {
		http.Error(w, "a post needs at least one platform", http.StatusBadRequest)
		return
	}
	if kind == model.KindEmail && len(req.Recipients) == 0 {
		http.Error(w, "an email needs at least one recipient", http.StatusBadRequest)
		return
	}

	// Attachments must exist in storage before the item is accepted.
	if len(req.MediaKeys) > 0 {
		if err := h.mediaSvc.ValidateKeys(r.Context(), userID, req.MediaKeys); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	item, err := h.scheduleSvc.Create(r.Context(), service.CreateItemInput{
		UserID:      userID,
		ProjectID:   req.ProjectID,
		Kind:        kind,
		ScheduledAt: req.ScheduledAt,
		Platforms:   req.Platforms,
		Recipients:  req.Recipients,
		MediaKeys:   req.MediaKeys,
		Subject:     req.Subject,
		Body:        req.Body,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrScheduleTooSoon), errors.Is(err, service.ErrScheduleTooFar):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create scheduled item")
			http.Error(w, "failed to schedule item", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toScheduledItemResponse(item))
}

func (h *ScheduleHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	items, err := h.scheduleSvc.List(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list scheduled items")
		http.Error(w, "failed to list scheduled items", http.StatusInternalServerError)
		return
	}

	resp := make([]dto.ScheduledItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toScheduledItemResponse(&items[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *ScheduleHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	item, err := h.scheduleSvc.Get(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("item_id", id).Msg("failed to fetch scheduled item")
		http.Error(w, "failed to fetch scheduled item", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toScheduledItemResponse(item))
}

func (h *ScheduleHandler) cancel(w http.ResponseWriter, r *http.Request, id string) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	err := h.scheduleSvc.Cancel(r.Context(), id, userID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrNotCancellable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error().Err(err).Str("item_id", id).Msg("failed to cancel scheduled item")
		http.Error(w, "failed to cancel scheduled item", http.StatusInternalServerError)
	}
}

func (h *ScheduleHandler) mediaUploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.MediaUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	key, uploadURL, err := h.mediaSvc.InitiateUpload(r.Context(), userID, req.Filename)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create upload URL")
		http.Error(w, "failed to create upload URL", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.MediaUploadResponse{Key: key, UploadURL: uploadURL})
}

func (h *ScheduleHandler) storePlatformToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.PlatformTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.secretSvc.StorePlatformToken(r.Context(), userID, req.Platform, req.Token); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Str("platform", req.Platform).Msg("failed to store platform token")
		http.Error(w, "failed to store platform token", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toScheduledItemResponse(item *model.ScheduledItem) dto.ScheduledItemResponse {
	return dto.ScheduledItemResponse{
		ID:          item.ID,
		ProjectID:   item.ProjectID,
		Kind:        string(item.Kind),
		ScheduledAt: item.ScheduledAt,
		Status:      string(item.Status),
		Platforms:   item.Platforms,
		Recipients:  item.Recipients,
		MediaKeys:   item.MediaKeys,
		Subject:     item.Subject,
		Body:        item.Body,
		Error:       item.Error,
		CreatedAt:   item.CreatedAt,
		SentAt:      item.SentAt,
	}
}
