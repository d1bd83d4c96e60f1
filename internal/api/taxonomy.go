package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umbrarelay/umbrarelay/internal/store"
)

// TaxonomyHandler implements the Taxonomy command group: groups.*,
// custom_views.*, preferences.get/set.
type TaxonomyHandler struct {
	store  *store.Store
	logger *zap.Logger
}

func NewTaxonomyHandler(st *store.Store, logger *zap.Logger) *TaxonomyHandler {
	return &TaxonomyHandler{store: st, logger: logger.Named("api.taxonomy")}
}

// --- Groups ---

func (h *TaxonomyHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.Groups.List(r.Context())
	if err != nil {
		h.logger.Error("list groups failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, groups)
}

type createGroupRequest struct {
	Name string `json:"name"`
}

func (h *TaxonomyHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}
	group := &store.Group{Name: req.Name}
	if err := h.store.Groups.Create(r.Context(), group); err != nil {
		if errors.Is(err, store.ErrConflict) {
			ErrConflict(w, "a group with this name already exists")
			return
		}
		h.logger.Error("create group failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, group)
}

func (h *TaxonomyHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid group id")
		return
	}
	if err := h.store.Groups.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("delete group failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

func (h *TaxonomyHandler) AddSourceToGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid group id")
		return
	}
	sourceID, err := uuid.Parse(chi.URLParam(r, "source_id"))
	if err != nil {
		ErrBadRequest(w, "invalid source id")
		return
	}
	if err := h.store.Groups.AddSource(r.Context(), sourceID, groupID); err != nil {
		h.logger.Error("add source to group failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

func (h *TaxonomyHandler) RemoveSourceFromGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid group id")
		return
	}
	sourceID, err := uuid.Parse(chi.URLParam(r, "source_id"))
	if err != nil {
		ErrBadRequest(w, "invalid source id")
		return
	}
	if err := h.store.Groups.RemoveSource(r.Context(), sourceID, groupID); err != nil {
		h.logger.Error("remove source from group failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

// --- Custom views ---

func (h *TaxonomyHandler) ListCustomViews(w http.ResponseWriter, r *http.Request) {
	views, err := h.store.CustomViews.List(r.Context())
	if err != nil {
		h.logger.Error("list custom views failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, views)
}

type customViewRequest struct {
	Name       string          `json:"name"`
	SourceIDs  json.RawMessage `json:"source_ids"`
	GroupNames json.RawMessage `json:"group_names"`
}

func (h *TaxonomyHandler) CreateCustomView(w http.ResponseWriter, r *http.Request) {
	var req customViewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}
	view := &store.CustomView{Name: req.Name}
	if len(req.SourceIDs) > 0 {
		view.SourceIDs = string(req.SourceIDs)
	} else {
		view.SourceIDs = "[]"
	}
	if len(req.GroupNames) > 0 {
		view.GroupNames = string(req.GroupNames)
	} else {
		view.GroupNames = "[]"
	}
	if err := h.store.CustomViews.Create(r.Context(), view); err != nil {
		if errors.Is(err, store.ErrConflict) {
			ErrConflict(w, "a custom view with this name already exists")
			return
		}
		h.logger.Error("create custom view failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, view)
}

func (h *TaxonomyHandler) UpdateCustomView(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid custom view id")
		return
	}
	view, err := h.store.CustomViews.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("get custom view failed", zap.Error(err))
		ErrInternal(w)
		return
	}

	var req customViewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != "" {
		view.Name = req.Name
	}
	if len(req.SourceIDs) > 0 {
		view.SourceIDs = string(req.SourceIDs)
	}
	if len(req.GroupNames) > 0 {
		view.GroupNames = string(req.GroupNames)
	}
	if err := h.store.CustomViews.Update(r.Context(), view); err != nil {
		h.logger.Error("update custom view failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, view)
}

func (h *TaxonomyHandler) DeleteCustomView(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid custom view id")
		return
	}
	if err := h.store.CustomViews.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("delete custom view failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

// --- Preferences ---

func (h *TaxonomyHandler) GetPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, found, err := h.store.Preferences.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("get preference failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	if !found {
		ErrNotFound(w)
		return
	}
	Ok(w, map[string]string{"key": key, "value": value})
}

type setPreferenceRequest struct {
	Value string `json:"value"`
}

func (h *TaxonomyHandler) SetPreference(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req setPreferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.store.Preferences.Set(r.Context(), key, req.Value); err != nil {
		h.logger.Error("set preference failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}
