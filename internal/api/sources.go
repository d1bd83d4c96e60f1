package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umbrarelay/umbrarelay/internal/store"
	"github.com/umbrarelay/umbrarelay/internal/sync"
)

// SourceHandler implements the Sources command group (list, add, update,
// remove, sync, sync_all).
type SourceHandler struct {
	sources *store.Store
	orch    *sync.Orchestrator
	logger  *zap.Logger
}

func NewSourceHandler(st *store.Store, orch *sync.Orchestrator, logger *zap.Logger) *SourceHandler {
	return &SourceHandler{sources: st, orch: orch, logger: logger.Named("api.sources")}
}

type sourceRequest struct {
	Kind     store.SourceKind `json:"kind"`
	Name     string           `json:"name"`
	Config   json.RawMessage  `json:"config"`
	Enabled  *bool            `json:"enabled,omitempty"`
	SecretID *uuid.UUID       `json:"secret_id,omitempty"`
}

func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sources.Sources.List(r.Context(), store.ListOptions{})
	if err != nil {
		h.logger.Error("list sources failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, sources)
}

func (h *SourceHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Kind == "" {
		ErrBadRequest(w, "name and kind are required")
		return
	}

	source := &store.Source{
		Kind:     req.Kind,
		Name:     req.Name,
		Config:   string(req.Config),
		Enabled:  true,
		SecretID: req.SecretID,
	}
	if req.Enabled != nil {
		source.Enabled = *req.Enabled
	}
	if source.Config == "" {
		source.Config = "{}"
	}

	if err := h.sources.Sources.Create(r.Context(), source); err != nil {
		h.logger.Error("create source failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Created(w, source)
}

func (h *SourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid source id")
		return
	}

	existing, err := h.sources.Sources.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("get source failed", zap.Error(err))
		ErrInternal(w)
		return
	}

	var req sourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if len(req.Config) > 0 {
		existing.Config = string(req.Config)
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	if req.SecretID != nil {
		existing.SecretID = req.SecretID
	}

	if err := h.sources.Sources.Update(r.Context(), existing); err != nil {
		h.logger.Error("update source failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, existing)
}

func (h *SourceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid source id")
		return
	}
	if err := h.sources.DeleteSourceCascade(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("delete source failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

func (h *SourceHandler) Sync(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid source id")
		return
	}
	source, err := h.sources.Sources.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("get source failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	if err := h.orch.Sync(r.Context(), source); err != nil {
		h.logger.Warn("sync failed", zap.String("source", source.Name), zap.Error(err))
		ErrUnprocessable(w, err.Error())
		return
	}
	Ok(w, source)
}

// SyncAll runs every enabled source sequentially, matching the Scheduler's
// tick ordering guarantee.
func (h *SourceHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sources.Sources.ListEnabled(r.Context())
	if err != nil {
		h.logger.Error("list enabled sources failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	synced := 0
	for i := range sources {
		if err := h.orch.Sync(r.Context(), &sources[i]); err != nil {
			h.logger.Warn("sync_all: source failed", zap.String("source", sources[i].Name), zap.Error(err))
			continue
		}
		synced++
	}
	Ok(w, map[string]int{"synced": synced, "total": len(sources)})
}
