package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umbrarelay/umbrarelay/internal/durationx"
	"github.com/umbrarelay/umbrarelay/internal/extract"
	"github.com/umbrarelay/umbrarelay/internal/store"
)

// ItemHandler implements the Items command group.
type ItemHandler struct {
	store     *store.Store
	extractor *extract.Extractor
	issuer    *extract.TokenIssuer
	logger    *zap.Logger
}

func NewItemHandler(st *store.Store, extractor *extract.Extractor, issuer *extract.TokenIssuer, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{store: st, extractor: extractor, issuer: issuer, logger: logger.Named("api.items")}
}

// List implements the `list` command with filters: state, group, source_ids,
// group_names.
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.ItemFilter{State: store.ItemState(q.Get("state"))}
	if raw := q.Get("source_ids"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(s))
			if err != nil {
				ErrBadRequest(w, "invalid source_ids")
				return
			}
			filter.SourceIDs = append(filter.SourceIDs, id)
		}
	}
	if raw := q.Get("group_names"); raw != "" {
		filter.GroupNames = strings.Split(raw, ",")
	}

	items, err := h.store.Items.GetItems(r.Context(), filter)
	if err != nil {
		h.logger.Error("list items failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, items)
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.lookup(w, r)
	if !ok {
		return
	}
	Ok(w, item)
}

// GetWithContent returns the item together with its extracted content, if
// any.
func (h *ItemHandler) GetWithContent(w http.ResponseWriter, r *http.Request) {
	item, ok := h.lookup(w, r)
	if !ok {
		return
	}
	Ok(w, map[string]any{
		"item":                   item,
		"extracted_content_html": item.ExtractedContentHTML,
		"content_status":         item.ContentStatus,
		"content_completeness":   item.ContentCompleteness,
	})
}

type updateStateRequest struct {
	State store.ItemState `json:"state"`
}

func (h *ItemHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid item id")
		return
	}
	var req updateStateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.State == "" {
		ErrBadRequest(w, "state is required")
		return
	}
	if err := h.store.Items.UpdateState(r.Context(), id, req.State); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("update item state failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

func (h *ItemHandler) ClearForSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := uuid.Parse(chi.URLParam(r, "source_id"))
	if err != nil {
		ErrBadRequest(w, "invalid source_id")
		return
	}
	if err := h.store.Items.DeleteForSource(r.Context(), sourceID); err != nil {
		h.logger.Error("clear items for source failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	NoContent(w)
}

type cleanupOldRequest struct {
	OlderThan string `json:"older_than"`
}

// CleanupOld removes items older than the given duration (default 90d). It
// reuses durationx's wide TTL grammar rather than inventing a second one.
func (h *ItemHandler) CleanupOld(w http.ResponseWriter, r *http.Request) {
	var req cleanupOldRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OlderThan == "" {
		req.OlderThan = "90d"
	}
	d, err := durationx.ParseTTL(req.OlderThan)
	if err != nil {
		ErrBadRequest(w, "invalid older_than: "+err.Error())
		return
	}
	count, err := h.store.Items.CleanupOld(r.Context(), time.Now().UTC().Add(-d))
	if err != nil {
		h.logger.Error("cleanup old items failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, map[string]int64{"deleted": count})
}

// TriggerExtraction runs the extraction pipeline for a single item on
// demand, bypassing the sync-triggered background pass.
func (h *ItemHandler) TriggerExtraction(w http.ResponseWriter, r *http.Request) {
	item, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !extract.Candidate(item) {
		ErrUnprocessable(w, "item is not a candidate for extraction")
		return
	}
	token, err := h.issuer.Issue(item.ID.String(), item.SourceID.String())
	if err != nil {
		h.logger.Error("issue handoff token failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	if err := h.extractor.Run(r.Context(), token); err != nil {
		h.logger.Warn("triggered extraction failed", zap.String("item_id", item.ID.String()), zap.Error(err))
		ErrUnprocessable(w, err.Error())
		return
	}
	refreshed, err := h.store.Items.GetByID(r.Context(), item.ID)
	if err != nil {
		ErrInternal(w)
		return
	}
	Ok(w, refreshed)
}

func (h *ItemHandler) lookup(w http.ResponseWriter, r *http.Request) (*store.Item, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid item id")
		return nil, false
	}
	item, err := h.store.Items.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return nil, false
		}
		h.logger.Error("get item failed", zap.Error(err))
		ErrInternal(w)
		return nil, false
	}
	return item, true
}
