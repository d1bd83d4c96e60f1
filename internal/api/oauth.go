package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umbrarelay/umbrarelay/internal/oauth"
	"github.com/umbrarelay/umbrarelay/internal/store"
)

// OAuthHandler implements the OAuth command group: the device flow and its
// dependent repository listing.
type OAuthHandler struct {
	engine *oauth.Engine
	logger *zap.Logger
}

func NewOAuthHandler(engine *oauth.Engine, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{engine: engine, logger: logger.Named("api.oauth")}
}

func (h *OAuthHandler) StartDeviceFlow(w http.ResponseWriter, r *http.Request) {
	resp, err := h.engine.StartDeviceFlow(r.Context())
	if err != nil {
		h.logger.Error("start device flow failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, resp)
}

type pollDeviceFlowRequest struct {
	DeviceCode string `json:"device_code"`
}

// PollDeviceFlow implements `poll_device_flow(device_code)`. The response
// shape is literal: pending | slow_down+interval | success+secret_id | error.
func (h *OAuthHandler) PollDeviceFlow(w http.ResponseWriter, r *http.Request) {
	var req pollDeviceFlowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DeviceCode == "" {
		ErrBadRequest(w, "device_code is required")
		return
	}

	result, err := h.engine.PollOnce(r.Context(), req.DeviceCode)
	if err != nil {
		h.logger.Warn("poll device flow failed", zap.Error(err))
		ErrUnprocessable(w, err.Error())
		return
	}

	payload := map[string]any{"status": result.Status}
	switch result.Status {
	case oauth.PollSlowDown:
		payload["interval"] = result.NewInterval
	case oauth.PollSuccess:
		payload["secret_id"] = result.SecretID
	case oauth.PollError:
		payload["message"] = result.Message
	}
	Ok(w, payload)
}

// ListRepositories implements `list_repositories(secret_id)`, resolving the
// stored access token for secret_id and delegating to the typed go-github
// repository listing.
func (h *OAuthHandler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("secret_id")
	secretID, err := uuid.Parse(raw)
	if err != nil {
		ErrBadRequest(w, "invalid secret_id")
		return
	}

	repos, err := h.engine.ListRepositoriesFor(r.Context(), secretID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Warn("list repositories failed", zap.Error(err))
		ErrUnprocessable(w, err.Error())
		return
	}
	Ok(w, repos)
}
