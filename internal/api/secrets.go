package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umbrarelay/umbrarelay/internal/durationx"
	"github.com/umbrarelay/umbrarelay/internal/store"
	"github.com/umbrarelay/umbrarelay/internal/vault"
)

// SecretHandler implements the Secrets command group.
type SecretHandler struct {
	store  *store.Store
	vault  *vault.Vault
	logger *zap.Logger
}

func NewSecretHandler(st *store.Store, v *vault.Vault, logger *zap.Logger) *SecretHandler {
	return &SecretHandler{store: st, vault: v, logger: logger.Named("api.secrets")}
}

func (h *SecretHandler) List(w http.ResponseWriter, r *http.Request) {
	secrets, err := h.store.Secrets.List(r.Context(), store.ListOptions{})
	if err != nil {
		h.logger.Error("list secrets failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, secrets)
}

func (h *SecretHandler) Get(w http.ResponseWriter, r *http.Request) {
	secret, ok := h.lookup(w, r)
	if !ok {
		return
	}
	Ok(w, secret)
}

type secretRequest struct {
	Name     string              `json:"name"`
	TTLKind  store.SecretTTLKind `json:"ttl_kind"`
	TTLValue string              `json:"ttl_value"`
	Value    string              `json:"value"`
}

// Create persists a Secret descriptor and its token material. For a
// relative TTL, TTLValue is validated against the s/m/h/d/w/M/y grammar so a
// malformed TTL is rejected, and ExpiresAt is set that far from now. An
// absolute TTLValue is stored as given: it is not validated and does not
// set ExpiresAt.
func (h *SecretHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		ErrBadRequest(w, "name is required")
		return
	}
	if req.TTLKind == "" {
		req.TTLKind = store.SecretTTLForever
	}

	secret := &store.Secret{
		Name:     req.Name,
		TTLKind:  req.TTLKind,
		TTLValue: req.TTLValue,
	}
	if req.TTLKind == store.SecretTTLRelative {
		d, err := durationx.ParseTTL(req.TTLValue)
		if err != nil {
			ErrBadRequest(w, "invalid ttl_value: "+err.Error())
			return
		}
		expires := time.Now().UTC().Add(d)
		secret.ExpiresAt = &expires
	}

	if err := h.store.Secrets.Create(r.Context(), secret); err != nil {
		if errors.Is(err, store.ErrConflict) {
			ErrConflict(w, "a secret with this name already exists")
			return
		}
		h.logger.Error("create secret failed", zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.Value != "" {
		if err := h.vault.Set(secret.ID, req.Value); err != nil {
			h.logger.Error("store secret value failed", zap.Error(err))
			ErrInternal(w)
			return
		}
	}
	Created(w, secret)
}

func (h *SecretHandler) Update(w http.ResponseWriter, r *http.Request) {
	secret, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req secretRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name != "" {
		secret.Name = req.Name
	}
	if req.TTLKind != "" {
		secret.TTLKind = req.TTLKind
	}
	if req.TTLValue != "" {
		secret.TTLValue = req.TTLValue
	}
	if secret.TTLKind == store.SecretTTLRelative && secret.TTLValue != "" {
		d, err := durationx.ParseTTL(secret.TTLValue)
		if err != nil {
			ErrBadRequest(w, "invalid ttl_value: "+err.Error())
			return
		}
		expires := time.Now().UTC().Add(d)
		secret.ExpiresAt = &expires
	}

	if err := h.store.Secrets.Update(r.Context(), secret); err != nil {
		h.logger.Error("update secret failed", zap.Error(err))
		ErrInternal(w)
		return
	}

	if req.Value != "" {
		if err := h.vault.Set(secret.ID, req.Value); err != nil {
			h.logger.Error("store secret value failed", zap.Error(err))
			ErrInternal(w)
			return
		}
	}
	Ok(w, secret)
}

func (h *SecretHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid secret id")
		return
	}
	if err := h.store.Secrets.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("delete secret failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	if err := h.vault.Delete(id); err != nil {
		h.logger.Warn("delete secret vault entry failed", zap.String("secret_id", id.String()), zap.Error(err))
	}
	NoContent(w)
}

// GetValue returns the stored access token. Separated from Get so the
// plaintext value is never included in a list/get response by accident.
func (h *SecretHandler) GetValue(w http.ResponseWriter, r *http.Request) {
	secret, ok := h.lookup(w, r)
	if !ok {
		return
	}
	value, err := h.vault.Get(secret.ID)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			ErrNotFound(w)
			return
		}
		h.logger.Error("get secret value failed", zap.Error(err))
		ErrInternal(w)
		return
	}
	Ok(w, map[string]string{"value": value})
}

// DetectExpiration reports whether a Secret has expired without mutating
// any state — used by the shell to decide whether to surface a warning
// before the next hourly cleanup sweep runs.
func (h *SecretHandler) DetectExpiration(w http.ResponseWriter, r *http.Request) {
	secret, ok := h.lookup(w, r)
	if !ok {
		return
	}
	expired := secret.ExpiresAt != nil && secret.ExpiresAt.Before(time.Now().UTC())
	Ok(w, map[string]any{
		"expired":    expired,
		"expires_at": secret.ExpiresAt,
	})
}

func (h *SecretHandler) lookup(w http.ResponseWriter, r *http.Request) (*store.Secret, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ErrBadRequest(w, "invalid secret id")
		return nil, false
	}
	secret, err := h.store.Secrets.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ErrNotFound(w)
			return nil, false
		}
		h.logger.Error("get secret failed", zap.Error(err))
		ErrInternal(w)
		return nil, false
	}
	return secret, true
}
