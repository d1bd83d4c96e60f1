package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/umbrarelay/umbrarelay/internal/extract"
	"github.com/umbrarelay/umbrarelay/internal/metrics"
	"github.com/umbrarelay/umbrarelay/internal/oauth"
	"github.com/umbrarelay/umbrarelay/internal/store"
	"github.com/umbrarelay/umbrarelay/internal/sync"
	"github.com/umbrarelay/umbrarelay/internal/vault"
)

// RouterConfig holds all dependencies needed to build the HTTP router. It is
// populated in main.go after all components are initialized and passed to
// NewRouter as a single struct to keep the constructor signature manageable
// as the number of dependencies grows.
type RouterConfig struct {
	Store     *store.Store
	Vault     *vault.Vault
	Orch      *sync.Orchestrator
	OAuth     *oauth.Engine
	Extractor *extract.Extractor
	Issuer    *extract.TokenIssuer
	Logger    *zap.Logger
}

// NewRouter builds and returns the fully configured Chi router. Command
// routes are registered under /api/v1; the Prometheus scrape endpoint is
// served at /metrics. There is no authentication wall: the
// command surface is invoked only by the trusted local desktop shell
// process.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(Instrument())
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", metrics.Handler())

	itemHandler := NewItemHandler(cfg.Store, cfg.Extractor, cfg.Issuer, cfg.Logger)
	sourceHandler := NewSourceHandler(cfg.Store, cfg.Orch, cfg.Logger)
	secretHandler := NewSecretHandler(cfg.Store, cfg.Vault, cfg.Logger)
	oauthHandler := NewOAuthHandler(cfg.OAuth, cfg.Logger)
	taxonomyHandler := NewTaxonomyHandler(cfg.Store, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		// Items
		r.Get("/items", itemHandler.List)
		r.Get("/items/{id}", itemHandler.Get)
		r.Get("/items/{id}/content", itemHandler.GetWithContent)
		r.Patch("/items/{id}/state", itemHandler.UpdateState)
		r.Post("/items/{id}/extract", itemHandler.TriggerExtraction)
		r.Delete("/items/source/{source_id}", itemHandler.ClearForSource)
		r.Post("/items/cleanup", itemHandler.CleanupOld)

		// Sources
		r.Get("/sources", sourceHandler.List)
		r.Post("/sources", sourceHandler.Add)
		r.Patch("/sources/{id}", sourceHandler.Update)
		r.Delete("/sources/{id}", sourceHandler.Remove)
		r.Post("/sources/{id}/sync", sourceHandler.Sync)
		r.Post("/sources/sync-all", sourceHandler.SyncAll)

		// Secrets
		r.Get("/secrets", secretHandler.List)
		r.Get("/secrets/{id}", secretHandler.Get)
		r.Post("/secrets", secretHandler.Create)
		r.Patch("/secrets/{id}", secretHandler.Update)
		r.Delete("/secrets/{id}", secretHandler.Delete)
		r.Get("/secrets/{id}/value", secretHandler.GetValue)
		r.Get("/secrets/{id}/expiration", secretHandler.DetectExpiration)

		// OAuth
		r.Post("/oauth/device/start", oauthHandler.StartDeviceFlow)
		r.Post("/oauth/device/poll", oauthHandler.PollDeviceFlow)
		r.Get("/oauth/repositories", oauthHandler.ListRepositories)

		// Taxonomy: groups
		r.Get("/groups", taxonomyHandler.ListGroups)
		r.Post("/groups", taxonomyHandler.CreateGroup)
		r.Delete("/groups/{id}", taxonomyHandler.DeleteGroup)
		r.Put("/groups/{id}/sources/{source_id}", taxonomyHandler.AddSourceToGroup)
		r.Delete("/groups/{id}/sources/{source_id}", taxonomyHandler.RemoveSourceFromGroup)

		// Taxonomy: custom views
		r.Get("/custom-views", taxonomyHandler.ListCustomViews)
		r.Post("/custom-views", taxonomyHandler.CreateCustomView)
		r.Patch("/custom-views/{id}", taxonomyHandler.UpdateCustomView)
		r.Delete("/custom-views/{id}", taxonomyHandler.DeleteCustomView)

		// Taxonomy: preferences
		r.Get("/preferences/{key}", taxonomyHandler.GetPreference)
		r.Put("/preferences/{key}", taxonomyHandler.SetPreference)
	})

	return r
}