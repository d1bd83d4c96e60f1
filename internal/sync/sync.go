// Package sync bridges the blocking ingester world and the Store: for one
// Source it resolves a credential, runs the matching Ingester on a worker
// pool, normalizes the results, and schedules an extraction pass.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umbrarelay/umbrarelay/internal/classify"
	"github.com/umbrarelay/umbrarelay/internal/extract"
	"github.com/umbrarelay/umbrarelay/internal/ingest"
	"github.com/umbrarelay/umbrarelay/internal/metrics"
	"github.com/umbrarelay/umbrarelay/internal/normalize"
	"github.com/umbrarelay/umbrarelay/internal/oauth"
	"github.com/umbrarelay/umbrarelay/internal/store"
	"github.com/umbrarelay/umbrarelay/internal/vault"
	"github.com/umbrarelay/umbrarelay/internal/workerpool"
)

// feedConfig is the config shape for rss/atom sources.
type feedConfig struct {
	URL          string `json:"url"`
	PollInterval string `json:"poll_interval"`
}

// githubConfig is the config shape for github sources.
type githubConfig struct {
	Repositories []string `json:"repositories"`
	Endpoints    []string `json:"endpoints"`
}

// Orchestrator runs one sync at a time per call; the Scheduler is
// responsible for not calling Sync twice concurrently for the same Source.
type Orchestrator struct {
	store     *store.Store
	vault     *vault.Vault
	oauth     *oauth.Engine
	pool      *workerpool.Pool
	extractor *extract.Extractor
	issuer    *extract.TokenIssuer
	logger    *zap.Logger
}

func NewOrchestrator(
	st *store.Store,
	v *vault.Vault,
	oauthEngine *oauth.Engine,
	pool *workerpool.Pool,
	extractor *extract.Extractor,
	issuer *extract.TokenIssuer,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     st,
		vault:     v,
		oauth:     oauthEngine,
		pool:      pool,
		extractor: extractor,
		issuer:    issuer,
		logger:    logger.Named("sync"),
	}
}

// Sync runs the full pipeline for one Source. A failure is never fatal to
// the caller — it is always returned so the Scheduler can log it and move
// on to the next Source.
func (o *Orchestrator) Sync(ctx context.Context, source *store.Source) error {
	timer := metrics.NewTimer()
	kind := string(source.Kind)

	err := o.sync(ctx, source)

	timer.ObserveDurationVec(metrics.SyncDuration, kind)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.SyncsTotal.WithLabelValues(kind, outcome).Inc()
	return err
}

func (o *Orchestrator) sync(ctx context.Context, source *store.Source) error {
	ingester, err := o.buildIngester(source)
	if err != nil {
		return fmt.Errorf("sync: %s: build ingester: %w", source.Name, err)
	}

	items, err := o.pollWithRefresh(ctx, source, ingester)
	if err != nil {
		return fmt.Errorf("sync: %s: poll: %w", source.Name, err)
	}

	itemIDs, err := normalize.Normalize(ctx, o.store, source.ID, items)
	if err != nil {
		return fmt.Errorf("sync: %s: normalize: %w", source.Name, err)
	}
	metrics.ItemsIngestedTotal.WithLabelValues(string(source.Kind)).Add(float64(len(itemIDs)))

	for i, id := range itemIDs {
		verdict := classify.Classify(items[i])
		if err := o.store.Items.UpdateCompleteness(ctx, id, verdict.Completeness); err != nil {
			return fmt.Errorf("sync: %s: record completeness: %w", source.Name, err)
		}
	}

	if err := o.store.Sources.UpdateLastSyncedAt(ctx, source.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("sync: %s: update last synced at: %w", source.Name, err)
	}

	go o.runExtractionPass(itemIDs)

	o.logger.Info("source synced",
		zap.String("source", source.Name),
		zap.Int("items", len(items)),
	)
	return nil
}

// pollWithRefresh runs the ingester once, and on ErrGitHubUnauthorized
// attempts exactly one refresh-and-retry.
func (o *Orchestrator) pollWithRefresh(ctx context.Context, source *store.Source, ingester ingest.Ingester) ([]ingest.IngestedItem, error) {
	var items []ingest.IngestedItem
	err := o.pool.Submit(ctx, func(ctx context.Context) error {
		polled, err := ingester.Poll(ctx)
		items = polled
		return err
	})
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, ingest.ErrGitHubUnauthorized) || source.SecretID == nil {
		return nil, err
	}

	newToken, refreshErr := o.oauth.RefreshAndRetry(ctx, source.SecretID.String())
	if refreshErr != nil {
		return nil, fmt.Errorf("refresh failed after 401: %w", refreshErr)
	}

	retried, ok := ingester.(interface{ SetToken(string) })
	if !ok {
		return nil, fmt.Errorf("ingester for source %s cannot accept a refreshed token", source.Name)
	}
	retried.SetToken(newToken)

	err = o.pool.Submit(ctx, func(ctx context.Context) error {
		polled, err := ingester.Poll(ctx)
		items = polled
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("retry after refresh: %w", err)
	}
	return items, nil
}

func (o *Orchestrator) buildIngester(source *store.Source) (ingest.Ingester, error) {
	switch source.Kind {
	case store.SourceKindRSS:
		var cfg feedConfig
		if err := json.Unmarshal([]byte(source.Config), &cfg); err != nil {
			return nil, fmt.Errorf("parse rss config: %w", err)
		}
		return ingest.NewRSSIngester(cfg.URL, 0), nil

	case store.SourceKindAtom:
		var cfg feedConfig
		if err := json.Unmarshal([]byte(source.Config), &cfg); err != nil {
			return nil, fmt.Errorf("parse atom config: %w", err)
		}
		return ingest.NewAtomIngester(cfg.URL, 0), nil

	case store.SourceKindGitHub:
		var cfg githubConfig
		if err := json.Unmarshal([]byte(source.Config), &cfg); err != nil {
			return nil, fmt.Errorf("parse github config: %w", err)
		}
		token, err := o.resolveToken(source)
		if err != nil {
			return nil, err
		}
		return ingest.NewGitHubIngester(token, cfg.Repositories, cfg.Endpoints), nil

	case store.SourceKindGitHubNotifications:
		token, err := o.resolveToken(source)
		if err != nil {
			return nil, err
		}
		return ingest.NewGitHubNotificationsIngester(token), nil

	default:
		return nil, fmt.Errorf("unknown source kind %q", source.Kind)
	}
}

func (o *Orchestrator) resolveToken(source *store.Source) (string, error) {
	if source.SecretID == nil {
		return "", fmt.Errorf("source requires a secret but none is attached")
	}
	token, err := o.vault.Get(*source.SecretID)
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}
	return token, nil
}

// runExtractionPass runs the extraction pipeline for each candidate item in
// itemIDs. It is spawned as a background goroutine by Sync and its failures
// are logged, never propagated.
func (o *Orchestrator) runExtractionPass(itemIDs []uuid.UUID) {
	ctx := context.Background()
	enabled, err := extract.Gated(ctx, o.store.Preferences)
	if err != nil {
		o.logger.Warn("extraction gating check failed", zap.Error(err))
		return
	}
	if !enabled {
		return
	}

	for _, id := range itemIDs {
		item, err := o.store.Items.GetByID(ctx, id)
		if err != nil {
			o.logger.Warn("extraction: load item failed", zap.String("item_id", id.String()), zap.Error(err))
			continue
		}
		if !extract.Candidate(item) {
			continue
		}

		token, err := o.issuer.Issue(item.ID.String(), item.SourceID.String())
		if err != nil {
			o.logger.Warn("extraction: issue handoff token failed", zap.Error(err))
			continue
		}

		timer := metrics.NewTimer()
		err = o.pool.Submit(ctx, func(ctx context.Context) error {
			return o.extractor.Run(ctx, token)
		})
		timer.ObserveDuration(metrics.ExtractionDuration)
		if err != nil {
			metrics.ExtractionsTotal.WithLabelValues("failure").Inc()
			o.logger.Warn("extraction run failed", zap.String("item_id", id.String()), zap.Error(err))
			continue
		}
		metrics.ExtractionsTotal.WithLabelValues("success").Inc()
	}
}
