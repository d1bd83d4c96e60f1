// Package scheduler drives UmbraRelay's three background cadences: the
// per-source poll loop, a startup warmup pass, and an hourly cleanup sweep.
// One recurring gocron job covers every enabled Source, since they all
// share the same top-level tick.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/umbrarelay/umbrarelay/internal/durationx"
	"github.com/umbrarelay/umbrarelay/internal/metrics"
	"github.com/umbrarelay/umbrarelay/internal/oauth"
	"github.com/umbrarelay/umbrarelay/internal/store"
	"github.com/umbrarelay/umbrarelay/internal/sync"
	"github.com/umbrarelay/umbrarelay/internal/vault"
)

const (
	tagTick      = "tick"
	tagWarmup    = "warmup"
	tagCleanup   = "cleanup"
	firstTick    = 10 * time.Second
	steadyTick   = 60 * time.Second
	warmupDelay  = 2 * time.Second
	cleanupEvery = time.Hour
)

// feedPollIntervalConfig mirrors the poll_interval field of a source's JSON
// config without importing internal/sync's unexported config shapes.
type feedPollIntervalConfig struct {
	PollInterval string `json:"poll_interval"`
}

// Scheduler wraps gocron and coordinates the tick, warmup, and cleanup jobs.
type Scheduler struct {
	cron   gocron.Scheduler
	store  *store.Store
	vault  *vault.Vault
	oauth  *oauth.Engine
	orch   *sync.Orchestrator
	logger *zap.Logger
}

// New creates and configures a new Scheduler. Call Start to begin processing.
func New(st *store.Store, v *vault.Vault, oauthEngine *oauth.Engine, orch *sync.Orchestrator, logger *zap.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create gocron scheduler: %w", err)
	}
	return &Scheduler{
		cron:   s,
		store:  st,
		vault:  v,
		oauth:  oauthEngine,
		orch:   orch,
		logger: logger.Named("scheduler"),
	}, nil
}

// Start registers the first tick, the startup warmup, and the hourly
// cleanup, then starts the underlying gocron scheduler. It should be called
// once at process startup, after the database connection is established.
func (s *Scheduler) Start() error {
	if _, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(firstTick))),
		gocron.NewTask(s.runFirstTick),
		gocron.WithTags(tagTick),
	); err != nil {
		return fmt.Errorf("scheduler: schedule first tick: %w", err)
	}

	if _, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(warmupDelay))),
		gocron.NewTask(s.runWarmup),
		gocron.WithTags(tagWarmup),
	); err != nil {
		return fmt.Errorf("scheduler: schedule warmup: %w", err)
	}

	if _, err := s.cron.NewJob(
		gocron.DurationJob(cleanupEvery),
		gocron.NewTask(s.runCleanup),
		gocron.WithTags(tagCleanup),
	); err != nil {
		return fmt.Errorf("scheduler: schedule cleanup: %w", err)
	}

	s.logger.Info("scheduler started")
	s.cron.Start()
	return nil
}

// Stop gracefully shuts down the underlying gocron scheduler, waiting for
// any currently running job functions to complete before returning.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// runFirstTick runs one tick pass at 10s after startup, then registers the
// steady 60s recurring tick — gocron jobs carry a single fixed interval, so
// the reschedule-to-60s behavior is implemented as a second job rather than
// a self-mutating one.
func (s *Scheduler) runFirstTick() {
	s.tick()

	if _, err := s.cron.NewJob(
		gocron.DurationJob(steadyTick),
		gocron.NewTask(s.tick),
		gocron.WithTags(tagTick),
	); err != nil {
		s.logger.Error("failed to register steady tick job", zap.Error(err))
	}
}

// tick loads every enabled Source and dispatches a sync for each one whose
// interval has elapsed, sequentially.
func (s *Scheduler) tick() {
	ctx := context.Background()
	sources, err := s.store.Sources.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("tick: failed to list enabled sources", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for i := range sources {
		src := &sources[i]
		interval, err := sourceInterval(src)
		if err != nil {
			s.logger.Warn("tick: invalid poll interval, using default", zap.String("source", src.Name), zap.Error(err))
			interval = 10 * time.Minute
		}
		if src.LastSyncedAt != nil && now.Sub(*src.LastSyncedAt) < interval {
			continue
		}
		if err := s.orch.Sync(ctx, src); err != nil {
			s.logger.Warn("tick: sync failed", zap.String("source", src.Name), zap.Error(err))
		}
	}
}

func sourceInterval(src *store.Source) (time.Duration, error) {
	switch src.Kind {
	case store.SourceKindGitHub:
		return 5 * time.Minute, nil
	case store.SourceKindRSS, store.SourceKindAtom:
		var cfg feedPollIntervalConfig
		if src.Config != "" {
			if err := json.Unmarshal([]byte(src.Config), &cfg); err != nil {
				return 0, err
			}
		}
		return durationx.Parse(cfg.PollInterval)
	default:
		return 10 * time.Minute, nil
	}
}

// runWarmup eagerly refreshes every GitHub-kind Secret carrying a refresh
// token, then syncs every enabled Source once.
func (s *Scheduler) runWarmup() {
	ctx := context.Background()

	secrets, err := s.store.Secrets.List(ctx, store.ListOptions{})
	if err != nil {
		s.logger.Error("warmup: failed to list secrets", zap.Error(err))
	} else {
		for _, secret := range secrets {
			if _, err := s.vault.GetRefresh(secret.ID); err != nil {
				continue
			}
			if _, err := s.oauth.RefreshAndRetry(ctx, secret.ID.String()); err != nil {
				s.logger.Warn("warmup: refresh failed", zap.String("secret", secret.Name), zap.Error(err))
			}
		}
	}

	sources, err := s.store.Sources.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("warmup: failed to list enabled sources", zap.Error(err))
		return
	}
	for i := range sources {
		if err := s.orch.Sync(ctx, &sources[i]); err != nil {
			s.logger.Warn("warmup: sync failed", zap.String("source", sources[i].Name), zap.Error(err))
		}
	}
	s.logger.Info("warmup complete", zap.Int("sources_synced", len(sources)))
}

// runCleanup deletes expired Secrets, disables their Sources, and removes
// the matching vault entries, hourly.
func (s *Scheduler) runCleanup() {
	ctx := context.Background()
	expired, err := s.store.Secrets.GetExpiredSecrets(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("cleanup: failed to list expired secrets", zap.Error(err))
		return
	}
	for _, secret := range expired {
		if err := s.store.Sources.DisableBySecretID(ctx, secret.ID); err != nil {
			s.logger.Warn("cleanup: failed to disable sources for expired secret", zap.String("secret", secret.Name), zap.Error(err))
		}
		if err := s.vault.Delete(secret.ID); err != nil {
			s.logger.Warn("cleanup: failed to remove vault entry", zap.String("secret", secret.Name), zap.Error(err))
		}
		if err := s.store.Secrets.Delete(ctx, secret.ID); err != nil {
			s.logger.Warn("cleanup: failed to delete expired secret", zap.String("secret", secret.Name), zap.Error(err))
		}
	}
	if len(expired) > 0 {
		metrics.SecretsExpiredTotal.Add(float64(len(expired)))
		s.logger.Info("cleanup complete", zap.Int("secrets_expired", len(expired)))
	}
}