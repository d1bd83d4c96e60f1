package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/umbrarelay/umbrarelay/internal/api"
	"github.com/umbrarelay/umbrarelay/internal/extract"
	"github.com/umbrarelay/umbrarelay/internal/oauth"
	"github.com/umbrarelay/umbrarelay/internal/scheduler"
	"github.com/umbrarelay/umbrarelay/internal/store"
	"github.com/umbrarelay/umbrarelay/internal/sync"
	"github.com/umbrarelay/umbrarelay/internal/vault"
	"github.com/umbrarelay/umbrarelay/internal/workerpool"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr        string
	dbDriver        string
	dbDSN           string
	dataDir         string
	vaultDigestKey  string
	handoffKey      string
	githubClientID  string
	logLevel        string
	workerPoolSize  int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "umbrarelay-server",
		Short: "UmbraRelay server — personal feed-aggregation engine",
		Long: `UmbraRelay server ingests RSS/Atom feeds and GitHub activity, normalizes
them into a unified item stream, and exposes a command surface the desktop
shell drives directly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("UMBRARELAY_HTTP_ADDR", ":8787"), "HTTP command surface listen address")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("UMBRARELAY_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("UMBRARELAY_DB_DSN", "./umbrarelay.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.dataDir, "data-dir", envOrDefault("UMBRARELAY_DATA_DIR", "./data"), "Directory holding the secret vault file")
	root.PersistentFlags().StringVar(&cfg.vaultDigestKey, "vault-digest-key", envOrDefault("UMBRARELAY_VAULT_DIGEST_KEY", ""), "Key used to seed the vault's integrity digest (optional)")
	root.PersistentFlags().StringVar(&cfg.handoffKey, "handoff-key", envOrDefault("UMBRARELAY_HANDOFF_KEY", ""), "HMAC key for extraction worker handoff tokens (required)")
	root.PersistentFlags().StringVar(&cfg.githubClientID, "github-client-id", envOrDefault("UMBRARELAY_GITHUB_CLIENT_ID", ""), "OAuth client id for the GitHub device flow (required for github sources)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("UMBRARELAY_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().IntVar(&cfg.workerPoolSize, "worker-pool-size", 4, "Maximum concurrent blocking ingest/extract operations")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("umbrarelay-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.handoffKey == "" {
		return fmt.Errorf("handoff key is required — set --handoff-key or UMBRARELAY_HANDOFF_KEY")
	}

	logger.Info("starting umbrarelay server",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Database ---
	gormDB, err := store.Open(store.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	st := store.New(gormDB)

	// --- 2. Secret vault ---
	var digestKey []byte
	if cfg.vaultDigestKey != "" {
		digestKey = []byte(cfg.vaultDigestKey)
	}
	v, err := vault.Open(cfg.dataDir, digestKey, func(format string, args ...any) {
		logger.Sugar().Warnf(format, args...)
	})
	if err != nil {
		return fmt.Errorf("failed to open secret vault: %w", err)
	}

	// --- 3. Extraction pipeline ---
	issuer := extract.NewTokenIssuer([]byte(cfg.handoffKey))
	extractor := extract.NewExtractor(st, issuer)

	// --- 4. OAuth / device-flow engine ---
	githubOAuth := oauth.NewGitHubOAuth(cfg.githubClientID)
	oauthEngine := oauth.NewEngine(githubOAuth, st, v)

	// --- 5. Sync orchestrator ---
	pool := workerpool.New(cfg.workerPoolSize)
	orch := sync.NewOrchestrator(st, v, oauthEngine, pool, extractor, issuer, logger)

	// --- 6. Scheduler ---
	sched, err := scheduler.New(st, v, oauthEngine, orch, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", zap.Error(err))
		}
	}()

	// --- 7. HTTP command surface ---
	router := api.NewRouter(api.RouterConfig{
		Store:     st,
		Vault:     v,
		Orch:      orch,
		OAuth:     oauthEngine,
		Extractor: extractor,
		Issuer:    issuer,
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down umbrarelay server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("umbrarelay server stopped")
	return nil
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
