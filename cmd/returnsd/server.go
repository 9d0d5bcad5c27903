package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/returns-core/pkg/api"
	"github.com/Mindburn-Labs/returns-core/pkg/audit"
	"github.com/Mindburn-Labs/returns-core/pkg/config"
	"github.com/Mindburn-Labs/returns-core/pkg/eligibility"
	"github.com/Mindburn-Labs/returns-core/pkg/escalation"
	"github.com/Mindburn-Labs/returns-core/pkg/logistics"
	"github.com/Mindburn-Labs/returns-core/pkg/notify"
	"github.com/Mindburn-Labs/returns-core/pkg/observability"
	"github.com/Mindburn-Labs/returns-core/pkg/orchestrator"
	"github.com/Mindburn-Labs/returns-core/pkg/policy"
	"github.com/Mindburn-Labs/returns-core/pkg/ratelimit"
	"github.com/Mindburn-Labs/returns-core/pkg/seed"
	"github.com/Mindburn-Labs/returns-core/pkg/store"
)

//nolint:gocognit
func runServer(stdout, stderr io.Writer) int {
	ctx := context.Background()
	cfg := config.Load()

	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Enabled = cfg.TelemetryEnabled
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		fmt.Fprintf(stderr, "telemetry init failed: %v\n", err)
		return 1
	}

	db, st, auditLog, err := openStorage(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "storage init failed: %v\n", err)
		return 1
	}
	defer db.Close()

	repo, err := loadPolicies(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "policy load failed: %v\n", err)
		return 1
	}

	if err := seedIfEmpty(ctx, st, logger); err != nil {
		fmt.Fprintf(stderr, "seed failed: %v\n", err)
		return 1
	}

	evaluator := eligibility.NewEvaluator(repo).WithRiskThreshold(cfg.RiskReturnThreshold)
	notifier, err := notify.NewNotifier(logger)
	if err != nil {
		fmt.Fprintf(stderr, "notifier init failed: %v\n", err)
		return 1
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Store:         st,
		AuditLog:      auditLog,
		Evaluator:     evaluator,
		Policies:      repo,
		Labels:        logistics.NewLabelIssuer(cfg.Seed),
		Notifier:      notifier,
		Escalation:    escalation.NewHandler(auditLog, st, logger),
		Observability: provider,
		Logger:        logger,
		MaxSteps:      cfg.MaxStepsPerSession,
		StepTimeout:   cfg.StepTimeout,
		Seed:          cfg.Seed,
	})
	if err != nil {
		fmt.Fprintf(stderr, "orchestrator init failed: %v\n", err)
		return 1
	}

	var limiter ratelimit.LimiterStore
	var redisStore *ratelimit.RedisStore
	if cfg.RedisAddr != "" {
		redisStore = ratelimit.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, 0)
		limiter = redisStore
		logger.Info("rate limiter: redis", "addr", cfg.RedisAddr)
	} else {
		limiter = ratelimit.NewLocalStore()
		logger.Info("rate limiter: local")
	}
	rlPolicy := ratelimit.Policy{StepsPerMinute: cfg.StepsPerMinute, Burst: cfg.RateBurst}

	apiServer := api.NewServer(orch, auditLog, limiter, rlPolicy, logger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("returnsd listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Fprintf(stdout, "returnsd ready on %s\n", cfg.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", "error", err)
	}
	if redisStore != nil {
		_ = redisStore.Close()
	}
	return 0
}

// openStorage selects Postgres when DATABASE_URL is set and falls back to
// the SQLite file otherwise. Store and audit log share one connection so
// RMA writes and audit appends hit the same database.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, store.Store, audit.Log, error) {
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		st := store.NewPostgresStoreFromDB(db)
		if err := st.MigratePostgres(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		log := audit.NewPostgresLog(db)
		if err := log.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		logger.Info("storage: postgres")
		return db, st, log, nil
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open sqlite %q: %w", cfg.DatabasePath, err)
	}
	db.SetMaxOpenConns(1)
	st, err := store.NewSQLiteStoreFromDB(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	log, err := audit.NewSQLiteLog(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	logger.Info("storage: sqlite", "path", cfg.DatabasePath)
	return db, st, log, nil
}

// loadPolicies prefers a YAML bundle when configured, otherwise the
// built-in reference policies.
func loadPolicies(cfg *config.Config, logger *slog.Logger) (*policy.Repository, error) {
	repo, err := policy.NewRepository()
	if err != nil {
		return nil, err
	}
	if cfg.PolicyBundle != "" {
		bundle, err := policy.LoadBundle(cfg.PolicyBundle)
		if err != nil {
			return nil, err
		}
		if err := repo.Load(bundle.Policies); err != nil {
			return nil, err
		}
		logger.Info("policies: bundle", "path", cfg.PolicyBundle, "name", bundle.Name, "count", len(bundle.Policies))
		return repo, nil
	}
	if err := repo.Load(seed.Policies()); err != nil {
		return nil, err
	}
	logger.Info("policies: built-in", "count", len(seed.Policies()))
	return repo, nil
}

// seedIfEmpty loads reference customers and orders on first boot only.
func seedIfEmpty(ctx context.Context, st store.Store, logger *slog.Logger) error {
	n, err := st.CountOrders(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := seed.Apply(ctx, st, time.Now()); err != nil {
		return err
	}
	logger.Info("seeded reference data")
	return nil
}
