package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/mobilenet-retail/backoffice/cmd/backoffice/cli"
	"github.com/mobilenet-retail/backoffice/internal/app"
	"github.com/mobilenet-retail/backoffice/internal/auth"
	"github.com/mobilenet-retail/backoffice/internal/dashboard"
	"github.com/mobilenet-retail/backoffice/internal/observability"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/platform/cache"
	"github.com/mobilenet-retail/backoffice/internal/platform/db"
	"github.com/mobilenet-retail/backoffice/internal/ratelimit"
	"github.com/mobilenet-retail/backoffice/internal/sales"
	"github.com/mobilenet-retail/backoffice/internal/seed"
	"github.com/mobilenet-retail/backoffice/internal/settlement"
	settlementhttp "github.com/mobilenet-retail/backoffice/internal/settlement/http"
	"github.com/mobilenet-retail/backoffice/internal/shared"
	"github.com/mobilenet-retail/backoffice/internal/stats"
	"github.com/mobilenet-retail/backoffice/internal/store/memory"
	"github.com/mobilenet-retail/backoffice/internal/store/postgres"
	"github.com/mobilenet-retail/backoffice/jobs"
)

const listVersionKey = "backoffice:sales:list_version"

// backend is satisfied by both store implementations.
type backend interface {
	auth.Repository
	org.Repository
	sales.Repository
	stats.Source
	seed.Target
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("backoffice", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var (
		store backend
		idem  sales.IdempotencyGuard
	)
	if cfg.UsesMemoryStore() {
		logger.Warn("PG_DSN not set, using the in-memory store")
		mem := memory.New(nil)
		store, idem = mem, mem
	} else {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := postgres.New(pool)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		store, idem = pg, shared.NewIdempotencyStore(pool)
	}

	metrics := observability.NewMetrics()
	profiles, err := cfg.Profiles()
	if err != nil {
		return err
	}
	calc, err := settlement.New(profiles.Default())
	if err != nil {
		return err
	}

	salesOpts := sales.Options{
		Versions:    cache.NewCounter(redisClient, listVersionKey),
		Idempotency: idem,
		Metrics:     metrics,
		Logger:      logger,
		PageSize:    cfg.SalesPageSize,
		MaxPageSize: cfg.SalesMaxPageSize,
	}
	var inspector jobs.QueueInspector
	if cfg.JobsEnabled {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient := jobs.NewClient(redisOpts)
		defer jobClient.Close()
		salesOpts.Publisher = jobClient
		queueInspector := asynq.NewInspector(redisOpts)
		defer queueInspector.Close()
		inspector = queueInspector
	}
	salesService := sales.NewService(store, calc, salesOpts)

	if cfg.UsesMemoryStore() {
		if _, err := seed.Run(ctx, store, salesService, time.Now(), logger); err != nil {
			return fmt.Errorf("seed memory store: %w", err)
		}
	}

	limiter, err := newLimiter(cfg, redisClient)
	if err != nil {
		return err
	}

	sessionManager := shared.NewSessionManager(redisClient, "backoffice_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	authService := auth.NewService(store)
	orgService := org.NewService(store, logger)
	aggregator := stats.NewAggregator(store, store, cfg.StatsMaxRange, nil, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthService:    authService,
		AuthHandler:    auth.NewHandler(logger, authService, sessionManager, csrfManager),
		SalesHandler:   sales.NewHandler(logger, salesService),
		StatsHandler:   stats.NewHandler(logger, aggregator),
		CalcHandler:    settlementhttp.NewHandler(logger, profiles),
		CalcLimiter:    limiter,
		Dashboard:      dashboard.NewHandler(logger, authService, orgService, aggregator),
		OrgHandler:     org.NewHandler(logger, orgService),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		RequestLogging: !cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("memory_store", cfg.UsesMemoryStore()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLimiter(cfg *app.Config, client *redis.Client) (ratelimit.Limiter, error) {
	rule := ratelimit.Rule{Limit: cfg.CalcRateLimit, Window: cfg.CalcRateWindow}
	if cfg.RateLimitBackend == "memory" {
		return ratelimit.NewMemoryLimiter(rule, nil)
	}
	return ratelimit.NewRedisLimiter(client, rule, nil)
}

func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: backoffice jobs inspect | trigger <task>")
	}
	c := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)
	defer c.Close()
	switch args[0] {
	case "inspect":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "trigger":
		if len(args) < 2 {
			return errors.New("usage: backoffice jobs trigger <task>")
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s\n", info.Type, info.ID)
	default:
		return fmt.Errorf("unknown jobs command %q", args[0])
	}
	return nil
}
