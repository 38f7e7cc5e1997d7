package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"reftrack/internal/config"
	"reftrack/internal/handlers"
	"reftrack/internal/repository"
	"reftrack/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const affiliateCacheTTL = 10 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func Run(ctx context.Context) error {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Setup Logger
	var handler slog.Handler
	if cfg.AppEnv == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 3. Initialize Database
	db, err := repository.InitDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// 4. Schema
	if strings.HasPrefix(cfg.DatabaseURL, "postgres") {
		logger.Info("Running database migrations...")
		if err := repository.RunMigrations(cfg.DatabaseURL, ""); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	} else if err := repository.AutoMigrate(db); err != nil {
		return err
	}

	// 5. Initialize Redis
	var cache *services.AffiliateCache
	rdb, err := repository.InitRedis(ctx, cfg.RedisURL, cfg.RedisPassword, 0)
	if err != nil {
		logger.Warn("Failed to connect to Redis, affiliate cache disabled", "error", err)
	} else {
		defer rdb.Close()
		cache = services.NewAffiliateCache(rdb, affiliateCacheTTL, logger)
	}

	// Background Context for workers
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var workers sync.WaitGroup
	startWorker := func(fn func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn(workerCtx)
		}()
	}

	// 6. Initialize Services
	metrics := services.NewMetrics()

	var publisher services.EventPublisher = services.NewLogPublisher(logger)
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kafkaPublisher, err := services.NewKafkaPublisher(brokers, cfg.KafkaTopic, logger, metrics)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		startWorker(kafkaPublisher.Start)
		publisher = kafkaPublisher
	}

	store := repository.NewGormStore(db)
	geoIPService := services.NewGeoIPService(cfg, logger)
	commissionService := services.NewCommissionService(store, cfg, publisher, metrics, logger)
	lifecycleService := services.NewLifecycleService(services.LifecycleDeps{
		Store:       store,
		Classifier:  services.NewUserAgentClassifier(),
		Locator:     geoIPService,
		Commissions: commissionService,
		Publisher:   publisher,
		Metrics:     metrics,
		Cache:       cache,
		Logger:      logger,
	})
	analyticsService := services.NewAnalyticsService(store, logger)
	qrService := services.NewQRService(cfg.PublicBaseURL)
	rateLimiter := services.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, logger)
	expiryWorker := services.NewExpiryWorker(lifecycleService, cfg.ReferralExpiryDays, cfg.ExpirySweepInterval, logger)

	// 7. Initialize Handler
	h := handlers.NewHandler(cfg, logger, lifecycleService, commissionService, analyticsService, qrService, metrics)

	// 8. Setup Router
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := h.SetupRouter(rateLimiter)

	// 9. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go geoIPService.Init()
	startWorker(geoIPService.StartUpdater)
	startWorker(expiryWorker.Start)
	rateLimiter.StartCleanup(workerCtx, 10*time.Minute)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Workers stop after the server so in-flight requests can still publish.
	workerCancel()
	workers.Wait()

	logger.Info("Server exiting")
	return runErr
}
