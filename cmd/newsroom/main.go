package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"newsroom/internal/api"
	"newsroom/internal/config"
	"newsroom/internal/digest"
	"newsroom/internal/enrich"
	"newsroom/internal/monitoring"
	"newsroom/internal/objstore"
	"newsroom/internal/render"
	"newsroom/internal/scheduler"
	"newsroom/internal/scrape"
	"newsroom/internal/storage"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize Storage Layer
	ctx := context.Background()
	pgStore, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	redisStore := storage.NewRedisStore(cfg.RedisAddr)

	imageStore, err := objstore.New(objstore.Config{
		Endpoint:   cfg.MinioEndpoint,
		AccessKey:  cfg.MinioAccessKey,
		SecretKey:  cfg.MinioSecretKey,
		Bucket:     cfg.MinioBucket,
		UseSSL:     cfg.MinioUseSSL,
		PublicBase: cfg.MinioPublicBase,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create object storage client", zap.Error(err))
	}

	metrics := monitoring.NewMetrics()

	// Rendering pool: the browser launches lazily on first acquire.
	pool := render.NewPool(cfg.NavTimeout(), logger)
	defer pool.Close()

	// Enrichment pipeline and capability clients
	retry := enrich.DefaultPolicy()
	retry.MaxRetries = uint64(cfg.RetryMaxRetries)
	enricher := enrich.NewEnricher(
		pgStore,
		enrich.NewLLMClient(cfg.LLMEndpoint, cfg.LLMModel, cfg.LLMAPIKey),
		enrich.NewImageClient(cfg.ImageEndpoint, cfg.ImageAPIKey),
		enrich.NewSpeechClient(cfg.TTSEndpoint, cfg.TTSAPIKey),
		imageStore,
		retry,
		enrich.Options{
			Voice:        cfg.TTSVoice,
			CallbackURL:  cfg.TTSCallbackURL,
			Locales:      cfg.TargetLocales(),
			StageTimeout: cfg.EnrichmentTimeout(),
		},
		metrics,
		logger,
	)

	runner := scrape.NewRunner(
		pgStore, pgStore, redisStore,
		scrape.NewPoolRenderer(pool, metrics),
		scrape.NewStaticFetcher(cfg.NavTimeout(), metrics),
		enricher,
		cfg.CrawlMaxPages, cfg.CrawlMaxQueue, cfg.CrawlWorkers,
		cfg.RecentTTL(),
		metrics, logger,
	)
	digester := digest.NewGenerator(pgStore, enricher, metrics, logger)

	// Recurring jobs
	jobs := scheduler.New(runner, digester, logger)
	if err := jobs.Start(cfg.ScrapeSchedule, cfg.DigestSchedule); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	// Trigger surface
	server := api.NewServer(cfg, runner, digester, pgStore, redisStore, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jobs.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	pgStore.Close()
	if err := redisStore.Close(); err != nil {
		logger.Warn("failed to close redis client", zap.Error(err))
	}

	logger.Info("server exiting")
}
