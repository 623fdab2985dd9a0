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

	"github.com/RishiKendai/twinscan/internal/api"
	"github.com/RishiKendai/twinscan/internal/config"
	"github.com/RishiKendai/twinscan/internal/configs/env"
	"github.com/RishiKendai/twinscan/internal/diffreport"
	"github.com/RishiKendai/twinscan/internal/infra/mongo"
	redisInfra "github.com/RishiKendai/twinscan/internal/infra/redis"
	"github.com/RishiKendai/twinscan/internal/logger"
	"github.com/RishiKendai/twinscan/internal/metrics"
	"github.com/RishiKendai/twinscan/internal/normalize"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/RishiKendai/twinscan/internal/preprocess"
	"github.com/RishiKendai/twinscan/internal/remote"
	"github.com/RishiKendai/twinscan/internal/repository"
	"github.com/RishiKendai/twinscan/internal/similarity"
	"github.com/RishiKendai/twinscan/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().Msg("Starting twinscan server")

	metrics.InitPrometheus()
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.MetricsHandler())
	metricsServer := api.StartServer("metrics", metricsMux, cfg.MetricsPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MongoDB client")
	}
	defer mongoClient.Close(context.Background())

	redisClient, err := redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis client")
	}
	defer redisClient.Close()

	mongoRepo := repository.NewMongoRepository(mongoClient)
	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure MongoDB indexes")
	}
	sourcesRepo := repository.NewSourcesRepository(mongoRepo)
	resultsRepo := repository.NewResultsRepository(mongoRepo)

	decoder, err := normalize.NewDecoder(cfg.FallbackCharset)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid fallback charset")
	}

	// The remote backend is optional. Uploads to it are best effort; it
	// only scores pairs when COMPARER=remote.
	var remoteClient *remote.Client
	var uploader preprocess.Uploader
	if cfg.RemoteBaseURL != "" {
		remoteClient = remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteAPIKey, cfg.RemoteRPS, remote.WithUploader(cfg.RemoteUser))
		uploader = remoteClient
		log.Info().Str("base_url", cfg.RemoteBaseURL).Msg("Remote backend configured")
	}

	preprocessSvc := preprocess.NewService(decoder, sourcesRepo, uploader, cfg.MaxFileSize)

	retryHandler := stream.NewRetryHandler(
		stream.NewRedisDeadLetter(redisClient.Client, cfg.RedisDeadLetterKey),
		cfg.MaxRetries,
	)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	status := plagiarism.NewRedisStatus(redisClient)
	consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
	consumer := stream.NewConsumer(
		redisClient.Client,
		cfg.RedisStreamKey,
		cfg.RedisConsumerGroup,
		consumerName,
		preprocessSvc,
		retryHandler,
		status,
		cfg.StreamRetentionDuration,
	)
	log.Info().Str("consumer_name", consumerName).Msg("Redis stream consumer initialized")

	workerPool := plagiarism.NewWorkerPool(ctx, cfg.Workers)
	defer workerPool.Close()

	var comparer plagiarism.Comparer
	var reports plagiarism.ReportBuilder
	var serviceOpts []plagiarism.ServiceOption
	switch cfg.Comparer {
	case "remote":
		comparer, reports = remoteClient, remoteClient
		serviceOpts = append(serviceOpts, plagiarism.WithCheckSubmitter(remoteClient))
	default:
		granularity, err := similarity.ParseGranularity(cfg.Granularity)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid similarity granularity")
		}
		cache := normalize.NewCache(normalize.ForFile(normalize.Mode(cfg.NormalizeMode)))
		scorer := similarity.NewScorer(similarity.Options{Granularity: granularity, AutoJunk: cfg.AutoJunk})
		comparer = plagiarism.NewLocalComparer(cache, scorer)
		reports = plagiarism.NewLocalReportBuilder(diffreport.DefaultOptions)
	}
	log.Info().Str("comparer", cfg.Comparer).Int("workers", workerPool.Size()).Msg("Comparison engine ready")

	orchestrator := plagiarism.NewOrchestrator(workerPool, comparer)
	service := plagiarism.NewService(sourcesRepo, resultsRepo, resultsRepo, status, orchestrator, reports, plagiarism.ServiceConfig{
		ReportsDir:    cfg.ReportsDir,
		ExportWorkers: cfg.Workers,
		Timeout:       cfg.ComputationTimeout,
	}, serviceOpts...)

	handler := api.NewHandler(cfg, service, sourcesRepo, status)
	rateLimiter := api.NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))
	go rateLimiter.RunCleanup(ctx, 10*time.Minute, time.Hour)
	router := api.SetupRoutes(cfg, handler, rateLimiter)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Redis consumer error")
		}
	}()
	log.Info().Msg("Redis consumer started")

	srv := api.StartServer("api", router, cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down API server")
	}

	consumerCancel()
	<-consumerDone

	// running computations hold their own timeout; let them record their runs
	handler.Wait()

	if err := api.ShutdownServer(metricsServer, 5*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	log.Info().Msg("Shutdown complete")
}
