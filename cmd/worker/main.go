package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"car-report/internal/config"
	"car-report/internal/llm"
	"car-report/internal/logging"
	"car-report/internal/metrics"
	"car-report/internal/normalize"
	"car-report/internal/queue/rabbitmq"
	"car-report/internal/repository"
	minioclient "car-report/internal/storage/minio"
	"car-report/internal/worker"
	"car-report/pkg/database/postgres"
	redisclient "car-report/pkg/database/redis"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "worker"})
	log.Info().Int("pool_size", cfg.WorkerPoolSize).Msg("Starting Worker Service...")

	normalizer, err := normalize.New(cfg.NormalizerConfig.Options())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid normalizer settings")
	}
	analyzer, err := llm.NewClient(cfg.LLM())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Msg("Connecting to PostgreSQL...")
	pgPool, err := postgres.NewClient(ctx, cfg.PostgresURL, postgres.PoolConfig{MaxConns: int32(cfg.WorkerPoolSize) + 2})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pgPool.Close()

	log.Info().Msg("Connecting to Minio...")
	minioClient, err := minioclient.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Minio")
	}

	log.Info().Msg("Connecting to RabbitMQ...")
	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer rabbitClient.Close()

	log.Info().Msg("Connecting to Redis...")
	redisClient, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	log.Info().Msg("Successfully connected to all services")

	m := metrics.New(prometheus.DefaultRegisterer)
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	processor := worker.NewProcessor(
		repository.NewReports(pgPool),
		minioClient,
		redisClient,
		normalizer,
		analyzer,
		m,
		cfg.LogoURL,
	)

	msgs, err := rabbitClient.Consume(cfg.WorkerPoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start consuming")
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("Worker Service is running. Press Ctrl+C to exit.")
	worker.NewPool(processor, cfg.WorkerPoolSize, cfg.TaskTimeout).Run(runCtx, msgs)

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info().Msg("Worker Service stopped")
}
