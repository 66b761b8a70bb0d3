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
	"car-report/internal/handler"
	"car-report/internal/logging"
	"car-report/internal/metrics"
	"car-report/internal/pdf"
	"car-report/internal/queue/rabbitmq"
	"car-report/internal/repository"
	minioclient "car-report/internal/storage/minio"
	"car-report/pkg/database/postgres"
	redisclient "car-report/pkg/database/redis"
	"car-report/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "api-gateway"})
	log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting API Gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Msg("Connecting to PostgreSQL...")
	pgPool, err := postgres.NewClient(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pgPool.Close()

	if err := postgres.RunMigrations(ctx, pgPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

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

	m := metrics.New(prometheus.DefaultRegisterer)
	h := handler.NewHandler(
		repository.NewReports(pgPool),
		redisClient,
		minioClient,
		rabbitClient,
		pdf.NewClient(cfg.PDFServiceURL, cfg.PDFTimeout),
		m,
		handler.Options{CacheTTL: cfg.CacheTTL, LinkTTL: cfg.LinkTTL, LogoURL: cfg.LogoURL},
	)

	var auth gin.HandlerFunc
	if cfg.AuthEnabled {
		auth, err = security.AuthMiddleware(cfg.JWKSURL(), cfg.KeycloakClient)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize auth")
		}
		log.Info().Str("realm", cfg.KeycloakRealm).Msg("Keycloak auth enabled")
	}

	router := gin.New()
	router.Use(gin.Recovery(), handler.RequestLogger(m))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(router, auth)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Msg("API Gateway is running. Press Ctrl+C to exit.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
