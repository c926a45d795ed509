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

	"github.com/jobswipe/proxy-rotator/internal/handlers"
	"github.com/jobswipe/proxy-rotator/internal/models"
	"github.com/jobswipe/proxy-rotator/internal/repository"
	"github.com/jobswipe/proxy-rotator/internal/service"
	"github.com/jobswipe/proxy-rotator/pkg/cache"
	"github.com/jobswipe/proxy-rotator/pkg/config"
	"github.com/jobswipe/proxy-rotator/pkg/database"
	"github.com/jobswipe/proxy-rotator/pkg/logger"
	"github.com/jobswipe/proxy-rotator/pkg/messaging"
	"github.com/jobswipe/proxy-rotator/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.LoadConfig()
	log := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)

	store, history, closeStore := setupHealthStore(ctx, cfg, log)
	defer closeStore()

	rotator := service.NewProxyRotator(
		service.RotatorConfig{
			HealthCheckInterval: config.ParseDuration(cfg.Proxy.HealthCheckInterval, service.DefaultHealthCheckInterval),
			UsageResetInterval:  config.ParseDuration(cfg.Proxy.UsageResetInterval, service.DefaultUsageResetInterval),
			ValidationTimeout:   config.ParseDuration(cfg.Proxy.ValidationTimeout, service.DefaultValidationTimeout),
			MaxConcurrentChecks: cfg.Proxy.MaxConcurrentChecks,
			ValidateOnLoad:      cfg.Proxy.ValidateOnLoad,
			IPCheckEndpoints:    cfg.Proxy.IPCheckEndpoints,
		},
		store,
		service.NewDevelopmentProviderAdapter(cfg.Proxy.DevelopmentProxyHost, cfg.Proxy.DevelopmentProxyPort),
		log,
		buildAdapters(cfg, log)...,
	)

	if cfg.RabbitMQ.URL != "" {
		rabbitmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URL, log)
		if err != nil {
			log.WithError(err).Error("Failed to connect to RabbitMQ, events stay in-process")
		} else {
			defer rabbitmq.Close()
			if err := rabbitmq.DeclareExchange(cfg.RabbitMQ.Exchange, "topic", true, false); err != nil {
				log.WithError(err).Error("Failed to declare events exchange")
			}
			unsubscribe := service.NewEventPublisher(rabbitmq, cfg.RabbitMQ.Exchange, log).Attach(rotator.Bus)
			defer unsubscribe()
		}
	}

	rotator.Bus.Subscribe(func(e models.Event) {
		logger.With(log,
			logger.Field{Key: "event", Value: e.Type},
			logger.Field{Key: "proxy_id", Value: e.ProxyID},
		).Warn("Proxy pool event")
	}, models.EventProxyDisabled, models.EventNoProxiesAvailable)

	rotator.Initialize(ctx)
	defer rotator.Cleanup()

	server := startHTTPServer(rotator, history, log, cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Shutdown timeout exceeded")
	} else {
		log.Info("Server shut down gracefully")
	}
}

// buildAdapters returns adapters in load order: env providers, list APIs from the provider file, custom list.
func buildAdapters(cfg *config.Config, log *logrus.Logger) []service.ProviderAdapter {
	var adapters []service.ProviderAdapter
	for _, name := range cfg.Proxy.EnabledProviders {
		adapters = append(adapters, service.NewEnvProviderAdapter(name, log))
	}

	var static []models.ProxyCandidate
	file, err := service.LoadProviderFile(cfg.Proxy.ProviderConfigPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.WithField("path", cfg.Proxy.ProviderConfigPath).Debug("No provider file, skipping")
	case err != nil:
		log.WithError(err).Error("Failed to load provider file")
	default:
		for _, p := range file.Providers {
			if p.Enabled {
				adapters = append(adapters, service.NewHTTPProviderAdapter(p, log))
			}
		}
		static = file.Custom
	}

	return append(adapters, service.NewCustomProviderAdapter(cfg.Proxy.CustomProxies, static, log))
}

// setupHealthStore picks the HealthCheck backend. Connection failures fall back to memory.
func setupHealthStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (service.HealthStore, handlers.HealthHistory, func()) {
	memory := repository.NewMemoryHealthStore(cfg.HealthStore.RecentFailures)

	switch cfg.HealthStore.Backend {
	case "mongo":
		mongodb, err := database.NewMongoDB(ctx, cfg.Database.MongoDB.URI, cfg.Database.MongoDB.DBName, cfg.Database.MongoDB.Timeout, log)
		if err != nil {
			log.WithError(err).Error("Failed to connect to MongoDB, using in-memory health store")
			return memory, nil, func() {}
		}
		repo := repository.NewHealthRepository(mongodb, log)
		if err := repo.CreateIndexes(ctx); err != nil {
			log.WithError(err).Error("Failed to create health check indexes")
		}
		return repo, repo, func() { mongodb.Close() }

	case "redis":
		redis, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.WithError(err).Error("Failed to connect to Redis, using in-memory health store")
			return memory, nil, func() {}
		}
		return repository.NewHealthCache(redis, cfg.HealthStore.RecentFailures, log), nil, func() { redis.Close() }
	}

	return memory, nil, func() {}
}

func startHTTPServer(rotator *service.ProxyRotator, history handlers.HealthHistory, log *logrus.Logger, cfg *config.Config) *http.Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output: log.Out,
	}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.App.CORSOrigins...)))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
		router.Use(limiter.Middleware())
	}

	auth := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	if !auth.Enabled() {
		log.Warn("JWT secret not set, API routes are unauthenticated")
	}

	httpHandler := handlers.NewHTTPHandler(rotator, history, auth, log)
	httpHandler.SetupRoutes(router)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %d", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start HTTP server: ", err)
		}
	}()

	return server
}
