package service

import (
	"context"
	"sync"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/sirupsen/logrus"
)

type RotatorConfig struct {
	HealthCheckInterval time.Duration
	UsageResetInterval  time.Duration
	ValidationTimeout   time.Duration
	MaxConcurrentChecks int
	ValidateOnLoad      bool
	IPCheckEndpoints    []string
	Tuning              *models.HealthTuning
}

// ProxyRotator owns one pool and the loops that maintain it.
type ProxyRotator struct {
	Bus       *EventBus
	Pool      *ProxyPool
	Validator *Validator
	Monitor   *HealthMonitor
	Tracker   *UsageTracker
	Providers *ProviderManager

	logger      *logrus.Logger
	startOnce   sync.Once
	cleanupOnce sync.Once
	cancel      context.CancelFunc
}

func NewProxyRotator(cfg RotatorConfig, store HealthStore, fallback ProviderAdapter, logger *logrus.Logger, adapters ...ProviderAdapter) *ProxyRotator {
	bus := NewEventBus(logger)

	poolOpts := []PoolOption{WithHealthStore(store)}
	if cfg.Tuning != nil {
		poolOpts = append(poolOpts, WithHealthTuning(*cfg.Tuning))
	}
	pool := NewProxyPool(bus, logger, poolOpts...)

	validator := NewValidator(pool, logger,
		WithEndpoints(cfg.IPCheckEndpoints...),
		WithValidationTimeout(cfg.ValidationTimeout),
	)

	providers := NewProviderManager(pool, validator, fallback, logger, adapters...)
	providers.SetValidateOnLoad(cfg.ValidateOnLoad)

	return &ProxyRotator{
		Bus:       bus,
		Pool:      pool,
		Validator: validator,
		Monitor:   NewHealthMonitor(pool, validator, logger, cfg.HealthCheckInterval, cfg.MaxConcurrentChecks),
		Tracker:   NewUsageTracker(pool, logger, cfg.UsageResetInterval),
		Providers: providers,
		logger:    logger,
	}
}

// Initialize loads every provider and starts the health and usage loops. Only the first call does work.
func (r *ProxyRotator) Initialize(ctx context.Context) int {
	loaded := 0
	r.startOnce.Do(func() {
		loaded = r.Providers.LoadProxies(ctx)

		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		r.cancel = cancel
		r.Monitor.Start(loopCtx)
		r.Tracker.Start()

		r.logger.WithField("proxies", r.Pool.Count()).Info("Proxy rotator initialized")
	})
	return loaded
}

// Cleanup stops the background loops. The registry is left intact. Safe to call repeatedly.
func (r *ProxyRotator) Cleanup() {
	r.cleanupOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.Monitor.Stop()
		r.Tracker.Stop()
		r.Providers.WaitForValidations()

		r.logger.Info("Proxy rotator cleaned up")
		r.Bus.Publish(models.Event{Type: models.EventCleanupCompleted})
	})
}

func (r *ProxyRotator) GetNextProxy(ctx context.Context) *models.ProxyConfig {
	return r.Pool.GetNextProxy(ctx)
}

func (r *ProxyRotator) ReportProxyHealth(ctx context.Context, report models.HealthReport) bool {
	return r.Pool.ReportProxyHealth(ctx, report)
}

// ValidateNow probes a registered proxy synchronously and applies the validation accounting.
func (r *ProxyRotator) ValidateNow(ctx context.Context, id string) (models.ValidationResult, error) {
	cfg, ok := r.Pool.GetProxy(id)
	if !ok {
		return models.ValidationResult{}, models.ErrProxyNotFound
	}

	result := r.Validator.ValidateProxy(ctx, cfg)
	r.Pool.ApplyValidation(ctx, id, result)
	return result, nil
}
