package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	DefaultHealthCheckInterval = 5 * time.Minute
	DefaultMaxConcurrentChecks = 10
)

// ConnectivityChecker is the probe a HealthMonitor runs against each proxy.
type ConnectivityChecker interface {
	CheckConnectivity(ctx context.Context, cfg *models.ProxyConfig) (time.Duration, error)
}

// HealthMonitor sweeps every registered proxy on a fixed interval.
type HealthMonitor struct {
	pool          *ProxyPool
	checker       ConnectivityChecker
	logger        *logrus.Logger
	checkInterval time.Duration
	maxConcurrent int

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHealthMonitor(pool *ProxyPool, checker ConnectivityChecker, logger *logrus.Logger, interval time.Duration, maxConcurrent int) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentChecks
	}

	return &HealthMonitor{
		pool:          pool,
		checker:       checker,
		logger:        logger,
		checkInterval: interval,
		maxConcurrent: maxConcurrent,
		stopChan:      make(chan struct{}),
	}
}

func (h *HealthMonitor) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(ctx)
	}()
}

// Stop halts the sweep loop and waits for an in-flight sweep. Safe to call repeatedly.
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
	h.wg.Wait()
}

func (h *HealthMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()

	h.logger.WithField("interval", h.checkInterval.String()).Info("Starting periodic health checks")

	for {
		select {
		case <-ticker.C:
			h.RunSweep(ctx)
		case <-h.stopChan:
			h.logger.Info("Stopping health checks")
			return
		case <-ctx.Done():
			h.logger.Info("Context cancelled, stopping health checks")
			return
		}
	}
}

// RunSweep probes every registered proxy once and returns how many probes succeeded and failed.
// A failing or panicking probe never affects the others.
func (h *HealthMonitor) RunSweep(ctx context.Context) (succeeded, failed int) {
	proxies := h.pool.GetAllProxies()
	h.logger.WithField("proxies", len(proxies)).Info("Performing scheduled health checks")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	semaphore := make(chan struct{}, h.maxConcurrent)

	for _, proxy := range proxies {
		wg.Add(1)
		go func(cfg *models.ProxyConfig) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			ok := h.checkOne(ctx, cfg)

			mu.Lock()
			if ok {
				succeeded++
			} else {
				failed++
			}
			mu.Unlock()
		}(proxy)
	}

	wg.Wait()
	RecordHealthSweep()

	h.logger.WithFields(logrus.Fields{
		"succeeded": succeeded,
		"failed":    failed,
	}).Info("Completed scheduled health checks")
	return succeeded, failed
}

func (h *HealthMonitor) checkOne(ctx context.Context, cfg *models.ProxyConfig) (ok bool) {
	report := models.HealthReport{ProxyID: cfg.ID, Source: models.SourceMonitor}

	defer func() {
		if r := recover(); r != nil {
			h.logger.WithField("proxy_id", cfg.ID).Errorf("Health probe panicked: %v", r)
			report.Success = false
			report.Error = fmt.Sprintf("probe panicked: %v", r)
			ok = false
		}
		h.pool.ReportProxyHealth(ctx, report)
	}()

	latency, err := h.checker.CheckConnectivity(ctx, cfg)
	if err != nil {
		h.logger.WithError(err).WithField("proxy_id", cfg.ID).Debug("Health probe failed")
		report.Error = err.Error()
		return false
	}

	ms := float64(latency.Milliseconds())
	report.Success = true
	report.ResponseTime = &ms
	return true
}
