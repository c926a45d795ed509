package service

import (
	"context"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/sirupsen/logrus"
)

// ReportProxyHealth folds one request outcome into the proxy's health and the pool counters.
// Unknown ids are logged and ignored. It reports whether the id was known.
func (p *ProxyPool) ReportProxyHealth(ctx context.Context, report models.HealthReport) bool {
	if report.Source == "" {
		report.Source = models.SourceTraffic
	}

	p.mu.Lock()
	cfg, ok := p.proxies[report.ProxyID]
	if !ok {
		p.mu.Unlock()
		p.logger.WithField("proxy_id", report.ProxyID).Warn("Health report for unknown proxy")
		return false
	}

	now := p.now()
	wasActive := cfg.IsActive
	t := p.tuning

	if report.Success {
		cfg.FailureCount = max(0, cfg.FailureCount-1)
		cfg.SuccessRate = clampRate(cfg.SuccessRate*t.SuccessRateDecay + 100*t.SuccessRateSample)
		if report.ResponseTime != nil {
			rt := *report.ResponseTime
			if cfg.AvgResponseTime != nil {
				rt = *cfg.AvgResponseTime*t.ResponseTimeDecay + rt*t.ResponseTimeSample
			}
			cfg.AvgResponseTime = &rt
		}
	} else {
		cfg.FailureCount++
		cfg.SuccessRate = clampRate(cfg.SuccessRate * t.SuccessRateDecay)
		if cfg.FailureCount >= t.RuntimeDisableAfter {
			cfg.IsActive = false
		}
		p.failedRequests++
	}

	cfg.LastCheckedAt = &now
	p.totalRequests++
	if cfg.CostPerRequest != nil {
		p.totalCost += *cfg.CostPerRequest
	}

	disabled := wasActive && !cfg.IsActive
	snapshot := cfg.Clone()
	active := p.activeCountLocked()
	p.mu.Unlock()

	check := &models.HealthCheck{
		ProxyID:      snapshot.ID,
		Provider:     snapshot.Provider,
		Success:      report.Success,
		ResponseTime: report.ResponseTime,
		Error:        report.Error,
		Source:       report.Source,
		Timestamp:    now,
	}

	RecordHealthReport(string(report.Source), statusLabel(report.Success))
	if report.ResponseTime != nil {
		RecordLatency(*report.ResponseTime)
	}

	p.bus.Publish(models.Event{
		Type:        models.EventProxyHealthReported,
		ProxyID:     snapshot.ID,
		Proxy:       snapshot.Clone(),
		HealthCheck: check.Clone(),
	})

	if disabled {
		p.disabled(snapshot, active, "runtime")
	}

	p.persist(ctx, check)
	return true
}

// ApplyValidation folds a validation probe into the proxy. The validation path disables
// sooner than runtime reporting and does not touch pool-wide request counters.
func (p *ProxyPool) ApplyValidation(ctx context.Context, id string, result models.ValidationResult) bool {
	p.mu.Lock()
	cfg, ok := p.proxies[id]
	if !ok {
		p.mu.Unlock()
		p.logger.WithField("proxy_id", id).Warn("Validation result for unknown proxy")
		return false
	}

	now := p.now()
	wasActive := cfg.IsActive
	t := p.tuning

	if result.IsValid {
		cfg.SuccessRate = clampRate((cfg.SuccessRate + t.ValidationTarget) / 2)
		rt := result.ResponseTime
		cfg.AvgResponseTime = &rt
	} else {
		cfg.FailureCount++
		cfg.SuccessRate = clampRate(cfg.SuccessRate - t.ValidationPenalty)
		if cfg.FailureCount >= t.ValidationDisableAfter {
			cfg.IsActive = false
		}
	}
	cfg.LastCheckedAt = &now

	disabled := wasActive && !cfg.IsActive
	snapshot := cfg.Clone()
	active := p.activeCountLocked()
	p.mu.Unlock()

	rt := result.ResponseTime
	check := &models.HealthCheck{
		ProxyID:      snapshot.ID,
		Provider:     snapshot.Provider,
		Success:      result.IsValid,
		ResponseTime: &rt,
		Error:        result.Error,
		Source:       models.SourceValidation,
		Timestamp:    now,
	}

	RecordHealthReport(string(models.SourceValidation), statusLabel(result.IsValid))
	p.bus.Publish(models.Event{Type: models.EventProxyUpdated, ProxyID: id, Proxy: snapshot.Clone()})

	if disabled {
		p.disabled(snapshot, active, "validation")
	}

	p.persist(ctx, check)
	return true
}

func (p *ProxyPool) disabled(cfg *models.ProxyConfig, active int, path string) {
	SetActiveProxies(float64(active))
	RecordProxyDisabled(cfg.Provider)
	p.logger.WithFields(logrus.Fields{
		"proxy_id":      cfg.ID,
		"provider":      cfg.Provider,
		"failure_count": cfg.FailureCount,
		"path":          path,
	}).Warn("Proxy disabled after repeated failures")
	p.bus.Publish(models.Event{Type: models.EventProxyDisabled, ProxyID: cfg.ID, Proxy: cfg})
}

// persist is best-effort; store errors never reach the caller.
func (p *ProxyPool) persist(ctx context.Context, check *models.HealthCheck) {
	if p.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.store.SaveHealthCheck(ctx, check); err != nil {
		p.logger.WithError(err).WithField("proxy_id", check.ProxyID).Error("Failed to persist health check")
	}
}

// RecentFailures delegates to the health store; without one there is no history.
func (p *ProxyPool) RecentFailures(ctx context.Context, limit int) []models.HealthCheck {
	if p.store == nil {
		return []models.HealthCheck{}
	}

	failures, err := p.store.GetRecentFailures(ctx, limit)
	if err != nil {
		p.logger.WithError(err).Error("Failed to load recent failures")
		return []models.HealthCheck{}
	}
	if failures == nil {
		return []models.HealthCheck{}
	}
	return failures
}
