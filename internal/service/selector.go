package service

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	successRateMargin = 5.0
	usageRatioMargin  = 0.1
)

const (
	strategyRanked = "ranked"
	strategyRandom = "random"
)

// GetNextProxy returns the best eligible proxy and charges its quota, or nil when none is eligible.
func (p *ProxyPool) GetNextProxy(ctx context.Context) *models.ProxyConfig {
	return p.GetNextProxyWhere(ctx, models.SelectionFilter{})
}

// GetNextProxyWhere is GetNextProxy restricted to proxies matching filter.
func (p *ProxyPool) GetNextProxyWhere(ctx context.Context, filter models.SelectionFilter) *models.ProxyConfig {
	p.mu.Lock()
	candidates := p.eligibleLocked(filter)
	if len(candidates) == 0 {
		p.mu.Unlock()
		p.exhausted(filter)
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return rankBefore(candidates[i], candidates[j])
	})

	chosen := p.chargeLocked(candidates[0])
	p.mu.Unlock()

	p.selected(chosen, strategyRanked)
	return chosen
}

// GetRandomProxy picks uniformly among eligible proxies matching filter, charging usage like GetNextProxy.
func (p *ProxyPool) GetRandomProxy(ctx context.Context, filter models.SelectionFilter) *models.ProxyConfig {
	p.mu.Lock()
	candidates := p.eligibleLocked(filter)
	if len(candidates) == 0 {
		p.mu.Unlock()
		p.exhausted(filter)
		return nil
	}

	chosen := p.chargeLocked(candidates[rand.Intn(len(candidates))])
	p.mu.Unlock()

	p.selected(chosen, strategyRandom)
	return chosen
}

// eligibleLocked returns pool-owned records in registration order.
func (p *ProxyPool) eligibleLocked(filter models.SelectionFilter) []*models.ProxyConfig {
	out := make([]*models.ProxyConfig, 0, len(p.order))
	for _, id := range p.order {
		cfg := p.proxies[id]
		if p.isEligible(cfg) && filter.Matches(cfg) {
			out = append(out, cfg)
		}
	}
	return out
}

func (p *ProxyPool) isEligible(cfg *models.ProxyConfig) bool {
	return cfg.IsActive &&
		cfg.CurrentHourlyUsage < cfg.RequestsPerHour &&
		cfg.CurrentDailyUsage < cfg.DailyLimit &&
		cfg.FailureCount < p.tuning.RuntimeDisableAfter
}

func (p *ProxyPool) chargeLocked(cfg *models.ProxyConfig) *models.ProxyConfig {
	now := p.now()
	cfg.CurrentHourlyUsage++
	cfg.CurrentDailyUsage++
	cfg.LastUsedAt = &now
	return cfg.Clone()
}

func (p *ProxyPool) selected(cfg *models.ProxyConfig, strategy string) {
	RecordSelection(cfg.Provider, strategy)
	p.logger.WithFields(logrus.Fields{
		"proxy_id": cfg.ID,
		"provider": cfg.Provider,
		"strategy": strategy,
	}).Debug("Proxy selected")
	p.bus.Publish(models.Event{Type: models.EventProxySelected, ProxyID: cfg.ID, Proxy: cfg.Clone()})
}

func (p *ProxyPool) exhausted(filter models.SelectionFilter) {
	RecordExhaustion()
	p.logger.WithField("filter", filter).Warn("No proxies available")
	p.bus.Publish(models.Event{Type: models.EventNoProxiesAvailable})
}

// rankBefore orders by success rate, then hourly usage ratio, then least recently used.
// The first two keys only decide when the gap exceeds their margin.
func rankBefore(a, b *models.ProxyConfig) bool {
	if d := a.SuccessRate - b.SuccessRate; math.Abs(d) > successRateMargin {
		return d > 0
	}
	if d := a.UsageRatio() - b.UsageRatio(); math.Abs(d) > usageRatioMargin {
		return d < 0
	}
	return usedEarlier(a.LastUsedAt, b.LastUsedAt)
}

// never-used sorts first
func usedEarlier(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil:
		return true
	case b == nil:
		return false
	default:
		return a.Before(*b)
	}
}
