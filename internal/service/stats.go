package service

import (
	"context"
	"sort"

	"github.com/jobswipe/proxy-rotator/internal/models"
)

const (
	topProxiesLimit     = 5
	recentFailuresLimit = 10
)

// GetUsageStats summarises the pool. Recent failures come from the health store.
func (p *ProxyPool) GetUsageStats(ctx context.Context) models.UsageStats {
	proxies := p.GetAllProxies()
	totals := p.totals()

	stats := models.UsageStats{
		TotalProxies:      len(proxies),
		TotalRequests:     totals.TotalRequests,
		FailedRequests:    totals.FailedRequests,
		TotalCost:         totals.TotalCost,
		TopProxies:        []models.ProxyRanking{},
		ProxiesByProvider: make(map[string]models.ProviderStats),
	}

	var (
		activeRateSum float64
		rtSum         float64
		rtCount       int
	)
	providerRateSum := make(map[string]float64)

	for _, cfg := range proxies {
		ps := stats.ProxiesByProvider[cfg.Provider]
		ps.ProviderName = cfg.Provider
		ps.TotalProxies++

		if cfg.IsActive {
			stats.ActiveProxies++
			activeRateSum += cfg.SuccessRate
			ps.ActiveProxies++
			providerRateSum[cfg.Provider] += cfg.SuccessRate
		}
		if cfg.AvgResponseTime != nil {
			rtSum += *cfg.AvgResponseTime
			rtCount++
		}
		stats.ProxiesByProvider[cfg.Provider] = ps
	}

	if stats.ActiveProxies > 0 {
		stats.AvgSuccessRate = activeRateSum / float64(stats.ActiveProxies)
	}
	if rtCount > 0 {
		stats.AvgResponseTime = rtSum / float64(rtCount)
	}
	for name, ps := range stats.ProxiesByProvider {
		if ps.ActiveProxies > 0 {
			ps.AvgSuccessRate = providerRateSum[name] / float64(ps.ActiveProxies)
			stats.ProxiesByProvider[name] = ps
		}
	}

	ranked := make([]*models.ProxyConfig, len(proxies))
	copy(ranked, proxies)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SuccessRate > ranked[j].SuccessRate
	})
	for i := 0; i < len(ranked) && i < topProxiesLimit; i++ {
		cfg := ranked[i]
		stats.TopProxies = append(stats.TopProxies, models.ProxyRanking{
			ID:          cfg.ID,
			Host:        cfg.Host,
			Port:        cfg.Port,
			Provider:    cfg.Provider,
			Type:        cfg.Type,
			SuccessRate: cfg.SuccessRate,
		})
	}

	stats.RecentFailures = p.RecentFailures(ctx, recentFailuresLimit)
	return stats
}
