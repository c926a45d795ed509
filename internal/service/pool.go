package service

import (
	"context"
	"sync"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HealthStore durably records HealthCheck outcomes. The pool never depends on it for selection.
type HealthStore interface {
	SaveHealthCheck(ctx context.Context, check *models.HealthCheck) error
	GetRecentFailures(ctx context.Context, limit int) ([]models.HealthCheck, error)
}

// ProxyPool is the registry of ProxyConfig records and the pool-wide request counters.
// All mutation goes through its methods; callers only ever receive copies.
type ProxyPool struct {
	mu      sync.RWMutex
	proxies map[string]*models.ProxyConfig
	order   []string

	totalRequests  int64
	failedRequests int64
	totalCost      float64

	bus    *EventBus
	store  HealthStore
	tuning models.HealthTuning
	logger *logrus.Logger
	now    func() time.Time
}

type PoolOption func(*ProxyPool)

func WithHealthStore(store HealthStore) PoolOption {
	return func(p *ProxyPool) { p.store = store }
}

func WithHealthTuning(t models.HealthTuning) PoolOption {
	return func(p *ProxyPool) { p.tuning = t }
}

func WithClock(now func() time.Time) PoolOption {
	return func(p *ProxyPool) { p.now = now }
}

func NewProxyPool(bus *EventBus, logger *logrus.Logger, opts ...PoolOption) *ProxyPool {
	p := &ProxyPool{
		proxies: make(map[string]*models.ProxyConfig),
		bus:     bus,
		tuning:  models.DefaultHealthTuning(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddProxy registers a proxy, filling documented defaults for omitted fields, and returns its id.
func (p *ProxyPool) AddProxy(ctx context.Context, in models.ProxyInput) string {
	cfg := p.fromInput(in)

	p.mu.Lock()
	if _, exists := p.proxies[cfg.ID]; exists {
		p.logger.WithField("proxy_id", cfg.ID).Warn("Proxy id already registered, replacing record")
	} else {
		p.order = append(p.order, cfg.ID)
	}
	p.proxies[cfg.ID] = cfg
	snapshot := cfg.Clone()
	active := p.activeCountLocked()
	p.mu.Unlock()

	SetActiveProxies(float64(active))
	p.logger.WithFields(logrus.Fields{
		"proxy_id": snapshot.ID,
		"address":  snapshot.Address(),
		"provider": snapshot.Provider,
	}).Info("Proxy added to pool")

	p.bus.Publish(models.Event{Type: models.EventProxyAdded, ProxyID: snapshot.ID, Proxy: snapshot})
	return snapshot.ID
}

func (p *ProxyPool) fromInput(in models.ProxyInput) *models.ProxyConfig {
	cfg := &models.ProxyConfig{
		ID:              in.ID,
		Host:            models.StripScheme(in.Host),
		Port:            in.Port,
		Protocol:        in.Protocol,
		Username:        in.Username,
		Password:        in.Password,
		Type:            in.Type,
		Provider:        in.Provider,
		Country:         in.Country,
		Region:          in.Region,
		Tags:            append([]string{}, in.Tags...),
		Notes:           in.Notes,
		IsActive:        true,
		SuccessRate:     models.DefaultSuccessRate,
		RequestsPerHour: in.RequestsPerHour,
		DailyLimit:      in.DailyLimit,
		MonthlyLimit:    in.MonthlyLimit,
		CreatedAt:       p.now(),
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Protocol == "" {
		cfg.Protocol = models.ProtocolHTTP
	}
	if cfg.Type == "" {
		cfg.Type = models.ProxyTypeDatacenter
	}
	if cfg.Provider == "" {
		cfg.Provider = "manual"
	}
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = models.DefaultRequestsPerHour
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = models.DefaultDailyLimit
	}
	if in.IsActive != nil {
		cfg.IsActive = *in.IsActive
	}
	if in.SuccessRate != nil {
		cfg.SuccessRate = clampRate(*in.SuccessRate)
	}
	if in.AvgResponseTime != nil {
		v := *in.AvgResponseTime
		cfg.AvgResponseTime = &v
	}
	if in.Uptime != nil {
		v := *in.Uptime
		cfg.Uptime = &v
	}
	if in.CostPerRequest != nil {
		v := *in.CostPerRequest
		cfg.CostPerRequest = &v
	}

	return cfg
}

func (p *ProxyPool) GetProxy(id string) (*models.ProxyConfig, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cfg, ok := p.proxies[id]
	if !ok {
		return nil, false
	}
	return cfg.Clone(), true
}

// GetAllProxies returns copies in registration order.
func (p *ProxyPool) GetAllProxies() []*models.ProxyConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.ProxyConfig, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.proxies[id].Clone())
	}
	return out
}

func (p *ProxyPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.proxies)
}

// UpdateProxy merges the non-nil fields of upd. Unknown ids return false.
func (p *ProxyPool) UpdateProxy(ctx context.Context, id string, upd models.ProxyUpdate) bool {
	p.mu.Lock()
	cfg, ok := p.proxies[id]
	if !ok {
		p.mu.Unlock()
		p.logger.WithField("proxy_id", id).Warn("Update requested for unknown proxy")
		return false
	}

	p.applyUpdateLocked(cfg, upd)
	snapshot := cfg.Clone()
	active := p.activeCountLocked()
	p.mu.Unlock()

	SetActiveProxies(float64(active))
	p.bus.Publish(models.Event{Type: models.EventProxyUpdated, ProxyID: id, Proxy: snapshot})
	return true
}

func (p *ProxyPool) applyUpdateLocked(cfg *models.ProxyConfig, upd models.ProxyUpdate) {
	if upd.Host != nil {
		cfg.Host = models.StripScheme(*upd.Host)
	}
	if upd.Port != nil && *upd.Port > 0 {
		cfg.Port = *upd.Port
	}
	if upd.Protocol != nil {
		cfg.Protocol = *upd.Protocol
	}
	if upd.Username != nil {
		cfg.Username = *upd.Username
	}
	if upd.Password != nil {
		cfg.Password = *upd.Password
	}
	if upd.Type != nil {
		cfg.Type = *upd.Type
	}
	if upd.Country != nil {
		cfg.Country = *upd.Country
	}
	if upd.Region != nil {
		cfg.Region = *upd.Region
	}
	if upd.Tags != nil {
		cfg.Tags = append([]string{}, upd.Tags...)
	}
	if upd.Notes != nil {
		cfg.Notes = *upd.Notes
	}
	if upd.IsActive != nil {
		cfg.IsActive = *upd.IsActive
	}
	if upd.FailureCount != nil {
		cfg.FailureCount = max(0, *upd.FailureCount)
	}
	if upd.SuccessRate != nil {
		cfg.SuccessRate = clampRate(*upd.SuccessRate)
	}
	if upd.AvgResponseTime != nil {
		v := *upd.AvgResponseTime
		cfg.AvgResponseTime = &v
	}
	if upd.Uptime != nil {
		v := *upd.Uptime
		cfg.Uptime = &v
	}
	if upd.RequestsPerHour != nil && *upd.RequestsPerHour > 0 {
		cfg.RequestsPerHour = *upd.RequestsPerHour
	}
	if upd.DailyLimit != nil && *upd.DailyLimit > 0 {
		cfg.DailyLimit = *upd.DailyLimit
	}
	if upd.MonthlyLimit != nil {
		cfg.MonthlyLimit = max(0, *upd.MonthlyLimit)
	}
	if upd.CostPerRequest != nil {
		v := *upd.CostPerRequest
		cfg.CostPerRequest = &v
	}

	if cfg.FailureCount >= p.tuning.RuntimeDisableAfter {
		cfg.IsActive = false
	}
}

func (p *ProxyPool) RemoveProxy(ctx context.Context, id string) bool {
	p.mu.Lock()
	cfg, ok := p.proxies[id]
	if !ok {
		p.mu.Unlock()
		p.logger.WithField("proxy_id", id).Warn("Remove requested for unknown proxy")
		return false
	}

	delete(p.proxies, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	active := p.activeCountLocked()
	p.mu.Unlock()

	SetActiveProxies(float64(active))
	p.logger.WithField("proxy_id", id).Info("Proxy removed from pool")
	p.bus.Publish(models.Event{Type: models.EventProxyRemoved, ProxyID: id, Proxy: cfg.Clone()})
	return true
}

// Clear drops every record. It is an operator action and is not part of cleanup.
func (p *ProxyPool) Clear(ctx context.Context) int {
	p.mu.Lock()
	ids := append([]string{}, p.order...)
	p.proxies = make(map[string]*models.ProxyConfig)
	p.order = nil
	p.mu.Unlock()

	SetActiveProxies(0)
	for _, id := range ids {
		p.bus.Publish(models.Event{Type: models.EventProxyRemoved, ProxyID: id})
	}
	return len(ids)
}

// ResetHourlyUsage zeroes every hourly counter unconditionally.
func (p *ProxyPool) ResetHourlyUsage() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cfg := range p.proxies {
		cfg.CurrentHourlyUsage = 0
	}
	return len(p.proxies)
}

// ResetDailyUsage zeroes every daily counter unconditionally.
func (p *ProxyPool) ResetDailyUsage() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cfg := range p.proxies {
		cfg.CurrentDailyUsage = 0
	}
	return len(p.proxies)
}

type poolTotals struct {
	TotalRequests  int64
	FailedRequests int64
	TotalCost      float64
}

func (p *ProxyPool) totals() poolTotals {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return poolTotals{
		TotalRequests:  p.totalRequests,
		FailedRequests: p.failedRequests,
		TotalCost:      p.totalCost,
	}
}

func (p *ProxyPool) activeCountLocked() int {
	n := 0
	for _, cfg := range p.proxies {
		if cfg.IsActive {
			n++
		}
	}
	return n
}

func clampRate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
