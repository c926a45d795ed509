package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/sirupsen/logrus"
)

// AsyncValidator validates an already registered proxy and applies the result.
type AsyncValidator interface {
	ValidateProxyAsync(ctx context.Context, id string)
}

// ProviderManager runs every adapter in registration order and feeds the pool.
type ProviderManager struct {
	adapters       []ProviderAdapter
	fallback       ProviderAdapter
	pool           *ProxyPool
	validator      AsyncValidator
	validateOnLoad bool
	logger         *logrus.Logger

	mu         sync.RWMutex
	validating sync.WaitGroup
}

func NewProviderManager(pool *ProxyPool, validator AsyncValidator, fallback ProviderAdapter, logger *logrus.Logger, adapters ...ProviderAdapter) *ProviderManager {
	return &ProviderManager{
		adapters:       adapters,
		fallback:       fallback,
		pool:           pool,
		validator:      validator,
		validateOnLoad: validator != nil,
		logger:         logger,
	}
}

// SetValidateOnLoad toggles the background validation scheduled for each registered proxy.
func (m *ProviderManager) SetValidateOnLoad(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validateOnLoad = enabled && m.validator != nil
}

func (m *ProviderManager) Register(adapter ProviderAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters = append(m.adapters, adapter)
}

func (m *ProviderManager) ProviderNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.adapters))
	for _, a := range m.adapters {
		names = append(names, a.GetProviderName())
	}
	return names
}

// LoadProxies runs every adapter and returns how many proxies were registered.
// No adapter failure is fatal. When nothing was registered and the pool is empty
// the development fallback is added.
func (m *ProviderManager) LoadProxies(ctx context.Context) int {
	m.mu.RLock()
	adapters := append([]ProviderAdapter{}, m.adapters...)
	m.mu.RUnlock()

	loaded := 0
	for _, adapter := range adapters {
		loaded += m.loadFrom(ctx, adapter, true)
	}

	if m.pool.Count() == 0 && m.fallback != nil {
		m.logger.Warn("No proxies loaded from providers, registering development default")
		loaded += m.loadFrom(ctx, m.fallback, false)
	}

	m.logger.WithField("count", loaded).Info("Proxies loaded")
	m.pool.bus.Publish(models.Event{Type: models.EventProxiesLoaded, Count: loaded})
	return loaded
}

func (m *ProviderManager) loadFrom(ctx context.Context, adapter ProviderAdapter, validate bool) (loaded int) {
	name := adapter.GetProviderName()
	log := m.logger.WithField("provider", name)

	candidates, err := m.fetch(ctx, adapter)
	if err != nil {
		RecordLoadError(name)
		log.WithError(err).Error("Failed to load proxies from provider")
		return 0
	}

	for _, candidate := range candidates {
		if err := adapter.ValidateProxy(candidate); err != nil {
			log.WithError(err).WithField("host", candidate.Host).Warn("Skipping invalid proxy candidate")
			continue
		}

		id := m.pool.AddProxy(ctx, candidate.ToInput(name))
		loaded++

		if validate {
			m.scheduleValidation(ctx, id)
		}
	}

	if loaded > 0 {
		log.WithField("count", loaded).Info("Loaded proxies from provider")
	}
	return loaded
}

// fetch isolates adapter panics so one broken provider cannot stop the sequence.
func (m *ProviderManager) fetch(ctx context.Context, adapter ProviderAdapter) (candidates []models.ProxyCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return adapter.GetProxies(ctx)
}

func (m *ProviderManager) scheduleValidation(ctx context.Context, id string) {
	m.mu.RLock()
	enabled := m.validateOnLoad
	m.mu.RUnlock()
	if !enabled {
		return
	}

	m.validating.Add(1)
	go func() {
		defer m.validating.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.WithField("proxy_id", id).Errorf("Proxy validation panicked: %v", r)
			}
		}()
		m.validator.ValidateProxyAsync(context.WithoutCancel(ctx), id)
	}()
}

// WaitForValidations blocks until every scheduled validation has finished.
func (m *ProviderManager) WaitForValidations() {
	m.validating.Wait()
}
