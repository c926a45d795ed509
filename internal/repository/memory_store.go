package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"
)

// MemoryHealthStore retains only the newest failures, bounded by capacity.
type MemoryHealthStore struct {
	mu       sync.RWMutex
	failures []models.HealthCheck
	capacity int
}

func NewMemoryHealthStore(capacity int) *MemoryHealthStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryHealthStore{capacity: capacity}
}

func (m *MemoryHealthStore) SaveHealthCheck(ctx context.Context, check *models.HealthCheck) error {
	if check.Success {
		return nil
	}

	c := *check
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures = append(m.failures, c)
	if over := len(m.failures) - m.capacity; over > 0 {
		m.failures = append([]models.HealthCheck(nil), m.failures[over:]...)
	}
	return nil
}

// GetRecentFailures returns failures newest first.
func (m *MemoryHealthStore) GetRecentFailures(ctx context.Context, limit int) ([]models.HealthCheck, error) {
	if limit <= 0 {
		return []models.HealthCheck{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.HealthCheck, 0, min(limit, len(m.failures)))
	for i := len(m.failures) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.failures[i])
	}
	return out, nil
}
