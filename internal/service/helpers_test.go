package service

import (
	"context"
	"sync"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"
	"github.com/jobswipe/proxy-rotator/pkg/logger"

	"github.com/stretchr/testify/mock"
)

type MockHealthStore struct {
	mock.Mock
}

func (m *MockHealthStore) SaveHealthCheck(ctx context.Context, check *models.HealthCheck) error {
	args := m.Called(ctx, check)
	return args.Error(0)
}

func (m *MockHealthStore) GetRecentFailures(ctx context.Context, limit int) ([]models.HealthCheck, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HealthCheck), args.Error(1)
}

// eventRecorder collects everything published on a bus.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) handle(e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) count(t models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(t models.EventType) (models.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return models.Event{}, false
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// fakeClock advances only when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestPool wires a pool to a recorder so tests can assert on emitted events.
func newTestPool(opts ...PoolOption) (*ProxyPool, *eventRecorder) {
	log := logger.Discard()
	bus := NewEventBus(log)
	rec := &eventRecorder{}
	bus.Subscribe(rec.handle)
	return NewProxyPool(bus, log, opts...), rec
}
