package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type HealthTestSuite struct {
	suite.Suite
	ctx    context.Context
	clock  *fakeClock
	store  *MockHealthStore
	pool   *ProxyPool
	events *eventRecorder
}

func (s *HealthTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newFakeClock()
	s.store = new(MockHealthStore)
	s.pool, s.events = newTestPool(WithClock(s.clock.Now), WithHealthStore(s.store))
}

func TestHealthTestSuite(t *testing.T) {
	suite.Run(t, new(HealthTestSuite))
}

func (s *HealthTestSuite) add(rate float64) string {
	return s.pool.AddProxy(s.ctx, models.ProxyInput{
		Host:           "10.0.0.1",
		Port:           8080,
		Provider:       "brightdata",
		SuccessRate:    models.Float64(rate),
		CostPerRequest: models.Float64(0.5),
	})
}

func (s *HealthTestSuite) report(id string, ok bool, rt *float64) bool {
	return s.pool.ReportProxyHealth(s.ctx, models.HealthReport{ProxyID: id, Success: ok, ResponseTime: rt})
}

func (s *HealthTestSuite) TestSuccessBlendsRateUpward() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(80)

	s.True(s.report(id, true, nil))

	cfg, _ := s.pool.GetProxy(id)
	s.InDelta(82.0, cfg.SuccessRate, 1e-9)
	s.Nil(cfg.AvgResponseTime)
	s.Require().NotNil(cfg.LastCheckedAt)
	s.Equal(s.clock.Now(), *cfg.LastCheckedAt)
}

func (s *HealthTestSuite) TestFailureDecaysRateAndCountsFailure() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(100)

	s.report(id, false, nil)

	cfg, _ := s.pool.GetProxy(id)
	s.InDelta(90.0, cfg.SuccessRate, 1e-9)
	s.Equal(1, cfg.FailureCount)
	s.True(cfg.IsActive)
}

func (s *HealthTestSuite) TestSuccessForgivesOneFailure() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(100)

	s.report(id, false, nil)
	s.report(id, false, nil)
	s.report(id, true, nil)

	cfg, _ := s.pool.GetProxy(id)
	s.Equal(1, cfg.FailureCount)

	s.report(id, true, nil)
	s.report(id, true, nil)
	cfg, _ = s.pool.GetProxy(id)
	s.Equal(0, cfg.FailureCount)
}

func (s *HealthTestSuite) TestResponseTimeAverage() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(100)

	s.report(id, true, models.Float64(100))
	cfg, _ := s.pool.GetProxy(id)
	s.Require().NotNil(cfg.AvgResponseTime)
	s.InDelta(100.0, *cfg.AvgResponseTime, 1e-9)

	s.report(id, true, models.Float64(200))
	cfg, _ = s.pool.GetProxy(id)
	s.InDelta(120.0, *cfg.AvgResponseTime, 1e-9)

	s.report(id, false, models.Float64(5000))
	cfg, _ = s.pool.GetProxy(id)
	s.InDelta(120.0, *cfg.AvgResponseTime, 1e-9, "failures leave the average alone")
}

func (s *HealthTestSuite) TestTenFailuresDisableOnce() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(100)

	for i := 0; i < 9; i++ {
		s.report(id, false, nil)
	}
	cfg, _ := s.pool.GetProxy(id)
	s.True(cfg.IsActive)
	s.Equal(0, s.events.count(models.EventProxyDisabled))

	s.report(id, false, nil)
	cfg, _ = s.pool.GetProxy(id)
	s.False(cfg.IsActive)
	s.Equal(10, cfg.FailureCount)
	s.Equal(1, s.events.count(models.EventProxyDisabled))

	s.report(id, false, nil)
	s.Equal(1, s.events.count(models.EventProxyDisabled))

	s.Nil(s.pool.GetNextProxy(s.ctx))
}

func (s *HealthTestSuite) TestEventsCarryIndependentCopies() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.MatchedBy(func(c *models.HealthCheck) bool {
		return c.Error == "refused"
	})).Return(nil)
	id := s.add(100)

	for i := 0; i < 9; i++ {
		s.pool.ReportProxyHealth(s.ctx, models.HealthReport{ProxyID: id, Error: "refused"})
	}

	s.pool.bus.Subscribe(func(e models.Event) {
		e.Proxy.IsActive = true
		e.Proxy.FailureCount = 0
		e.Proxy.Tags = append(e.Proxy.Tags, "tampered")
		e.HealthCheck.Error = "tampered"
	}, models.EventProxyHealthReported)

	s.pool.ReportProxyHealth(s.ctx, models.HealthReport{ProxyID: id, Error: "refused"})

	disabled, ok := s.events.last(models.EventProxyDisabled)
	s.Require().True(ok)
	s.False(disabled.Proxy.IsActive)
	s.Equal(10, disabled.Proxy.FailureCount)
	s.NotContains(disabled.Proxy.Tags, "tampered")

	cfg, _ := s.pool.GetProxy(id)
	s.False(cfg.IsActive)
	s.Empty(cfg.Tags)
	s.store.AssertNumberOfCalls(s.T(), "SaveHealthCheck", 10)
}

func (s *HealthTestSuite) TestSuccessDoesNotReactivate() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(100)

	for i := 0; i < 10; i++ {
		s.report(id, false, nil)
	}
	s.report(id, true, nil)

	cfg, _ := s.pool.GetProxy(id)
	s.False(cfg.IsActive)
	s.Equal(9, cfg.FailureCount)
}

func (s *HealthTestSuite) TestRateStaysInBounds() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(100)

	for i := 0; i < 50; i++ {
		s.report(id, true, nil)
		cfg, _ := s.pool.GetProxy(id)
		s.LessOrEqual(cfg.SuccessRate, 100.0)
	}
	for i := 0; i < 200; i++ {
		s.report(id, false, nil)
		cfg, _ := s.pool.GetProxy(id)
		s.GreaterOrEqual(cfg.SuccessRate, 0.0)
	}
}

func (s *HealthTestSuite) TestTotalsAndCost() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(100)

	s.report(id, true, nil)
	s.report(id, false, nil)
	s.report(id, true, nil)

	totals := s.pool.totals()
	s.Equal(int64(3), totals.TotalRequests)
	s.Equal(int64(1), totals.FailedRequests)
	s.InDelta(1.5, totals.TotalCost, 1e-9)
}

func (s *HealthTestSuite) TestUnknownIDIsIgnored() {
	s.False(s.report("missing", true, nil))

	s.Equal(int64(0), s.pool.totals().TotalRequests)
	s.Equal(0, s.events.count(models.EventProxyHealthReported))
	s.store.AssertNotCalled(s.T(), "SaveHealthCheck", mock.Anything, mock.Anything)
}

func (s *HealthTestSuite) TestPersistsHealthCheck() {
	id := s.add(100)
	s.store.On("SaveHealthCheck", mock.Anything, mock.MatchedBy(func(c *models.HealthCheck) bool {
		return c.ProxyID == id &&
			!c.Success &&
			c.Error == "timeout" &&
			c.Source == models.SourceTraffic &&
			c.Provider == "brightdata" &&
			c.Timestamp.Equal(s.clock.Now())
	})).Return(nil).Once()

	s.pool.ReportProxyHealth(s.ctx, models.HealthReport{ProxyID: id, Error: "timeout"})

	s.store.AssertExpectations(s.T())
	evt, ok := s.events.last(models.EventProxyHealthReported)
	s.Require().True(ok)
	s.Require().NotNil(evt.HealthCheck)
	s.Equal("timeout", evt.HealthCheck.Error)
}

func (s *HealthTestSuite) TestStoreErrorIsSwallowed() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	id := s.add(100)

	s.True(s.report(id, false, nil))

	cfg, _ := s.pool.GetProxy(id)
	s.Equal(1, cfg.FailureCount)
}

func (s *HealthTestSuite) TestPersistSurvivesCancelledContext() {
	s.store.On("SaveHealthCheck", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil).Once()
	id := s.add(100)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.pool.ReportProxyHealth(ctx, models.HealthReport{ProxyID: id, Success: true})

	s.store.AssertExpectations(s.T())
}

func (s *HealthTestSuite) TestApplyValidation_Success() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(80)

	s.True(s.pool.ApplyValidation(s.ctx, id, models.ValidationResult{IsValid: true, ResponseTime: 250}))

	cfg, _ := s.pool.GetProxy(id)
	s.InDelta(87.5, cfg.SuccessRate, 1e-9)
	s.Require().NotNil(cfg.AvgResponseTime)
	s.Equal(250.0, *cfg.AvgResponseTime)
	s.Equal(int64(0), s.pool.totals().TotalRequests)
	s.Equal(1, s.events.count(models.EventProxyUpdated))
}

func (s *HealthTestSuite) TestApplyValidation_FiveFailuresDisable() {
	s.store.On("SaveHealthCheck", mock.Anything, mock.Anything).Return(nil)
	id := s.add(30)

	for i := 0; i < 4; i++ {
		s.pool.ApplyValidation(s.ctx, id, models.ValidationResult{Error: "refused"})
	}
	cfg, _ := s.pool.GetProxy(id)
	s.True(cfg.IsActive)
	s.InDelta(0.0, cfg.SuccessRate, 1e-9, "penalty floors at zero")

	s.pool.ApplyValidation(s.ctx, id, models.ValidationResult{Error: "refused"})
	cfg, _ = s.pool.GetProxy(id)
	s.False(cfg.IsActive)
	s.Equal(5, cfg.FailureCount)
	s.Equal(1, s.events.count(models.EventProxyDisabled))
}

func (s *HealthTestSuite) TestApplyValidation_PersistsWithValidationSource() {
	id := s.add(100)
	s.store.On("SaveHealthCheck", mock.Anything, mock.MatchedBy(func(c *models.HealthCheck) bool {
		return c.Source == models.SourceValidation && c.Success && *c.ResponseTime == 42
	})).Return(nil).Once()

	s.pool.ApplyValidation(s.ctx, id, models.ValidationResult{IsValid: true, ResponseTime: 42})

	s.store.AssertExpectations(s.T())
}

func (s *HealthTestSuite) TestApplyValidation_Unknown() {
	s.False(s.pool.ApplyValidation(s.ctx, "missing", models.ValidationResult{IsValid: true}))
}

func (s *HealthTestSuite) TestRecentFailures() {
	want := []models.HealthCheck{{ProxyID: "a"}, {ProxyID: "b"}}
	s.store.On("GetRecentFailures", mock.Anything, 10).Return(want, nil).Once()
	s.Equal(want, s.pool.RecentFailures(s.ctx, 10))

	s.store.On("GetRecentFailures", mock.Anything, 5).Return(nil, errors.New("boom")).Once()
	got := s.pool.RecentFailures(s.ctx, 5)
	s.NotNil(got)
	s.Empty(got)
}

func TestRecentFailures_NoStore(t *testing.T) {
	pool, _ := newTestPool()
	got := pool.RecentFailures(context.Background(), 10)
	if got == nil || len(got) != 0 {
		t.Fatalf("RecentFailures() = %v, want empty non-nil slice", got)
	}
}
