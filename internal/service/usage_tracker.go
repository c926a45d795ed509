package service

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultUsageResetInterval = time.Hour

// UsageTracker zeroes hourly and daily usage counters on their own cadences.
type UsageTracker struct {
	pool        *ProxyPool
	logger      *logrus.Logger
	hourlyEvery time.Duration
	now         func() time.Time
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewUsageTracker(pool *ProxyPool, logger *logrus.Logger, hourlyEvery time.Duration) *UsageTracker {
	if hourlyEvery <= 0 {
		hourlyEvery = DefaultUsageResetInterval
	}
	return &UsageTracker{
		pool:        pool,
		logger:      logger,
		hourlyEvery: hourlyEvery,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

func (u *UsageTracker) Start() {
	u.wg.Add(2)
	go func() {
		defer u.wg.Done()
		u.runHourly()
	}()
	go func() {
		defer u.wg.Done()
		u.runDaily()
	}()
}

// Stop cancels both reset loops. Safe to call repeatedly.
func (u *UsageTracker) Stop() {
	u.stopOnce.Do(func() {
		close(u.stopChan)
	})
	u.wg.Wait()
}

func (u *UsageTracker) runHourly() {
	ticker := time.NewTicker(u.hourlyEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := u.pool.ResetHourlyUsage()
			u.logger.WithField("proxies", n).Info("Reset hourly proxy usage")
		case <-u.stopChan:
			return
		}
	}
}

func (u *UsageTracker) runDaily() {
	timer := time.NewTimer(nextMidnight(u.now()).Sub(u.now()))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			n := u.pool.ResetDailyUsage()
			u.logger.WithField("proxies", n).Info("Reset daily proxy usage")
			timer.Reset(24 * time.Hour)
		case <-u.stopChan:
			return
		}
	}
}

// nextMidnight returns the start of the next local day after t.
func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
