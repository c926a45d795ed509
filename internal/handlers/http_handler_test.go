package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"
	"github.com/jobswipe/proxy-rotator/internal/service"
	"github.com/jobswipe/proxy-rotator/pkg/logger"
	"github.com/jobswipe/proxy-rotator/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const testSecret = "handler-test-secret"

type MockHealthHistory struct {
	mock.Mock
}

func (m *MockHealthHistory) GetProxyHistory(ctx context.Context, proxyID string, limit int) ([]models.HealthCheck, error) {
	args := m.Called(ctx, proxyID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HealthCheck), args.Error(1)
}

type HTTPHandlerTestSuite struct {
	suite.Suite
	router  *gin.Engine
	rotator *service.ProxyRotator
	history *MockHealthHistory
	token   string
}

func (s *HTTPHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.rotator = service.NewProxyRotator(service.RotatorConfig{}, nil, nil, logger.Discard())
	s.history = new(MockHealthHistory)
	auth := middleware.NewAuthMiddleware(testSecret)

	token, err := auth.GenerateToken("ops", "admin", time.Hour)
	s.Require().NoError(err)
	s.token = token

	s.router = gin.New()
	NewHTTPHandler(s.rotator, s.history, auth, logger.Discard()).SetupRoutes(s.router)
}

func TestHTTPHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HTTPHandlerTestSuite))
}

func (s *HTTPHandlerTestSuite) do(method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HTTPHandlerTestSuite) decode(w *httptest.ResponseRecorder, v interface{}) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

func (s *HTTPHandlerTestSuite) addProxy(in models.ProxyInput) string {
	return s.rotator.Pool.AddProxy(context.Background(), in)
}

func (s *HTTPHandlerTestSuite) TestHealthCheck() {
	s.addProxy(models.ProxyInput{Host: "10.0.0.1", Port: 80})

	w := s.do(http.MethodGet, "/health", nil, false)
	s.Equal(http.StatusOK, w.Code)

	var body map[string]interface{}
	s.decode(w, &body)
	s.Equal("healthy", body["status"])
	s.Equal(float64(1), body["proxies"])
}

func (s *HTTPHandlerTestSuite) TestListAndGetProxy() {
	id := s.addProxy(models.ProxyInput{Host: "10.0.0.1", Port: 80, Country: "US"})

	w := s.do(http.MethodGet, "/api/v1/proxies", nil, true)
	s.Equal(http.StatusOK, w.Code)
	var list struct {
		Proxies []models.ProxyConfig `json:"proxies"`
		Count   int                  `json:"count"`
	}
	s.decode(w, &list)
	s.Equal(1, list.Count)
	s.Equal(id, list.Proxies[0].ID)

	w = s.do(http.MethodGet, "/api/v1/proxies/"+id, nil, true)
	s.Equal(http.StatusOK, w.Code)
	var cfg models.ProxyConfig
	s.decode(w, &cfg)
	s.Equal("US", cfg.Country)

	w = s.do(http.MethodGet, "/api/v1/proxies/missing", nil, true)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPHandlerTestSuite) TestNextProxy() {
	s.addProxy(models.ProxyInput{Host: "10.0.0.1", Port: 80, Country: "US", Username: "u", Password: "p"})

	w := s.do(http.MethodPost, "/api/v1/proxies/next?country=US", nil, true)
	s.Equal(http.StatusOK, w.Code)

	var body struct {
		Proxy models.ProxyConfig `json:"proxy"`
		URL   string             `json:"url"`
	}
	s.decode(w, &body)
	s.Equal("http://u:p@10.0.0.1:80", body.URL)
	s.Equal(1, body.Proxy.CurrentHourlyUsage)

	w = s.do(http.MethodPost, "/api/v1/proxies/next?country=DE", nil, true)
	s.Equal(http.StatusServiceUnavailable, w.Code)

	w = s.do(http.MethodPost, "/api/v1/proxies/next?strategy=random", nil, true)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/v1/proxies/next?country=DE&strategy=random", nil, true)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *HTTPHandlerTestSuite) TestReportHealth() {
	id := s.addProxy(models.ProxyInput{Host: "10.0.0.1", Port: 80})

	w := s.do(http.MethodPost, "/api/v1/proxies/"+id+"/report", map[string]interface{}{
		"success":          false,
		"response_time_ms": 1200,
		"error":            "timeout",
	}, false)
	s.Equal(http.StatusAccepted, w.Code)

	cfg, _ := s.rotator.Pool.GetProxy(id)
	s.Equal(1, cfg.FailureCount)

	w = s.do(http.MethodPost, "/api/v1/proxies/"+id+"/report", map[string]interface{}{}, true)
	s.Equal(http.StatusBadRequest, w.Code, "success is required")

	w = s.do(http.MethodPost, "/api/v1/proxies/missing/report", map[string]interface{}{"success": true}, true)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPHandlerTestSuite) TestAPIRoutesRequireToken() {
	id := s.addProxy(models.ProxyInput{Host: "10.0.0.1", Port: 80, Username: "u", Password: "secret-pass"})

	routes := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, "/api/v1/proxies", nil},
		{http.MethodGet, "/api/v1/proxies/" + id, nil},
		{http.MethodPost, "/api/v1/proxies/next", nil},
		{http.MethodPost, "/api/v1/proxies/next?strategy=random", nil},
		{http.MethodPost, "/api/v1/proxies/" + id + "/report", map[string]interface{}{"success": false}},
		{http.MethodPost, "/api/v1/proxies", models.ProxyInput{Host: "10.0.0.2", Port: 80}},
		{http.MethodPut, "/api/v1/proxies/" + id, map[string]interface{}{"is_active": false}},
		{http.MethodDelete, "/api/v1/proxies/" + id, nil},
		{http.MethodPost, "/api/v1/proxies/" + id + "/validate", nil},
		{http.MethodGet, "/api/v1/proxies/" + id + "/health", nil},
		{http.MethodPost, "/api/v1/health-checks/sweep", nil},
		{http.MethodGet, "/api/v1/stats", nil},
		{http.MethodGet, "/api/v1/providers", nil},
	}

	for _, r := range routes {
		w := s.do(r.method, r.path, r.body, false)
		s.Equal(http.StatusUnauthorized, w.Code, "%s %s", r.method, r.path)
		s.NotContains(w.Body.String(), "secret-pass")
	}

	for i := 0; i < 10; i++ {
		s.do(http.MethodPost, "/api/v1/proxies/"+id+"/report", map[string]interface{}{"success": false}, false)
	}

	cfg, ok := s.rotator.Pool.GetProxy(id)
	s.Require().True(ok)
	s.True(cfg.IsActive)
	s.Zero(cfg.FailureCount)
	s.Zero(cfg.CurrentHourlyUsage)
	s.Equal(1, s.rotator.Pool.Count())
}

func (s *HTTPHandlerTestSuite) TestAddUpdateRemove() {
	w := s.do(http.MethodPost, "/api/v1/proxies", models.ProxyInput{Host: "10.0.0.1", Port: 3128, Provider: "manual"}, true)
	s.Require().Equal(http.StatusCreated, w.Code)

	var created models.ProxyConfig
	s.decode(w, &created)
	s.NotEmpty(created.ID)
	s.True(created.IsActive)

	w = s.do(http.MethodPut, "/api/v1/proxies/"+created.ID, map[string]interface{}{
		"requests_per_hour": 5,
		"country":           "NL",
	}, true)
	s.Equal(http.StatusOK, w.Code)
	var updated models.ProxyConfig
	s.decode(w, &updated)
	s.Equal(5, updated.RequestsPerHour)
	s.Equal("NL", updated.Country)

	w = s.do(http.MethodPut, "/api/v1/proxies/missing", map[string]interface{}{"country": "NL"}, true)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/proxies/"+created.ID, nil, true)
	s.Equal(http.StatusOK, w.Code)
	w = s.do(http.MethodDelete, "/api/v1/proxies/"+created.ID, nil, true)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPHandlerTestSuite) TestAddProxyValidation() {
	w := s.do(http.MethodPost, "/api/v1/proxies", map[string]interface{}{"host": "10.0.0.1", "port": 70000}, true)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/proxies", map[string]interface{}{"port": 80}, true)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HTTPHandlerTestSuite) TestValidateUnknownProxy() {
	w := s.do(http.MethodPost, "/api/v1/proxies/missing/validate", nil, true)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HTTPHandlerTestSuite) TestSweepEmptyPool() {
	w := s.do(http.MethodPost, "/api/v1/health-checks/sweep", nil, true)
	s.Equal(http.StatusOK, w.Code)

	var body map[string]int
	s.decode(w, &body)
	s.Equal(0, body["succeeded"])
	s.Equal(0, body["failed"])
}

func (s *HTTPHandlerTestSuite) TestStats() {
	id := s.addProxy(models.ProxyInput{Host: "10.0.0.1", Port: 80, Provider: "oxylabs"})
	s.rotator.ReportProxyHealth(context.Background(), models.HealthReport{ProxyID: id, Success: true})

	w := s.do(http.MethodGet, "/api/v1/stats", nil, true)
	s.Equal(http.StatusOK, w.Code)

	var stats models.UsageStats
	s.decode(w, &stats)
	s.Equal(1, stats.TotalProxies)
	s.Equal(int64(1), stats.TotalRequests)
	s.Contains(stats.ProxiesByProvider, "oxylabs")
}

func (s *HTTPHandlerTestSuite) TestProviders() {
	w := s.do(http.MethodGet, "/api/v1/providers", nil, true)
	s.Equal(http.StatusOK, w.Code)

	var body map[string][]string
	s.decode(w, &body)
	s.Empty(body["providers"])
}

func (s *HTTPHandlerTestSuite) TestProxyHealthHistory() {
	checks := []models.HealthCheck{{ProxyID: "p1", Success: false, Error: "reset"}}
	s.history.On("GetProxyHistory", mock.Anything, "p1", 5).Return(checks, nil).Once()
	s.history.On("GetProxyHistory", mock.Anything, "p2", 20).Return(nil, errors.New("db down")).Once()

	w := s.do(http.MethodGet, "/api/v1/proxies/p1/health?limit=5", nil, true)
	s.Equal(http.StatusOK, w.Code)
	var body struct {
		Checks []models.HealthCheck `json:"checks"`
	}
	s.decode(w, &body)
	s.Require().Len(body.Checks, 1)
	s.Equal("reset", body.Checks[0].Error)

	w = s.do(http.MethodGet, "/api/v1/proxies/p2/health", nil, true)
	s.Equal(http.StatusInternalServerError, w.Code)

	w = s.do(http.MethodGet, "/api/v1/proxies/p1/health?limit=abc", nil, true)
	s.Equal(http.StatusBadRequest, w.Code)

	s.history.AssertExpectations(s.T())
}
