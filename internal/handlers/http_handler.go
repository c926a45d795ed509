package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/jobswipe/proxy-rotator/internal/models"
	"github.com/jobswipe/proxy-rotator/internal/service"
	"github.com/jobswipe/proxy-rotator/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthHistory is implemented by stores that can list checks for a single proxy.
type HealthHistory interface {
	GetProxyHistory(ctx context.Context, proxyID string, limit int) ([]models.HealthCheck, error)
}

type HTTPHandler struct {
	rotator *service.ProxyRotator
	history HealthHistory
	auth    *middleware.AuthMiddleware
	logger  *logrus.Logger
}

func NewHTTPHandler(rotator *service.ProxyRotator, history HealthHistory, auth *middleware.AuthMiddleware, logger *logrus.Logger) *HTTPHandler {
	return &HTTPHandler{
		rotator: rotator,
		history: history,
		auth:    auth,
		logger:  logger,
	}
}

func (h *HTTPHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.HealthCheck)

	// Every API route hands out or mutates proxy credentials.
	api := router.Group("/api/v1")
	api.Use(h.auth.Authenticate())

	proxies := api.Group("/proxies")
	{
		proxies.GET("", h.ListProxies)
		proxies.GET("/:id", h.GetProxy)
		proxies.POST("", h.AddProxy)
		proxies.PUT("/:id", h.UpdateProxy)
		proxies.DELETE("/:id", h.RemoveProxy)
		proxies.POST("/next", h.NextProxy)
		proxies.POST("/:id/report", h.ReportHealth)
		proxies.POST("/:id/validate", h.ValidateProxy)

		if h.history != nil {
			proxies.GET("/:id/health", h.GetProxyHealth)
		}
	}

	api.POST("/health-checks/sweep", h.RunSweep)
	api.GET("/stats", h.GetStats)
	api.GET("/providers", h.GetProviders)
}

func (h *HTTPHandler) ListProxies(c *gin.Context) {
	proxies := h.rotator.Pool.GetAllProxies()
	c.JSON(http.StatusOK, gin.H{
		"proxies": proxies,
		"count":   len(proxies),
	})
}

func (h *HTTPHandler) GetProxy(c *gin.Context) {
	proxy, ok := h.rotator.Pool.GetProxy(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrProxyNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, proxy)
}

func (h *HTTPHandler) AddProxy(c *gin.Context) {
	var input models.ProxyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.logger.WithError(err).Error("Failed to bind request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := h.rotator.Pool.AddProxy(c.Request.Context(), input)
	proxy, _ := h.rotator.Pool.GetProxy(id)
	c.JSON(http.StatusCreated, proxy)
}

func (h *HTTPHandler) UpdateProxy(c *gin.Context) {
	var update models.ProxyUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.WithError(err).Error("Failed to bind request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if !h.rotator.Pool.UpdateProxy(c.Request.Context(), id, update) {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrProxyNotFound.Error()})
		return
	}

	proxy, _ := h.rotator.Pool.GetProxy(id)
	c.JSON(http.StatusOK, proxy)
}

func (h *HTTPHandler) RemoveProxy(c *gin.Context) {
	if !h.rotator.Pool.RemoveProxy(c.Request.Context(), c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrProxyNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// NextProxy hands out a proxy. Query: country, type, provider, tag, strategy=random.
func (h *HTTPHandler) NextProxy(c *gin.Context) {
	var filter models.SelectionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var proxy *models.ProxyConfig
	if c.Query("strategy") == "random" {
		proxy = h.rotator.Pool.GetRandomProxy(c.Request.Context(), filter)
	} else {
		proxy = h.rotator.Pool.GetNextProxyWhere(c.Request.Context(), filter)
	}

	if proxy == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": models.ErrNoProxiesAvailable.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"proxy": proxy,
		"url":   proxy.URL().String(),
	})
}

type healthReportRequest struct {
	Success        *bool    `json:"success" binding:"required"`
	ResponseTimeMs *float64 `json:"response_time_ms"`
	Error          string   `json:"error"`
}

func (h *HTTPHandler) ReportHealth(c *gin.Context) {
	var request healthReportRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	known := h.rotator.ReportProxyHealth(c.Request.Context(), models.HealthReport{
		ProxyID:      c.Param("id"),
		Success:      *request.Success,
		ResponseTime: request.ResponseTimeMs,
		Error:        request.Error,
		Source:       models.SourceTraffic,
	})
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrProxyNotFound.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (h *HTTPHandler) ValidateProxy(c *gin.Context) {
	result, err := h.rotator.ValidateNow(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrProxyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) GetProxyHealth(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	checks, err := h.history.GetProxyHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get proxy health history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get proxy health history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"checks": checks})
}

func (h *HTTPHandler) RunSweep(c *gin.Context) {
	succeeded, failed := h.rotator.Monitor.RunSweep(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"succeeded": succeeded,
		"failed":    failed,
	})
}

func (h *HTTPHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.rotator.Pool.GetUsageStats(c.Request.Context()))
}

func (h *HTTPHandler) GetProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.rotator.Providers.ProviderNames()})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "proxy-rotator",
		"proxies": h.rotator.Pool.Count(),
	})
}
