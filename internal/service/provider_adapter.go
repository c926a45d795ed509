package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ProviderAdapter supplies candidate proxies from one source.
type ProviderAdapter interface {
	GetProviderName() string
	GetProxies(ctx context.Context) ([]models.ProxyCandidate, error)
	ValidateProxy(candidate models.ProxyCandidate) error
}

var candidateValidator = validator.New()

// schemaCheck gives every adapter the same candidate validation.
type schemaCheck struct{}

func (schemaCheck) ValidateProxy(candidate models.ProxyCandidate) error {
	candidate.Host = models.StripScheme(candidate.Host)
	if err := candidateValidator.Struct(candidate); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidCandidate, err)
	}
	return nil
}

// EnvProviderAdapter reads one external provider's gateway settings from the environment,
// e.g. BRIGHTDATA_HOST and BRIGHTDATA_PORT for the "brightdata" provider.
type EnvProviderAdapter struct {
	schemaCheck
	name   string
	logger *logrus.Logger
}

func NewEnvProviderAdapter(name string, logger *logrus.Logger) *EnvProviderAdapter {
	return &EnvProviderAdapter{name: name, logger: logger}
}

func (a *EnvProviderAdapter) GetProviderName() string {
	return a.name
}

func (a *EnvProviderAdapter) GetProxies(ctx context.Context) ([]models.ProxyCandidate, error) {
	var settings models.EnvProviderSettings
	if err := envconfig.Process(strings.ToUpper(a.name), &settings); err != nil {
		return nil, fmt.Errorf("failed to read %s settings: %w", a.name, err)
	}

	if !settings.Configured() {
		a.logger.WithField("provider", a.name).Debug("Provider not configured, skipping")
		return nil, nil
	}

	sessions := max(1, settings.Sessions)
	candidates := make([]models.ProxyCandidate, 0, sessions)

	for i := 1; i <= sessions; i++ {
		c := models.ProxyCandidate{
			Host:            settings.Host,
			Port:            settings.Port,
			Protocol:        models.ProxyProtocol(strings.ToLower(settings.Protocol)),
			Username:        settings.Username,
			Password:        settings.Password,
			Type:            settings.Type,
			Country:         strings.ToUpper(settings.Country),
			Tags:            []string{a.name},
			RequestsPerHour: settings.RequestsPerHour,
			DailyLimit:      settings.DailyLimit,
			MonthlyLimit:    settings.MonthlyLimit,
		}
		if settings.CostPerRequest > 0 {
			c.CostPerRequest = models.Float64(settings.CostPerRequest)
		}
		if sessions > 1 && c.Username != "" {
			c.Username = fmt.Sprintf("%s-session-%d", settings.Username, i)
			c.Tags = append(c.Tags, "sticky")
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// CustomProviderAdapter serves an operator-maintained static list.
type CustomProviderAdapter struct {
	schemaCheck
	raw    string
	static []models.ProxyCandidate
	logger *logrus.Logger
}

// NewCustomProviderAdapter takes the CUSTOM_PROXIES string ("host:port[:user:pass]",
// comma or newline separated) and any entries from the provider file.
func NewCustomProviderAdapter(raw string, static []models.ProxyCandidate, logger *logrus.Logger) *CustomProviderAdapter {
	return &CustomProviderAdapter{raw: raw, static: static, logger: logger}
}

func (a *CustomProviderAdapter) GetProviderName() string {
	return "custom"
}

func (a *CustomProviderAdapter) GetProxies(ctx context.Context) ([]models.ProxyCandidate, error) {
	candidates := make([]models.ProxyCandidate, 0, len(a.static))
	candidates = append(candidates, a.static...)

	entries := strings.FieldsFunc(a.raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		c, err := parseProxyEntry(entry)
		if err != nil {
			a.logger.WithError(err).WithField("entry", entry).Warn("Skipping malformed custom proxy entry")
			continue
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// parseProxyEntry accepts "[scheme://]host:port[:user:pass]". A non-numeric port is left at
// zero so the schema check rejects it.
func parseProxyEntry(entry string) (models.ProxyCandidate, error) {
	var c models.ProxyCandidate

	if i := strings.Index(entry, "://"); i >= 0 {
		c.Protocol = models.ProxyProtocol(strings.ToLower(entry[:i]))
		entry = entry[i+3:]
	}

	parts := strings.Split(entry, ":")
	if len(parts) != 2 && len(parts) != 4 {
		return c, fmt.Errorf("expected host:port or host:port:user:pass, got %d fields", len(parts))
	}

	c.Host = parts[0]
	c.Port, _ = strconv.Atoi(parts[1])
	if len(parts) == 4 {
		c.Username = parts[2]
		c.Password = parts[3]
	}
	return c, nil
}

// DevelopmentProviderAdapter yields the single local proxy used when nothing else loaded.
type DevelopmentProviderAdapter struct {
	schemaCheck
	host string
	port int
}

func NewDevelopmentProviderAdapter(host string, port int) *DevelopmentProviderAdapter {
	if host == "" {
		host = "127.0.0.1"
	}
	if port <= 0 {
		port = 8080
	}
	return &DevelopmentProviderAdapter{host: host, port: port}
}

func (a *DevelopmentProviderAdapter) GetProviderName() string {
	return "development"
}

func (a *DevelopmentProviderAdapter) GetProxies(ctx context.Context) ([]models.ProxyCandidate, error) {
	return []models.ProxyCandidate{{
		Host:     a.host,
		Port:     a.port,
		Protocol: models.ProtocolHTTP,
		Type:     models.ProxyTypeDatacenter,
		Tags:     []string{"development"},
		Notes:    "local default proxy",
	}}, nil
}

// HTTPProviderAdapter pulls a proxy list from a provider's REST API.
type HTTPProviderAdapter struct {
	schemaCheck
	provider   models.HTTPProvider
	client     *http.Client
	logger     *logrus.Logger
	maxRetries int
	backoff    time.Duration
}

func NewHTTPProviderAdapter(provider models.HTTPProvider, logger *logrus.Logger) *HTTPProviderAdapter {
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &HTTPProviderAdapter{
		provider:   provider,
		client:     client,
		logger:     logger,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

func (a *HTTPProviderAdapter) GetProviderName() string {
	return a.provider.Name
}

func (a *HTTPProviderAdapter) GetProxies(ctx context.Context) ([]models.ProxyCandidate, error) {
	if a.provider.ListPath == "" {
		return nil, errors.New("list endpoint not configured for this provider")
	}

	body, err := a.makeRequest(ctx, http.MethodGet, a.provider.ListPath)
	if err != nil {
		a.logger.WithError(err).WithField("provider", a.provider.Name).Error("Failed to list proxies from provider")
		return nil, err
	}

	var listed []models.ProviderProxy
	if err := json.Unmarshal(body, &listed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proxy list response: %w", err)
	}

	candidates := make([]models.ProxyCandidate, 0, len(listed))
	for _, p := range listed {
		c := models.ProxyCandidate{
			Host:            p.IP,
			Port:            p.Port,
			Protocol:        p.Protocol,
			Username:        p.Username,
			Password:        p.Password,
			Type:            a.provider.Type,
			Country:         strings.ToUpper(p.Country),
			Region:          p.City,
			Tags:            []string{a.provider.Name},
			RequestsPerHour: a.provider.Defaults.RequestsPerHour,
			DailyLimit:      a.provider.Defaults.DailyLimit,
			CostPerRequest:  a.provider.Defaults.CostPerRequest,
		}
		if c.Country == "" {
			c.Country = strings.ToUpper(a.provider.Country)
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

func (a *HTTPProviderAdapter) makeRequest(ctx context.Context, method, endpoint string) ([]byte, error) {
	url := strings.TrimSuffix(a.provider.BaseURL, "/") + endpoint

	var lastErr error
	for i := 0; i < a.maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(i) * a.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, err
		}
		a.authorize(req)
		req.Header.Set("Accept", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		responseBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return responseBody, nil
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %d - %s", resp.StatusCode, string(responseBody))
			continue
		}

		return nil, fmt.Errorf("request failed: %d - %s", resp.StatusCode, string(responseBody))
	}

	return nil, lastErr
}

func (a *HTTPProviderAdapter) authorize(req *http.Request) {
	switch a.provider.AuthType {
	case models.AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+a.provider.AuthKey)
	case models.AuthTypeBasic:
		parts := strings.SplitN(a.provider.AuthKey, ":", 2)
		if len(parts) == 2 {
			req.SetBasicAuth(parts[0], parts[1])
		}
	case models.AuthTypeAPIKey:
		req.Header.Set("X-API-Key", a.provider.AuthKey)
	}
}

// LoadProviderFile reads the provider YAML file, expanding ${VAR} references first.
func LoadProviderFile(path string) (*models.ProviderFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	var file models.ProviderFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse provider file %s: %w", path, err)
	}

	return &file, nil
}
