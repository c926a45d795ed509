package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jobswipe/proxy-rotator/internal/models"

	"github.com/sirupsen/logrus"
)

const DefaultValidationTimeout = 10 * time.Second

var (
	ipv4Pattern       = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	// Echo services such as ifconfig.me always return these keys; only a non-blank value counts.
	forwardingPattern = regexp.MustCompile(`(?i)"(x-forwarded-for|via|forwarded|x-real-ip|from|client-ip|x-client-ip)"\s*:\s*"\s*[^"\s][^"]*"`)
)

// TransportFactory builds the round tripper used to reach an endpoint through proxyURL.
type TransportFactory func(proxyURL *url.URL) http.RoundTripper

func defaultTransport(proxyURL *url.URL) http.RoundTripper {
	return &http.Transport{
		Proxy: http.ProxyURL(proxyURL),
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 5 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		DisableKeepAlives:   true,
	}
}

// Validator probes proxies against public IP-echo endpoints.
type Validator struct {
	pool      *ProxyPool
	endpoints []string
	timeout   time.Duration
	transport TransportFactory
	logger    *logrus.Logger
	pick      func(n int) int
}

type ValidatorOption func(*Validator)

func WithEndpoints(endpoints ...string) ValidatorOption {
	return func(v *Validator) {
		if len(endpoints) > 0 {
			v.endpoints = endpoints
		}
	}
}

func WithValidationTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

func WithTransportFactory(f TransportFactory) ValidatorOption {
	return func(v *Validator) { v.transport = f }
}

func NewValidator(pool *ProxyPool, logger *logrus.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		pool: pool,
		endpoints: []string{
			"https://api.ipify.org?format=json",
			"https://httpbin.org/ip",
			"https://ifconfig.me/all.json",
			"https://ipinfo.io/json",
		},
		timeout:   DefaultValidationTimeout,
		transport: defaultTransport,
		logger:    logger,
		pick:      rand.Intn,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateProxy performs one GET through cfg against a random echo endpoint.
func (v *Validator) ValidateProxy(ctx context.Context, cfg *models.ProxyConfig) models.ValidationResult {
	start := time.Now()
	body, err := v.probe(ctx, cfg)
	elapsed := time.Since(start)
	if elapsed > v.timeout {
		elapsed = v.timeout
	}

	result := models.ValidationResult{ResponseTime: float64(elapsed.Milliseconds())}
	RecordValidationDuration(statusLabel(err == nil), elapsed.Seconds())

	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.IsValid = true
	result.IPAddress = extractIP(body)
	result.AnonymityLevel = classifyAnonymity(body)
	return result
}

// ValidateProxyAsync validates a registered proxy and applies the outcome to the pool.
func (v *Validator) ValidateProxyAsync(ctx context.Context, id string) {
	cfg, ok := v.pool.GetProxy(id)
	if !ok {
		v.logger.WithField("proxy_id", id).Warn("Validation requested for unknown proxy")
		return
	}

	result := v.ValidateProxy(ctx, cfg)
	if !result.IsValid {
		v.logger.WithFields(logrus.Fields{
			"proxy_id": id,
			"address":  cfg.Address(),
			"error":    result.Error,
		}).Warn("Proxy validation failed")
	}
	v.pool.ApplyValidation(ctx, id, result)
}

// CheckConnectivity is the lightweight probe used by health sweeps.
func (v *Validator) CheckConnectivity(ctx context.Context, cfg *models.ProxyConfig) (time.Duration, error) {
	start := time.Now()
	_, err := v.probe(ctx, cfg)
	return time.Since(start), err
}

func (v *Validator) probe(ctx context.Context, cfg *models.ProxyConfig) ([]byte, error) {
	if len(v.endpoints) == 0 {
		return nil, errors.New("no ip check endpoints configured")
	}
	endpoint := v.endpoints[v.pick(len(v.endpoints))]

	client := &http.Client{
		Timeout:   v.timeout,
		Transport: v.transport(cfg.URL()),
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request via %s failed: %w", cfg.Address(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	return body, nil
}

// extractIP reads the first address from the usual echo keys, falling back to any IPv4 in the body.
// It returns "" when the body carries no address.
func extractIP(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"ip", "origin", "ip_addr", "query"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return strings.TrimSpace(strings.Split(s, ",")[0])
			}
		}
	}

	if m := ipv4Pattern.Find(body); m != nil {
		return string(m)
	}
	return ""
}

// classifyAnonymity is a heuristic: forwarding headers echoed back mean the target saw a proxy,
// and more than one distinct address means it also saw the caller.
func classifyAnonymity(body []byte) models.AnonymityLevel {
	ips := make(map[string]struct{})
	for _, m := range ipv4Pattern.FindAll(body, -1) {
		ips[string(m)] = struct{}{}
	}

	if forwardingPattern.Match(body) {
		if len(ips) > 1 {
			return models.AnonymityTransparent
		}
		return models.AnonymityAnonymous
	}
	if len(ips) > 1 {
		return models.AnonymityTransparent
	}
	return models.AnonymityElite
}
