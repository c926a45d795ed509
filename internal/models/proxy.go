package models

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type ProxyType string

const (
	ProxyTypeResidential ProxyType = "residential"
	ProxyTypeDatacenter  ProxyType = "datacenter"
	ProxyTypeMobile      ProxyType = "mobile"
	ProxyTypeStatic      ProxyType = "static"
	ProxyTypeRotating    ProxyType = "rotating"
)

type ProxyProtocol string

const (
	ProtocolHTTP   ProxyProtocol = "http"
	ProtocolHTTPS  ProxyProtocol = "https"
	ProtocolSOCKS5 ProxyProtocol = "socks5"
)

const (
	DefaultRequestsPerHour = 100
	DefaultDailyLimit      = 1000
	DefaultSuccessRate     = 100.0
)

// ProxyConfig is one managed egress endpoint.
type ProxyConfig struct {
	ID       string        `json:"id"`
	Host     string        `json:"host"`
	Port     int           `json:"port"`
	Protocol ProxyProtocol `json:"protocol"`
	Username string        `json:"username,omitempty"`
	Password string        `json:"password,omitempty"`

	Type     ProxyType `json:"proxy_type"`
	Provider string    `json:"provider"`
	Country  string    `json:"country,omitempty"`
	Region   string    `json:"region,omitempty"`
	Tags     []string  `json:"tags"`
	Notes    string    `json:"notes,omitempty"`

	IsActive        bool       `json:"is_active"`
	FailureCount    int        `json:"failure_count"`
	SuccessRate     float64    `json:"success_rate"`
	AvgResponseTime *float64   `json:"avg_response_time,omitempty"` // milliseconds
	Uptime          *float64   `json:"uptime,omitempty"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`

	RequestsPerHour    int `json:"requests_per_hour"`
	DailyLimit         int `json:"daily_limit"`
	MonthlyLimit       int `json:"monthly_limit,omitempty"`
	CurrentHourlyUsage int `json:"current_hourly_usage"`
	CurrentDailyUsage  int `json:"current_daily_usage"`

	CostPerRequest *float64 `json:"cost_per_request,omitempty"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Address returns "host:port" with any scheme prefix removed from the host.
func (p *ProxyConfig) Address() string {
	return fmt.Sprintf("%s:%d", StripScheme(p.Host), p.Port)
}

// URL renders the proxy as a URL usable with http.ProxyURL.
func (p *ProxyConfig) URL() *url.URL {
	scheme := string(p.Protocol)
	if scheme == "" {
		scheme = string(ProtocolHTTP)
	}

	u := &url.URL{
		Scheme: scheme,
		Host:   StripScheme(p.Host) + ":" + strconv.Itoa(p.Port),
	}
	if p.Username != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		} else {
			u.User = url.User(p.Username)
		}
	}
	return u
}

// UsageRatio is the share of the hourly quota already charged.
func (p *ProxyConfig) UsageRatio() float64 {
	if p.RequestsPerHour <= 0 {
		return 1
	}
	return float64(p.CurrentHourlyUsage) / float64(p.RequestsPerHour)
}

// Clone returns a deep copy so callers never alias pool-owned state.
func (p *ProxyConfig) Clone() *ProxyConfig {
	if p == nil {
		return nil
	}
	c := *p
	c.Tags = append([]string{}, p.Tags...)
	c.AvgResponseTime = cloneFloat(p.AvgResponseTime)
	c.Uptime = cloneFloat(p.Uptime)
	c.CostPerRequest = cloneFloat(p.CostPerRequest)
	c.LastCheckedAt = cloneTime(p.LastCheckedAt)
	c.LastUsedAt = cloneTime(p.LastUsedAt)
	return &c
}

func (p *ProxyConfig) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// StripScheme drops a leading "scheme://" that operators sometimes paste into the host field.
func StripScheme(host string) string {
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return strings.TrimSuffix(host, "/")
}

// ProxyInput is the partial record accepted by AddProxy. Zero values mean "use the default".
type ProxyInput struct {
	ID       string        `json:"id,omitempty"`
	Host     string        `json:"host" binding:"required"`
	Port     int           `json:"port" binding:"required,min=1,max=65535"`
	Protocol ProxyProtocol `json:"protocol,omitempty"`
	Username string        `json:"username,omitempty"`
	Password string        `json:"password,omitempty"`

	Type     ProxyType `json:"proxy_type,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Country  string    `json:"country,omitempty"`
	Region   string    `json:"region,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Notes    string    `json:"notes,omitempty"`

	IsActive        *bool    `json:"is_active,omitempty"`
	SuccessRate     *float64 `json:"success_rate,omitempty"`
	AvgResponseTime *float64 `json:"avg_response_time,omitempty"`
	Uptime          *float64 `json:"uptime,omitempty"`

	RequestsPerHour int `json:"requests_per_hour,omitempty"`
	DailyLimit      int `json:"daily_limit,omitempty"`
	MonthlyLimit    int `json:"monthly_limit,omitempty"`

	CostPerRequest *float64 `json:"cost_per_request,omitempty"`
}

// ProxyUpdate carries operator edits; nil fields are left untouched.
type ProxyUpdate struct {
	Host     *string        `json:"host,omitempty"`
	Port     *int           `json:"port,omitempty"`
	Protocol *ProxyProtocol `json:"protocol,omitempty"`
	Username *string        `json:"username,omitempty"`
	Password *string        `json:"password,omitempty"`

	Type    *ProxyType `json:"proxy_type,omitempty"`
	Country *string    `json:"country,omitempty"`
	Region  *string    `json:"region,omitempty"`
	Tags    []string   `json:"tags,omitempty"`
	Notes   *string    `json:"notes,omitempty"`

	IsActive        *bool    `json:"is_active,omitempty"`
	FailureCount    *int     `json:"failure_count,omitempty"`
	SuccessRate     *float64 `json:"success_rate,omitempty"`
	AvgResponseTime *float64 `json:"avg_response_time,omitempty"`
	Uptime          *float64 `json:"uptime,omitempty"`

	RequestsPerHour *int `json:"requests_per_hour,omitempty"`
	DailyLimit      *int `json:"daily_limit,omitempty"`
	MonthlyLimit    *int `json:"monthly_limit,omitempty"`

	CostPerRequest *float64 `json:"cost_per_request,omitempty"`
}

// SelectionFilter narrows GetNextProxyWhere to a subset of the pool.
type SelectionFilter struct {
	Country  string    `form:"country" json:"country,omitempty"`
	Type     ProxyType `form:"type" json:"type,omitempty"`
	Provider string    `form:"provider" json:"provider,omitempty"`
	Tag      string    `form:"tag" json:"tag,omitempty"`
}

func (f SelectionFilter) Matches(p *ProxyConfig) bool {
	if f.Country != "" && !strings.EqualFold(f.Country, p.Country) {
		return false
	}
	if f.Type != "" && f.Type != p.Type {
		return false
	}
	if f.Provider != "" && f.Provider != p.Provider {
		return false
	}
	if f.Tag != "" && !p.HasTag(f.Tag) {
		return false
	}
	return true
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func Float64(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }

func Int(v int) *int { return &v }

func String(v string) *string { return &v }
