package models

import "time"

type EventType string

const (
	EventProxyAdded          EventType = "proxy-added"
	EventProxyUpdated        EventType = "proxy-updated"
	EventProxyRemoved        EventType = "proxy-removed"
	EventProxySelected       EventType = "proxy-selected"
	EventProxyHealthReported EventType = "proxy-health-reported"
	EventProxyDisabled       EventType = "proxy-disabled"
	EventNoProxiesAvailable  EventType = "no-proxies-available"
	EventProxiesLoaded       EventType = "proxies-loaded"
	EventCleanupCompleted    EventType = "cleanup-completed"
)

// Event is delivered to bus subscribers. Proxy is a snapshot, never the pool's own record.
type Event struct {
	Type        EventType    `json:"type"`
	ProxyID     string       `json:"proxy_id,omitempty"`
	Proxy       *ProxyConfig `json:"proxy,omitempty"`
	HealthCheck *HealthCheck `json:"health_check,omitempty"`
	Count       int          `json:"count,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}
