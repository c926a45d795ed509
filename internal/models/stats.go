package models

type ProxyRanking struct {
	ID          string    `json:"id"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Provider    string    `json:"provider"`
	Type        ProxyType `json:"proxy_type"`
	SuccessRate float64   `json:"success_rate"`
}

type ProviderStats struct {
	ProviderName   string  `json:"provider_name"`
	TotalProxies   int     `json:"total_proxies"`
	ActiveProxies  int     `json:"active_proxies"`
	AvgSuccessRate float64 `json:"avg_success_rate"`
}

type UsageStats struct {
	TotalProxies      int                      `json:"total_proxies"`
	ActiveProxies     int                      `json:"active_proxies"`
	AvgSuccessRate    float64                  `json:"avg_success_rate"`
	AvgResponseTime   float64                  `json:"avg_response_time"` // milliseconds
	TotalRequests     int64                    `json:"total_requests"`
	FailedRequests    int64                    `json:"failed_requests"`
	TotalCost         float64                  `json:"total_cost"`
	TopProxies        []ProxyRanking           `json:"top_proxies"`
	RecentFailures    []HealthCheck            `json:"recent_failures"`
	ProxiesByProvider map[string]ProviderStats `json:"proxies_by_provider"`
}
