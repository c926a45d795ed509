package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

type MockRequest struct {
	Method    string
	URL       string
	Header    http.Header
	Timestamp time.Time
}

// MockProxyServer stands in for a forward proxy. Requests routed through it are answered
// directly with an IP-echo body, as an echo endpoint behind a working proxy would.
type MockProxyServer struct {
	Server *httptest.Server

	mu          sync.RWMutex
	EgressIP    string
	ClientIP    string
	Forwarding  bool
	StatusCode  int
	Delay       time.Duration
	RequestLog  []MockRequest
	credentials string
}

func NewMockProxyServer(egressIP string) *MockProxyServer {
	mock := &MockProxyServer{
		EgressIP:   egressIP,
		StatusCode: http.StatusOK,
	}
	mock.Server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

func (m *MockProxyServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestLog = append(m.RequestLog, MockRequest{
		Method:    r.Method,
		URL:       r.URL.String(),
		Header:    r.Header.Clone(),
		Timestamp: time.Now(),
	})
	status, delay, forwarding := m.StatusCode, m.Delay, m.Forwarding
	egress, client, creds := m.EgressIP, m.ClientIP, m.credentials
	m.mu.Unlock()

	if creds != "" && r.Header.Get("Proxy-Authorization") == "" {
		w.WriteHeader(http.StatusProxyAuthRequired)
		return
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	body := map[string]interface{}{"ip": egress}
	if forwarding {
		origin := egress
		if client != "" {
			origin = client + ", " + egress
		}
		body = map[string]interface{}{
			"origin": origin,
			"headers": map[string]string{
				"Via":             "1.1 mock-proxy",
				"X-Forwarded-For": client,
			},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

// RequireAuth makes the proxy answer 407 to requests without Proxy-Authorization.
func (m *MockProxyServer) RequireAuth(user, pass string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials = user + ":" + pass
}

func (m *MockProxyServer) SetStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusCode = code
}

func (m *MockProxyServer) SetForwarding(clientIP string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Forwarding = true
	m.ClientIP = clientIP
}

func (m *MockProxyServer) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Delay = d
}

func (m *MockProxyServer) GetRequestLog() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockRequest{}, m.RequestLog...)
}

func (m *MockProxyServer) Close() {
	m.Server.Close()
}

// MockProxy is one entry served by MockProviderAPI.
type MockProxy struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Country  string `json:"country,omitempty"`
	City     string `json:"city,omitempty"`
}

// MockProviderAPI serves a provider proxy list at /proxies and can fail a set number of times first.
type MockProviderAPI struct {
	Server *httptest.Server

	mu           sync.RWMutex
	Proxies      []MockProxy
	FailuresLeft int
	FailureCode  int
	RequestLog   []MockRequest
}

func NewMockProviderAPI(proxies ...MockProxy) *MockProviderAPI {
	mock := &MockProviderAPI{
		Proxies:     proxies,
		FailureCode: http.StatusBadGateway,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/proxies", mock.handleList)
	mock.Server = httptest.NewServer(mux)
	return mock
}

func (m *MockProviderAPI) handleList(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestLog = append(m.RequestLog, MockRequest{
		Method:    r.Method,
		URL:       r.URL.String(),
		Header:    r.Header.Clone(),
		Timestamp: time.Now(),
	})
	if m.FailuresLeft > 0 {
		m.FailuresLeft--
		code := m.FailureCode
		m.mu.Unlock()
		http.Error(w, fmt.Sprintf("mock failure %d", code), code)
		return
	}
	proxies := append([]MockProxy{}, m.Proxies...)
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(proxies)
}

func (m *MockProviderAPI) FailNext(n, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailuresLeft = n
	m.FailureCode = code
}

func (m *MockProviderAPI) GetRequestLog() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockRequest{}, m.RequestLog...)
}

func (m *MockProviderAPI) URL() string {
	return m.Server.URL
}

func (m *MockProviderAPI) Close() {
	m.Server.Close()
}
