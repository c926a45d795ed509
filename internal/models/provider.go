package models

type AuthType string

const (
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeAPIKey AuthType = "api_key"
)

// ProxyCandidate is what a provider adapter hands to the loader before schema checking.
type ProxyCandidate struct {
	Host     string        `json:"host" yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int           `json:"port" yaml:"port" validate:"required,min=1,max=65535"`
	Protocol ProxyProtocol `json:"protocol" yaml:"protocol" validate:"omitempty,oneof=http https socks5"`
	Username string        `json:"username" yaml:"username"`
	Password string        `json:"password" yaml:"password" validate:"required_with=Username"`

	Type    ProxyType `json:"type" yaml:"type" validate:"omitempty,oneof=residential datacenter mobile static rotating"`
	Country string    `json:"country" yaml:"country" validate:"omitempty,len=2"`
	Region  string    `json:"region" yaml:"region"`
	Tags    []string  `json:"tags" yaml:"tags"`
	Notes   string    `json:"notes" yaml:"notes"`

	RequestsPerHour int      `json:"requests_per_hour" yaml:"requests_per_hour" validate:"min=0"`
	DailyLimit      int      `json:"daily_limit" yaml:"daily_limit" validate:"min=0"`
	MonthlyLimit    int      `json:"monthly_limit" yaml:"monthly_limit" validate:"min=0"`
	CostPerRequest  *float64 `json:"cost_per_request" yaml:"cost_per_request" validate:"omitempty,min=0"`
}

// ToInput converts a schema-checked candidate into a pool input stamped with its provider.
func (c ProxyCandidate) ToInput(provider string) ProxyInput {
	return ProxyInput{
		Host:            StripScheme(c.Host),
		Port:            c.Port,
		Protocol:        c.Protocol,
		Username:        c.Username,
		Password:        c.Password,
		Type:            c.Type,
		Provider:        provider,
		Country:         c.Country,
		Region:          c.Region,
		Tags:            c.Tags,
		Notes:           c.Notes,
		RequestsPerHour: c.RequestsPerHour,
		DailyLimit:      c.DailyLimit,
		MonthlyLimit:    c.MonthlyLimit,
		CostPerRequest:  c.CostPerRequest,
	}
}

// EnvProviderSettings is read per provider with envconfig using the provider's prefix.
type EnvProviderSettings struct {
	Host            string    `envconfig:"HOST"`
	Port            int       `envconfig:"PORT"`
	Username        string    `envconfig:"USERNAME"`
	Password        string    `envconfig:"PASSWORD"`
	Protocol        string    `envconfig:"PROTOCOL" default:"http"`
	Country         string    `envconfig:"COUNTRY"`
	Type            ProxyType `envconfig:"TYPE" default:"residential"`
	Sessions        int       `envconfig:"SESSIONS" default:"1"`
	RequestsPerHour int       `envconfig:"REQUESTS_PER_HOUR"`
	DailyLimit      int       `envconfig:"DAILY_LIMIT"`
	MonthlyLimit    int       `envconfig:"MONTHLY_LIMIT"`
	CostPerRequest  float64   `envconfig:"COST_PER_REQUEST"`
}

func (s EnvProviderSettings) Configured() bool {
	return s.Host != "" && s.Port > 0
}

// HTTPProvider describes a provider list API from the provider file.
type HTTPProvider struct {
	Name     string      `yaml:"name"`
	Enabled  bool        `yaml:"enabled"`
	BaseURL  string      `yaml:"base_url"`
	ListPath string      `yaml:"list_path"`
	AuthType AuthType    `yaml:"auth_type"`
	AuthKey  string      `yaml:"auth_key"`
	Type     ProxyType   `yaml:"type"`
	Country  string      `yaml:"country"`
	Defaults ProxyLimits `yaml:"defaults"`
}

type ProxyLimits struct {
	RequestsPerHour int      `yaml:"requests_per_hour"`
	DailyLimit      int      `yaml:"daily_limit"`
	CostPerRequest  *float64 `yaml:"cost_per_request"`
}

// ProviderFile is the operator-maintained YAML file of list APIs and static proxies.
type ProviderFile struct {
	Providers []HTTPProvider   `yaml:"providers"`
	Custom    []ProxyCandidate `yaml:"custom"`
}

// ProviderProxy is one entry returned by a provider list API.
type ProviderProxy struct {
	IP       string        `json:"ip"`
	Port     int           `json:"port"`
	Username string        `json:"username"`
	Password string        `json:"password"`
	Protocol ProxyProtocol `json:"protocol"`
	Country  string        `json:"country,omitempty"`
	City     string        `json:"city,omitempty"`
}
