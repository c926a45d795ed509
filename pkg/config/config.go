package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig
	Proxy       ProxyConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	RabbitMQ    RabbitMQConfig
	HealthStore HealthStoreConfig
	JWT         JWTConfig
	RateLimit   RateLimitConfig
}

type AppConfig struct {
	Env         string
	Port        int
	LogLevel    string
	LogFormat   string
	CORSOrigins []string
}

type ProxyConfig struct {
	HealthCheckInterval  string
	UsageResetInterval   string
	ValidationTimeout    string
	MaxConcurrentChecks  int
	ProviderConfigPath   string
	CustomProxies        string
	EnabledProviders     []string
	IPCheckEndpoints     []string
	DevelopmentProxyHost string
	DevelopmentProxyPort int
	ValidateOnLoad       bool
}

type DatabaseConfig struct {
	MongoDB MongoDBConfig
}

type MongoDBConfig struct {
	URI     string
	DBName  string
	Timeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// HealthStoreConfig selects where HealthCheck records go: "mongo", "redis" or "memory".
type HealthStoreConfig struct {
	Backend        string
	RecentFailures int
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

func LoadConfig() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ROTATOR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("error reading config file: %v\n", err)
		}
	}

	setDefaults(v)
	bindEnvVariables(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		fmt.Printf("unable to decode into struct: %v\n", err)
		return DefaultConfig()
	}

	return &config
}

func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:       "development",
			Port:      8007,
			LogLevel:  "info",
			LogFormat: "json",
		},
		Proxy: ProxyConfig{
			HealthCheckInterval:  "5m",
			UsageResetInterval:   "1h",
			ValidationTimeout:    "10s",
			MaxConcurrentChecks:  10,
			ProviderConfigPath:   "./configs/providers.yaml",
			EnabledProviders:     DefaultProviders,
			IPCheckEndpoints:     DefaultIPCheckEndpoints,
			DevelopmentProxyHost: "127.0.0.1",
			DevelopmentProxyPort: 8080,
			ValidateOnLoad:       true,
		},
		Database: DatabaseConfig{
			MongoDB: MongoDBConfig{
				URI:     "mongodb://localhost:27017",
				DBName:  "proxy_rotator",
				Timeout: 10 * time.Second,
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		RabbitMQ: RabbitMQConfig{
			Exchange: "proxy.events",
		},
		HealthStore: HealthStoreConfig{
			Backend:        "memory",
			RecentFailures: 100,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 600,
			Window:   time.Minute,
		},
	}
}

// DefaultProviders is the fixed adapter order used during loading.
var DefaultProviders = []string{"brightdata", "oxylabs", "smartproxy", "iproyal"}

var DefaultIPCheckEndpoints = []string{
	"https://api.ipify.org?format=json",
	"https://httpbin.org/ip",
	"https://ifconfig.me/all.json",
	"https://ipinfo.io/json",
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("app.env", d.App.Env)
	v.SetDefault("app.port", d.App.Port)
	v.SetDefault("app.loglevel", d.App.LogLevel)
	v.SetDefault("app.logformat", d.App.LogFormat)

	v.SetDefault("proxy.healthcheckinterval", d.Proxy.HealthCheckInterval)
	v.SetDefault("proxy.usageresetinterval", d.Proxy.UsageResetInterval)
	v.SetDefault("proxy.validationtimeout", d.Proxy.ValidationTimeout)
	v.SetDefault("proxy.maxconcurrentchecks", d.Proxy.MaxConcurrentChecks)
	v.SetDefault("proxy.providerconfigpath", d.Proxy.ProviderConfigPath)
	v.SetDefault("proxy.enabledproviders", d.Proxy.EnabledProviders)
	v.SetDefault("proxy.ipcheckendpoints", d.Proxy.IPCheckEndpoints)
	v.SetDefault("proxy.developmentproxyhost", d.Proxy.DevelopmentProxyHost)
	v.SetDefault("proxy.developmentproxyport", d.Proxy.DevelopmentProxyPort)
	v.SetDefault("proxy.validateonload", d.Proxy.ValidateOnLoad)

	v.SetDefault("database.mongodb.uri", d.Database.MongoDB.URI)
	v.SetDefault("database.mongodb.dbname", d.Database.MongoDB.DBName)
	v.SetDefault("database.mongodb.timeout", d.Database.MongoDB.Timeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.db", 0)

	v.SetDefault("rabbitmq.exchange", d.RabbitMQ.Exchange)

	v.SetDefault("healthstore.backend", d.HealthStore.Backend)
	v.SetDefault("healthstore.recentfailures", d.HealthStore.RecentFailures)

	v.SetDefault("ratelimit.enabled", d.RateLimit.Enabled)
	v.SetDefault("ratelimit.requests", d.RateLimit.Requests)
	v.SetDefault("ratelimit.window", d.RateLimit.Window)
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.port", "APP_PORT")
	v.BindEnv("app.loglevel", "LOG_LEVEL")
	v.BindEnv("app.logformat", "LOG_FORMAT")
	v.BindEnv("app.corsorigins", "CORS_ORIGINS")

	v.BindEnv("proxy.healthcheckinterval", "PROXY_HEALTH_CHECK_INTERVAL")
	v.BindEnv("proxy.usageresetinterval", "PROXY_USAGE_RESET_INTERVAL")
	v.BindEnv("proxy.validationtimeout", "PROXY_VALIDATION_TIMEOUT")
	v.BindEnv("proxy.maxconcurrentchecks", "PROXY_MAX_CONCURRENT_CHECKS")
	v.BindEnv("proxy.providerconfigpath", "PROXY_PROVIDER_CONFIG_PATH")
	v.BindEnv("proxy.customproxies", "CUSTOM_PROXIES")
	v.BindEnv("proxy.validateonload", "PROXY_VALIDATE_ON_LOAD")

	v.BindEnv("database.mongodb.uri", "MONGO_URI")
	v.BindEnv("database.mongodb.dbname", "MONGO_DB_NAME")

	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.BindEnv("rabbitmq.url", "RABBITMQ_URL")

	v.BindEnv("healthstore.backend", "HEALTH_STORE_BACKEND")

	v.BindEnv("jwt.secret", "JWT_SECRET")

	v.BindEnv("ratelimit.enabled", "RATE_LIMIT_ENABLED")
	v.BindEnv("ratelimit.requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("ratelimit.window", "RATE_LIMIT_WINDOW")
}

// ParseDuration returns def when value is empty or malformed.
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
