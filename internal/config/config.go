package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBackendURL = "https://getdontforget.net/api"

	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StoreFailover = "failover"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	HTTP          HTTPConfig          `yaml:"http"`
	Backend       BackendConfig       `yaml:"backend"`
	Redis         RedisConfig         `yaml:"redis"`
	Store         StoreConfig         `yaml:"store"`
	Payments      PaymentsConfig      `yaml:"payments"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
	// PublicBaseURL is the origin of the booking page; PayPal return URLs and
	// shareable links are built from it.
	PublicBaseURL   string              `yaml:"public_base_url"`
	BookingPath     string              `yaml:"booking_path"`
	CookieName      string              `yaml:"cookie_name"`
	CookieSecure    bool                `yaml:"cookie_secure"`
	SessionIdleTTL  int                 `yaml:"session_idle_ttl_minutes"`
	RedirectDelayMS int                 `yaml:"redirect_delay_ms"`
	RateLimit       HTTPRateLimitConfig `yaml:"rate_limit"`
}

type HTTPRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackendConfig struct {
	BaseURL         string `yaml:"base_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
	TTLMinutes int    `yaml:"ttl_minutes"`
	KeyPrefix  string `yaml:"key_prefix"`
}

type PaymentsConfig struct {
	// StripeAPIURL overrides the Stripe API origin (used against stripe-mock).
	StripeAPIURL string `yaml:"stripe_api_url"`
	MaxRetries   int64  `yaml:"max_retries"`
}

type NotificationsConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxRetries          int `yaml:"max_retries"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional in every environment
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend base_url is invalid: %w", err)
	}

	switch c.Store.Driver {
	case StoreMemory, StoreRedis, StoreFailover:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if (c.Store.Driver == StoreRedis || c.Store.Driver == StoreFailover) && c.Redis.Address == "" {
		return fmt.Errorf("redis address is required for the %s driver", c.Store.Driver)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid app timezone: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "dontforget-gateway"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.BookingPath == "" {
		c.HTTP.BookingPath = "/book"
	}
	if c.HTTP.CookieName == "" {
		c.HTTP.CookieName = "df_session"
	}
	if c.HTTP.SessionIdleTTL == 0 {
		c.HTTP.SessionIdleTTL = 30
	}
	if c.HTTP.RedirectDelayMS == 0 {
		c.HTTP.RedirectDelayMS = 2000
	}
	c.HTTP.PublicBaseURL = strings.TrimRight(c.HTTP.PublicBaseURL, "/")

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBackendURL
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 10
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.Store.TTLMinutes == 0 {
		c.Store.TTLMinutes = 60
	}

	if c.Notifications.PollIntervalSeconds == 0 {
		c.Notifications.PollIntervalSeconds = 30
	}
	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = 3
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Location resolves app.timezone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.App.Timezone)
}

func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.HTTP.SessionIdleTTL) * time.Minute
}

func (c *Config) StoreTTL() time.Duration {
	return time.Duration(c.Store.TTLMinutes) * time.Minute
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Backend.CacheTTLSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Notifications.PollIntervalSeconds) * time.Second
}
