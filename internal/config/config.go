// Package config provides configuration management for the detector binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ad-tracker/viral-video-detector/internal/validation"
)

// Store drivers understood by store.Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultSQLitePath is the database file used when store.path is unset.
	DefaultSQLitePath = "tiktok_viral_videos.db"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	API      APIConfig
	Detector DetectorConfig
	Store    StoreConfig
	RabbitMQ RabbitMQConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// APIConfig describes the remote feed service.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type APIConfig struct {
	Key           string
	BaseURL       string
	Timeout       time.Duration
	VerifyTimeout time.Duration
	MinInterval   time.Duration
	Count         int
	UserAgent     string
	Feeds         []FeedConfig
}

// FeedConfig is one feed flavor and its ordered endpoint fallback list.
type FeedConfig struct {
	Name      string
	Endpoints []string
}

// DetectorConfig holds the classification thresholds and polling budget.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DetectorConfig struct {
	MinViews         int64
	TimeLimitHours   float64
	MaxRequests      int
	Countries        []string
	RateLimitBackoff time.Duration
	// Interval re-runs collection periodically when positive.
	Interval time.Duration
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string
	Path        string
	DatabaseURL string
	MaxConns    int32
}

// RabbitMQConfig contains RabbitMQ connection and exchange configuration for
// viral video events.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Enabled    bool
	Host       string
	User       string
	Password   string
	Exchange   string
	Queue      string
	RoutingKey string
	Port       int
}

// ServerConfig contains the reporting HTTP server configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	// APIKeys guard /api/v1 when non-empty.
	APIKeys []string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables. An empty path
// searches for config.yaml in the working directory and ./config.
func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.API.Feeds) == 0 {
		cfg.API.Feeds = DefaultFeeds()
	}
	for i, c := range cfg.Detector.Countries {
		cfg.Detector.Countries[i] = strings.ToLower(strings.TrimSpace(c))
	}

	return &cfg, nil
}

// DefaultFeeds is the single discovery feed: explore first, trending as its
// fallback.
func DefaultFeeds() []FeedConfig {
	return []FeedConfig{
		{Name: "discover", Endpoints: []string{"public/explore", "public/trending"}},
	}
}

// Validate reports configuration the collector cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.API.Key) == "" {
		errs = append(errs, errors.New("api.key is required"))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.baseurl is required"))
	}
	if c.Detector.MinViews <= 0 {
		errs = append(errs, fmt.Errorf("detector.minviews must be positive, got %d", c.Detector.MinViews))
	}
	if c.Detector.TimeLimitHours <= 0 {
		errs = append(errs, fmt.Errorf("detector.timelimithours must be positive, got %v", c.Detector.TimeLimitHours))
	}
	if c.Detector.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("detector.maxrequests must be positive, got %d", c.Detector.MaxRequests))
	}
	if len(c.Detector.Countries) == 0 {
		errs = append(errs, errors.New("detector.countries must list at least one region"))
	}
	for _, country := range c.Detector.Countries {
		if !validation.IsValidCountry(country) {
			errs = append(errs, fmt.Errorf("detector.countries: %q is not a two-letter region code", country))
		}
	}
	for _, f := range c.API.Feeds {
		if len(f.Endpoints) == 0 {
			errs = append(errs, fmt.Errorf("feed %q has no endpoints", f.Name))
		}
		for _, ep := range f.Endpoints {
			if err := validation.ValidateEndpoint(ep); err != nil {
				errs = append(errs, fmt.Errorf("feed %q: %w", f.Name, err))
			}
		}
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.databaseurl is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	return errors.Join(errs...)
}

func setDefaults() {
	// API
	viper.SetDefault("api.key", "")
	viper.SetDefault("api.baseurl", "https://api.tikapi.io")
	viper.SetDefault("api.timeout", 30*time.Second)
	viper.SetDefault("api.verifytimeout", 10*time.Second)
	viper.SetDefault("api.mininterval", 1*time.Second)
	viper.SetDefault("api.count", 30)
	viper.SetDefault("api.useragent", "viral-video-detector/2.0")

	// Detector
	viper.SetDefault("detector.minviews", 500000)
	viper.SetDefault("detector.timelimithours", 24)
	viper.SetDefault("detector.maxrequests", 10)
	viper.SetDefault("detector.countries", []string{"us"})
	viper.SetDefault("detector.ratelimitbackoff", 30*time.Second)
	viper.SetDefault("detector.interval", time.Duration(0))

	// Store
	viper.SetDefault("store.driver", DriverSQLite)
	viper.SetDefault("store.path", DefaultSQLitePath)
	viper.SetDefault("store.databaseurl", "")
	viper.SetDefault("store.maxconns", 5)

	// RabbitMQ
	viper.SetDefault("rabbitmq.enabled", false)
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "viral.videos")
	viper.SetDefault("rabbitmq.queue", "viral.videos.detected")
	viper.SetDefault("rabbitmq.routingkey", "video.viral")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)
	viper.SetDefault("server.apikeys", []string{})

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}
