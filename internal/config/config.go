// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/product-scraper/internal/site"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Auth        AuthConfig       `mapstructure:"auth"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Worker      WorkerConfig     `mapstructure:"worker"`
	Browser     BrowserConfig    `mapstructure:"browser"`
	DB          DBConfig         `mapstructure:"db"`
	Dedup       DedupConfig      `mapstructure:"dedup"`
	Queue       QueueConfig      `mapstructure:"queue"`
	Webhook     WebhookConfig    `mapstructure:"webhook"`
	PubSub      PubSubConfig     `mapstructure:"pubsub"`
	DeadLetter  DeadLetterConfig `mapstructure:"dead_letter"`
	Listing     ListingConfig    `mapstructure:"listing"`
	RateLimit   RateLimitConfig  `mapstructure:"ratelimit"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// WorkerConfig governs the pool and the retry policy.
type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBase       time.Duration `mapstructure:"retry_base"`
	RetryMax        time.Duration `mapstructure:"retry_max"`
	ExtractAttempts int           `mapstructure:"extract_attempts"`
	ExtractDelay    time.Duration `mapstructure:"extract_delay"`
	HardTimeout     time.Duration `mapstructure:"hard_timeout"`
	SoftTimeout     time.Duration `mapstructure:"soft_timeout"`
}

// BrowserConfig selects and tunes the automation driver.
type BrowserConfig struct {
	Driver            string        `mapstructure:"driver"`
	Headless          bool          `mapstructure:"headless"`
	ExecPath          string        `mapstructure:"exec_path"`
	NoSandbox         bool          `mapstructure:"no_sandbox"`
	ProxyServer       string        `mapstructure:"proxy_server"`
	UserAgents        []string      `mapstructure:"user_agents"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
	StartTimeout      time.Duration `mapstructure:"start_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
	CreateAttempts    int           `mapstructure:"create_attempts"`
	CreateBackoff     time.Duration `mapstructure:"create_backoff"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// DBConfig controls the Postgres pool.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DedupConfig sizes the positive-result cache.
type DedupConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// QueueConfig selects the queue backend.
type QueueConfig struct {
	Backend       string        `mapstructure:"backend"`
	Capacity      int           `mapstructure:"capacity"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Key           string        `mapstructure:"key"`
	DeadLetterKey string        `mapstructure:"dead_letter_key"`
	PopTimeout    time.Duration `mapstructure:"pop_timeout"`
}

// WebhookConfig points at the downstream completion endpoint.
type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
}

// PubSubConfig holds metadata for completion events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DeadLetterConfig selects where abandoned jobs are archived.
type DeadLetterConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ListingConfig tunes category discovery.
type ListingConfig struct {
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

// RateLimitConfig holds the default bucket and per-site overrides.
type RateLimitConfig struct {
	RPS   float64             `mapstructure:"rps"`
	Burst int                 `mapstructure:"burst"`
	Sites map[string]RateRule `mapstructure:"sites"`
}

// RateRule is a per-site override.
type RateRule struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// TelemetryConfig controls tracing. An empty ProjectID disables export.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment. Environment variables use the
// SCRAPER_ prefix with dots replaced by underscores, e.g. SCRAPER_DB_DSN.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key, including empty ones, so AutomaticEnv
// overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.retry_base", "2s")
	v.SetDefault("worker.retry_max", "60s")
	v.SetDefault("worker.extract_attempts", 2)
	v.SetDefault("worker.extract_delay", "2s")
	v.SetDefault("worker.hard_timeout", "5m")
	v.SetDefault("worker.soft_timeout", "4m")
	v.SetDefault("browser.driver", "chromium")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.proxy_server", "")
	v.SetDefault("browser.user_agents", []string{})
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.start_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.probe_timeout", "5s")
	v.SetDefault("browser.create_attempts", 3)
	v.SetDefault("browser.create_backoff", "1s")
	v.SetDefault("browser.shutdown_timeout", "10s")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("dedup.cache_size", 10000)
	v.SetDefault("dedup.cache_ttl", "10m")
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.capacity", 256)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.key", "scraper:jobs")
	v.SetDefault("queue.dead_letter_key", "scraper:jobs:dead")
	v.SetDefault("queue.pop_timeout", "5s")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("dead_letter.backend", "local")
	v.SetDefault("dead_letter.dir", "./dead-letters")
	v.SetDefault("dead_letter.gcs_bucket", "")
	v.SetDefault("dead_letter.prefix", "dead-letters")
	v.SetDefault("listing.user_agent", "")
	v.SetDefault("listing.timeout", "30s")
	v.SetDefault("listing.max_results", 200)
	v.SetDefault("ratelimit.rps", 0)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("telemetry.service_name", "scraperd")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 0.1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Environment) == "" {
		return fmt.Errorf("environment must be set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.Worker.validate(); err != nil {
		return err
	}
	switch c.Browser.Driver {
	case "chromium", "playwright":
	default:
		return fmt.Errorf("browser.driver must be chromium or playwright, got %q", c.Browser.Driver)
	}
	if c.Browser.CreateAttempts <= 0 {
		return fmt.Errorf("browser.create_attempts must be > 0")
	}
	switch c.Queue.Backend {
	case "memory":
		if c.Queue.Capacity <= 0 {
			return fmt.Errorf("queue.capacity must be > 0")
		}
	case "redis":
		if c.Queue.RedisAddr == "" {
			return fmt.Errorf("queue.redis_addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("queue.backend must be memory or redis, got %q", c.Queue.Backend)
	}
	switch c.DeadLetter.Backend {
	case "local":
		if c.DeadLetter.Dir == "" {
			return fmt.Errorf("dead_letter.dir must be set for the local backend")
		}
	case "gcs":
		if c.DeadLetter.GCSBucket == "" {
			return fmt.Errorf("dead_letter.gcs_bucket must be set for the gcs backend")
		}
	case "redis":
		if c.Queue.Backend != "redis" {
			return fmt.Errorf("dead_letter.backend redis requires queue.backend redis")
		}
	case "none":
	default:
		return fmt.Errorf("dead_letter.backend must be local, gcs, redis or none, got %q", c.DeadLetter.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	for name := range c.RateLimit.Sites {
		if _, err := site.Parse(name); err != nil {
			return fmt.Errorf("ratelimit.sites: %w", err)
		}
	}
	return nil
}

func (w WorkerConfig) validate() error {
	if w.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if w.MaxRetries < 0 {
		return fmt.Errorf("worker.max_retries must be >= 0")
	}
	if w.ExtractAttempts <= 0 {
		return fmt.Errorf("worker.extract_attempts must be > 0")
	}
	if w.HardTimeout <= 0 {
		return fmt.Errorf("worker.hard_timeout must be > 0")
	}
	if w.SoftTimeout > 0 && w.SoftTimeout >= w.HardTimeout {
		return fmt.Errorf("worker.soft_timeout must be shorter than worker.hard_timeout")
	}
	return nil
}

// Production reports whether completion notifications are enabled.
func (c Config) Production() bool {
	return c.Environment == "production"
}
