package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// LineConfig holds Messaging API channel credentials.
type LineConfig struct {
	ChannelSecret      string `yaml:"channel_secret" envconfig:"LINE_CHANNEL_SECRET"`
	ChannelAccessToken string `yaml:"channel_access_token" envconfig:"LINE_CHANNEL_ACCESS_TOKEN"`
	// RichMenuID is linked to every newly created user when set.
	RichMenuID string `yaml:"rich_menu_id" envconfig:"LINE_RICH_MENU_ID"`
	// DataEndpoint overrides the content API base URL; empty -> api-data.line.me.
	DataEndpoint string `yaml:"data_endpoint" envconfig:"LINE_DATA_ENDPOINT"`
}

// WebhookConfig specifies the inbound HTTP listener.
type WebhookConfig struct {
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path   string `yaml:"path" envconfig:"WEBHOOK_PATH"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// EventImage identifies image messages for rate limit exclusions.
	EventImage = "image"
	// EventLocation identifies location messages for rate limit exclusions.
	EventLocation = "location"
	// EventText identifies text messages for rate limit exclusions.
	EventText = "text"
)

// RateLimitConfig holds settings for per-user rate limiting.
// ExcludeKinds accepts message kinds that bypass limiting:
// - "image": photo messages
// - "location": location messages
// - "text": text messages
type RateLimitConfig struct {
	IntervalMS   int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeKinds []string `yaml:"exclude_kinds" envconfig:"RATE_LIMIT_EXCLUDE_KINDS"`
}

// SenderConfig tunes the outbound push dispatcher.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
}

// StorageConfig describes the S3 compatible bucket that keeps post images.
type StorageConfig struct {
	Endpoint      string `yaml:"endpoint" envconfig:"STORAGE_ENDPOINT"`
	AccessKey     string `yaml:"access_key" envconfig:"STORAGE_ACCESS_KEY"`
	SecretKey     string `yaml:"secret_key" envconfig:"STORAGE_SECRET_KEY"`
	Region        string `yaml:"region" envconfig:"STORAGE_REGION"`
	Bucket        string `yaml:"bucket" envconfig:"STORAGE_BUCKET"`
	UseSSL        bool   `yaml:"use_ssl" envconfig:"STORAGE_USE_SSL"`
	PublicBaseURL string `yaml:"public_base_url" envconfig:"STORAGE_PUBLIC_BASE_URL"`
	// SignedURLTTLSeconds bounds signed image links; S3 caps it at 7 days.
	SignedURLTTLSeconds int `yaml:"signed_url_ttl_seconds" envconfig:"STORAGE_SIGNED_URL_TTL_SECONDS"`
}

// SessionConfig controls the post-session conversation.
type SessionConfig struct {
	TTLMinutes     int  `yaml:"ttl_minutes" envconfig:"SESSION_TTL_MINUTES"`
	OptimisticLock bool `yaml:"optimistic_lock" envconfig:"SESSION_OPTIMISTIC_LOCK"`
	RestagePhoto   bool `yaml:"restage_photo" envconfig:"SESSION_RESTAGE_PHOTO"`
}

// UsersConfig controls lazy account creation.
type UsersConfig struct {
	ProfileRefreshHours int `yaml:"profile_refresh_hours" envconfig:"USERS_PROFILE_REFRESH_HOURS"`
}

// RedisConfig enables redelivery dedupe and rate limiting. Empty Addr disables both.
type RedisConfig struct {
	Addr             string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password         string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB               int    `yaml:"db" envconfig:"REDIS_DB"`
	DedupeTTLSeconds int    `yaml:"dedupe_ttl_seconds" envconfig:"REDIS_DEDUPE_TTL_SECONDS"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Line      LineConfig      `yaml:"line"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sender    SenderConfig    `yaml:"sender"`
	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	Users     UsersConfig     `yaml:"users"`
	Redis     RedisConfig     `yaml:"redis"`
}

const (
	defaultWebhookPort      = 8080
	defaultWebhookPath      = "/callback"
	defaultBucket           = "post-images"
	defaultSignedURLTTL     = 60 * 60 * 24 * 7
	defaultSessionTTL       = 24 * 60
	defaultProfileRefresh   = 24
	defaultDedupeTTLSeconds = 10 * 60
)

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadInto decodes the YAML file at path into out and overlays environment variables.
// It does not validate; callers embedding Config run Normalize themselves.
func LoadInto(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", out); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Line.ChannelSecret) == "" {
		return fmt.Errorf("line.channel_secret is required")
	}
	if strings.TrimSpace(cfg.Line.ChannelAccessToken) == "" {
		return fmt.Errorf("line.channel_access_token is required")
	}

	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = defaultWebhookPort
	}
	if cfg.Webhook.Port < 0 {
		return fmt.Errorf("webhook.port must be > 0")
	}
	path := strings.TrimSpace(cfg.Webhook.Path)
	if path == "" {
		path = defaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	cfg.Webhook.Path = path

	if strings.TrimSpace(cfg.Storage.Endpoint) == "" {
		return fmt.Errorf("storage.endpoint is required")
	}
	if strings.TrimSpace(cfg.Storage.Bucket) == "" {
		cfg.Storage.Bucket = defaultBucket
	}
	switch {
	case cfg.Storage.SignedURLTTLSeconds == 0:
		cfg.Storage.SignedURLTTLSeconds = defaultSignedURLTTL
	case cfg.Storage.SignedURLTTLSeconds < 0 || cfg.Storage.SignedURLTTLSeconds > defaultSignedURLTTL:
		return fmt.Errorf("storage.signed_url_ttl_seconds must be within 1..%d", defaultSignedURLTTL)
	}

	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = defaultSessionTTL
	}
	if cfg.Session.TTLMinutes < 0 {
		return fmt.Errorf("session.ttl_minutes must be > 0")
	}
	if cfg.Users.ProfileRefreshHours == 0 {
		cfg.Users.ProfileRefreshHours = defaultProfileRefresh
	}

	if cfg.Sender.MaxRetries < 0 {
		return fmt.Errorf("sender.max_retries must be >= 0")
	}
	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	if cfg.Redis.DedupeTTLSeconds <= 0 {
		cfg.Redis.DedupeTTLSeconds = defaultDedupeTTLSeconds
	}

	allowed := map[string]struct{}{
		EventImage:    {},
		EventLocation: {},
		EventText:     {},
	}
	for i, v := range cfg.RateLimit.ExcludeKinds {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_kinds value %q; allowed: image, location, text", v)
		}
		cfg.RateLimit.ExcludeKinds[i] = key
	}
	return nil
}
