// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token           string `yaml:"token"`
	Mode            string `yaml:"mode"` // webhook | polling
	Username        string `yaml:"username"`
	Workers         int    `yaml:"workers"` // polling workers
	WebhookURL      string `yaml:"webhook_url"`
	RegisterWebhook bool   `yaml:"register_webhook"`
	DryRun          bool   `yaml:"dry_run"` // log outbound actions instead of sending
	APIEndpoint     string `yaml:"api_endpoint"`
}

type WebhookConfig struct {
	Listen            string        `yaml:"listen"`
	Path              string        `yaml:"path"`
	Secret            string        `yaml:"secret"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`
	AsyncWorkers      int           `yaml:"async_workers"` // 0 = process before acknowledging
	AsyncQueue        int           `yaml:"async_queue"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	RetryAfter        time.Duration `yaml:"retry_after"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type StorageConfig struct {
	Backend    string `yaml:"backend"` // memory | redis | postgres | pebble
	PebblePath string `yaml:"pebble_path"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type DedupConfig struct {
	Retention     time.Duration `yaml:"retention"`
	Lease         time.Duration `yaml:"lease"`
	MaxEntries    int           `yaml:"max_entries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type OutboundConfig struct {
	GlobalRPS       float64       `yaml:"global_rps"`
	GlobalBurst     int           `yaml:"global_burst"`
	PerChatRPS      float64       `yaml:"per_chat_rps"`
	PerChatBurst    int           `yaml:"per_chat_burst"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	MaxAttempts     int           `yaml:"max_attempts"`
	MaxPending      int           `yaml:"max_pending"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	SharedLimiter   bool          `yaml:"shared_limiter"` // global budget kept in redis
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type InboundConfig struct {
	PerChatPerMinute int `yaml:"per_chat_per_minute"` // 0 disables flood control
}

type FailuresConfig struct {
	AMQPURL    string `yaml:"amqp_url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// AdminConfig enables the read-only inspection API under /admin when Secret
// is set. Tokens are HS256 JWTs minted with the admin-token command.
type AdminConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type EvaluatorConfig struct {
	Provider      string        `yaml:"provider"` // mock | openai | gemini
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type TutorConfig struct {
	Language          string `yaml:"language"` // en | it
	LessonSize        int    `yaml:"lesson_size"`
	RestartOnComplete bool   `yaml:"restart_on_complete"`
	QuestionsPath     string `yaml:"questions_path"`
	AnswersPath       string `yaml:"answers_path"`
}

type GreetingConfig struct {
	Cron    string  `yaml:"cron"`
	Text    string  `yaml:"text"`
	ChatIDs []int64 `yaml:"chat_ids"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Outbound  OutboundConfig  `yaml:"outbound"`
	Inbound   InboundConfig   `yaml:"inbound"`
	Failures  FailuresConfig  `yaml:"failures"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
	Tutor     TutorConfig     `yaml:"tutor"`
	Greeting  GreetingConfig  `yaml:"greeting"`
	Admin     AdminConfig     `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadOption adjusts validation in Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	oneShot bool
}

// OneShot skips the checks that only matter to the long-running receiver
// (webhook secret, webhook registration URL), for commands that send and exit.
func OneShot() LoadOption {
	return func(o *loadOptions) { o.oneShot = true }
}

// Load reads the yaml file at path (optional when empty), overlays secrets from
// the environment (a .env file in the working directory is honoured), applies
// defaults and validates the result.
func Load(path string, dev bool, opts ...LoadOption) (*Config, error) {
	var lo loadOptions
	for _, opt := range opts {
		opt(&lo)
	}
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.validate(lo.oneShot); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("BOT_TOKEN", &cfg.Bot.Token)
	str("BOT_MODE", &cfg.Bot.Mode)
	str("WEBHOOK_URL", &cfg.Bot.WebhookURL)
	str("WEBHOOK_SECRET", &cfg.Webhook.Secret)
	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("AMQP_URL", &cfg.Failures.AMQPURL)
	str("EVALUATOR_API_KEY", &cfg.Evaluator.APIKey)
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("ADMIN_SECRET", &cfg.Admin.Secret)

	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Webhook.Listen = ":" + v
	}
	if v, ok := os.LookupEnv("CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAT_ID: %w", err)
		}
		cfg.Greeting.ChatIDs = append(cfg.Greeting.ChatIDs, id)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "webhook"
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Webhook.Listen == "" {
		cfg.Webhook.Listen = ":8000"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhook"
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		cfg.Webhook.Path = "/" + cfg.Webhook.Path
	}
	if cfg.Webhook.ProcessingTimeout <= 0 {
		cfg.Webhook.ProcessingTimeout = 5 * time.Second
	}
	if cfg.Webhook.AsyncQueue <= 0 {
		cfg.Webhook.AsyncQueue = 256
	}
	if cfg.Webhook.MaxBodyBytes <= 0 {
		cfg.Webhook.MaxBodyBytes = 1 << 20
	}
	if cfg.Webhook.RetryAfter <= 0 {
		cfg.Webhook.RetryAfter = 2 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.PebblePath == "" {
		cfg.Storage.PebblePath = "data/pebble"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.LockTTL = normalizeTTL(cfg.Redis.LockTTL, 30*time.Second)

	cfg.Dedup.Retention = normalizeTTL(cfg.Dedup.Retention, 24*time.Hour)
	cfg.Dedup.Lease = normalizeTTL(cfg.Dedup.Lease, time.Minute)
	if cfg.Dedup.MaxEntries <= 0 {
		cfg.Dedup.MaxEntries = 100_000
	}
	cfg.Dedup.SweepInterval = normalizeTTL(cfg.Dedup.SweepInterval, 5*time.Minute)

	o := &cfg.Outbound
	if o.GlobalRPS <= 0 {
		o.GlobalRPS = 30
	}
	if o.GlobalBurst <= 0 {
		o.GlobalBurst = int(o.GlobalRPS)
	}
	if o.PerChatRPS <= 0 {
		o.PerChatRPS = 1
	}
	if o.PerChatBurst <= 0 {
		o.PerChatBurst = 3
	}
	o.BaseDelay = normalizeTTL(o.BaseDelay, 500*time.Millisecond)
	o.MaxDelay = normalizeTTL(o.MaxDelay, 30*time.Second)
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 10_000
	}
	o.SendTimeout = normalizeTTL(o.SendTimeout, 10*time.Second)
	o.ShutdownTimeout = normalizeTTL(o.ShutdownTimeout, 15*time.Second)

	if cfg.Failures.Exchange == "" {
		cfg.Failures.Exchange = "tutor.events"
	}
	if cfg.Failures.RoutingKey == "" {
		cfg.Failures.RoutingKey = "outbound.failed"
	}

	e := &cfg.Evaluator
	if e.Provider == "" {
		e.Provider = "mock"
	}
	if e.Model == "" {
		switch e.Provider {
		case "gemini":
			e.Model = "gemini-2.0-flash"
		default:
			e.Model = "gpt-4o-mini"
		}
	}
	e.Timeout = normalizeTTL(e.Timeout, 20*time.Second)
	if e.MaxConcurrent <= 0 {
		e.MaxConcurrent = 4
	}

	if cfg.Tutor.Language == "" {
		cfg.Tutor.Language = "en"
	}
	if cfg.Tutor.LessonSize <= 0 {
		cfg.Tutor.LessonSize = 5
	}
	cfg.Admin.TokenTTL = normalizeTTL(cfg.Admin.TokenTTL, time.Hour)
	if cfg.Greeting.Text == "" {
		cfg.Greeting.Text = "Buongiorno! Com'è il tempo oggi?"
	}
}

// Validate performs the minimal checks needed to start.
func (c *Config) Validate() error { return c.validate(false) }

func (c *Config) validate(oneShot bool) error {
	switch c.Bot.Mode {
	case "webhook", "polling":
	default:
		return fmt.Errorf("bot.mode must be webhook or polling, got %q", c.Bot.Mode)
	}
	if c.Bot.Token == "" && !c.Bot.DryRun {
		return errors.New("bot.token is required")
	}
	if !oneShot {
		if c.Bot.Mode == "webhook" && c.Webhook.Secret == "" {
			return errors.New("webhook.secret is required in webhook mode")
		}
		if c.Bot.RegisterWebhook && c.Bot.WebhookURL == "" {
			return errors.New("bot.webhook_url is required when bot.register_webhook is set")
		}
	}
	switch c.Storage.Backend {
	case "memory", "pebble":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres backend")
		}
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Outbound.SharedLimiter && c.Redis.URL == "" {
		return errors.New("redis.url is required when outbound.shared_limiter is set")
	}
	if c.Outbound.MaxDelay < c.Outbound.BaseDelay {
		return errors.New("outbound.max_delay must not be below outbound.base_delay")
	}
	if c.Admin.Secret != "" && len(c.Admin.Secret) < 16 {
		return errors.New("admin.secret must be at least 16 characters")
	}
	switch c.Evaluator.Provider {
	case "mock":
	case "openai", "gemini":
		if c.Evaluator.APIKey == "" && c.Evaluator.BaseURL == "" {
			return fmt.Errorf("evaluator.api_key is required for provider %s", c.Evaluator.Provider)
		}
	default:
		return fmt.Errorf("unknown evaluator.provider %q", c.Evaluator.Provider)
	}
	return nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
