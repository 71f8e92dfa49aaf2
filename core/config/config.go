package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" toml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" toml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" toml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// LongPollLimit caps updates per getUpdates call; 0 -> default
	LongPollLimit int `yaml:"longpoll_limit" toml:"longpoll_limit" envconfig:"TELEGRAM_LONGPOLL_LIMIT"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" toml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" toml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" toml:"port" envconfig:"WEBHOOK_PORT"`
}

// HTTPConfig tunes the outbound Bot API client.
type HTTPConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" toml:"timeout_seconds" envconfig:"HTTP_TIMEOUT_SECONDS"`
	Retries        int `yaml:"retries" toml:"retries" envconfig:"HTTP_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" toml:"retry_backoff_ms" envconfig:"HTTP_RETRY_BACKOFF_MS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" toml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" toml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order" toml:"keys_order"`
	DebugSample string `yaml:"debug_sample" toml:"debug_sample"`
	Dir         string `yaml:"dir" toml:"dir"`
	BotFile     string `yaml:"bot_file" toml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" toml:"profile" envconfig:"LOG_PROFILE"`
}

// StaterConfig controls the conversation router runtime.
type StaterConfig struct {
	// Workers is the number of per-key serial workers; 0 -> default
	Workers   int `yaml:"workers" toml:"workers" envconfig:"STATER_WORKERS"`
	QueueSize int `yaml:"queue_size" toml:"queue_size" envconfig:"STATER_QUEUE_SIZE"`
	// JoinRequestKey selects which id keys chat join requests: "requester" or "chat".
	JoinRequestKey string `yaml:"join_request_key" toml:"join_request_key" envconfig:"STATER_JOIN_REQUEST_KEY"`
}

// StoreConfig selects the conversation state backend.
type StoreConfig struct {
	Driver     string `yaml:"driver" toml:"driver" envconfig:"STATE_STORE_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" toml:"sqlite_path" envconfig:"STATE_STORE_SQLITE_PATH"`
	// CacheSize enables an LRU cache in front of persistent drivers when > 0.
	CacheSize int  `yaml:"cache_size" toml:"cache_size" envconfig:"STATE_STORE_CACHE_SIZE"`
	Migrate   bool `yaml:"migrate" toml:"migrate" envconfig:"STATE_STORE_MIGRATE"`
}

// DatabaseConfig holds postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" toml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" toml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" toml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" toml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" toml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" toml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" toml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// StoreMemory keeps conversation state in process memory.
	StoreMemory = "memory"
	// StoreSQLite persists conversation state in a local sqlite file.
	StoreSQLite = "sqlite"
	// StorePostgres persists conversation state in postgres.
	StorePostgres = "postgres"
)

const (
	// JoinRequestByRequester keys join requests by the requesting user.
	JoinRequestByRequester = "requester"
	// JoinRequestByChat keys join requests by the target chat.
	JoinRequestByChat = "chat"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for per-conversation rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" toml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" toml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration of the router runtime.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram" toml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook" toml:"webhook"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Stater    StaterConfig    `yaml:"stater" toml:"stater"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
}

// CoreConfig lets Config satisfy runner interfaces directly.
func (c *Config) CoreConfig() *Config { return c }

// Load reads configuration from a YAML or TOML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Decode(path, data, &cfg); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode parses data into out, choosing TOML for *.toml paths and YAML otherwise.
func Decode(path string, data []byte, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), out); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
		if cfg.Telegram.LongPollLimit < 0 || cfg.Telegram.LongPollLimit > 100 {
			return fmt.Errorf("telegram.longpoll_limit must be within 0..100")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if err := normalizeRateLimit(&cfg.RateLimit); err != nil {
		return err
	}
	if err := normalizeStater(&cfg.Stater); err != nil {
		return err
	}
	return normalizeStore(&cfg.Store, &cfg.Database)
}

func normalizeRateLimit(rl *RateLimitConfig) error {
	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range rl.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		rl.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeStater(st *StaterConfig) error {
	if st.Workers < 0 {
		return fmt.Errorf("stater.workers must be >= 0")
	}
	if st.QueueSize < 0 {
		return fmt.Errorf("stater.queue_size must be >= 0")
	}
	key := strings.ToLower(strings.TrimSpace(st.JoinRequestKey))
	switch key {
	case "":
		key = JoinRequestByRequester
	case JoinRequestByRequester, JoinRequestByChat:
	default:
		return fmt.Errorf("invalid stater.join_request_key %q; allowed: requester, chat", st.JoinRequestKey)
	}
	st.JoinRequestKey = key
	return nil
}

func normalizeStore(st *StoreConfig, db *DatabaseConfig) error {
	driver := strings.ToLower(strings.TrimSpace(st.Driver))
	if driver == "" {
		driver = StoreMemory
	}
	switch driver {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(st.SQLitePath) == "" {
			return fmt.Errorf("store.sqlite_path is required when store.driver is 'sqlite'")
		}
	case StorePostgres:
		if strings.TrimSpace(db.Host) == "" || strings.TrimSpace(db.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when store.driver is 'postgres'")
		}
		if db.Port == "" {
			db.Port = "5432"
		}
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
		if db.MaxConnections <= 0 {
			db.MaxConnections = 4
		}
	default:
		return fmt.Errorf("invalid store.driver %q; allowed: memory, sqlite, postgres", st.Driver)
	}
	if st.CacheSize < 0 {
		return fmt.Errorf("store.cache_size must be >= 0")
	}
	st.Driver = driver
	return nil
}
