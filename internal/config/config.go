package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "ALERTENRICHER_CONFIG"
	logLevelEnv       = "ALERTENRICHER_LOG_LEVEL"
	alertsFileEnv     = "ALERTS_FILE"
	thresholdEnv      = "SEVERITY_THRESHOLD"
	pollIntervalEnv   = "POLL_INTERVAL_SECONDS"
	databaseDSNEnv    = "DATABASE_DSN"
	dbHostEnv         = "DB_HOST"
	dbPortEnv         = "DB_PORT"
	dbNameEnv         = "DB_NAME"
	dbUserEnv         = "DB_USER"
	dbPassEnv         = "DB_PASS"
	ollamaURLEnv      = "OLLAMA_URL"
	ollamaModelEnv    = "OLLAMA_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	httpAddrEnv       = "HTTP_ADDR"
)

// State backends understood by the state registry.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Checkpoint policies for partially failed batches.
const (
	PolicyWatermark = "watermark"
	PolicyBatch     = "batch"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Source        SourceConfig       `yaml:"source"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	State         StateConfig        `yaml:"state"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment"`
	Database      DatabaseConfig     `yaml:"database"`
	HTTP          HTTPConfig         `yaml:"http"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourceConfig points at the alert log and the selection threshold.
type SourceConfig struct {
	LogPath           string `yaml:"logPath"`
	SeverityThreshold int    `yaml:"severityThreshold"`
}

// SchedulerConfig defines how often the pipeline runs.
type SchedulerConfig struct {
	PollIntervalSeconds int  `yaml:"pollIntervalSeconds"`
	Watch               bool `yaml:"watch"`
}

// Interval is the pause between the end of one tick and the start of the next.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// StateConfig picks where the checkpoint and pending markers live.
type StateConfig struct {
	Backend                string `yaml:"backend"`
	CheckpointPath         string `yaml:"checkpointPath"`
	PendingDir             string `yaml:"pendingDir"`
	BadgerPath             string `yaml:"badgerPath"`
	RedisAddr              string `yaml:"redisAddr"`
	RedisPassword          string `yaml:"redisPassword"`
	RedisDB                int    `yaml:"redisDB"`
	RedisPrefix            string `yaml:"redisPrefix"`
	RemoveMarkersOnSuccess bool   `yaml:"removeMarkersOnSuccess"`
}

// PipelineConfig tunes batch semantics.
type PipelineConfig struct {
	CheckpointPolicy string `yaml:"checkpointPolicy"`
}

// EnrichmentConfig defines how to contact the text-generation service.
type EnrichmentConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	TimeoutSeconds int           `yaml:"timeoutSeconds"`
	ThrottleMillis int           `yaml:"throttleMillis"`
	Workers        int           `yaml:"workers"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// Timeout bounds one generate call; zero means no client-side timeout.
func (e EnrichmentConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// Throttle is the minimum spacing between enrichment calls.
func (e EnrichmentConfig) Throttle() time.Duration {
	return time.Duration(e.ThrottleMillis) * time.Millisecond
}

// BreakerConfig configures the circuit breaker around the enrichment service.
type BreakerConfig struct {
	Failures    int `yaml:"failures"`
	OpenSeconds int `yaml:"openSeconds"`
}

// OpenFor is how long the breaker stays open before probing again.
func (b BreakerConfig) OpenFor() time.Duration {
	return time.Duration(b.OpenSeconds) * time.Second
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN               string `yaml:"dsn"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Name              string `yaml:"name"`
	User              string `yaml:"user"`
	Password          string `yaml:"password"`
	SSLMode           string `yaml:"sslMode"`
	MaxRetries        int    `yaml:"maxRetries"`
	RetryDelaySeconds int    `yaml:"retryDelaySeconds"`
}

// ConnString returns the explicit DSN or one assembled from the discrete
// fields. Empty means no database is configured.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Host == "" {
		return ""
	}

	port := d.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(port)),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

// RetryDelay is the pause between startup connection attempts.
func (d DatabaseConfig) RetryDelay() time.Duration {
	return time.Duration(d.RetryDelaySeconds) * time.Second
}

// HTTPConfig controls the read API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether both token and chat are set.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// Load reads YAML configuration over the defaults, applies environment
// overrides and validates the result. An explicit path wins over the
// ALERTENRICHER_CONFIG variable.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		// Decoding onto the defaults keeps unspecified keys and still lets
		// the file set zero values such as severityThreshold: 0.
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(alertsFileEnv); v != "" {
		c.Source.LogPath = v
	}
	if v := os.Getenv(thresholdEnv); v != "" {
		setInt(&c.Source.SeverityThreshold, thresholdEnv, v)
	}
	if v := os.Getenv(pollIntervalEnv); v != "" {
		setInt(&c.Scheduler.PollIntervalSeconds, pollIntervalEnv, v)
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(dbHostEnv); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv(dbPortEnv); v != "" {
		setInt(&c.Database.Port, dbPortEnv, v)
	}
	if v := os.Getenv(dbNameEnv); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv(dbUserEnv); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv(dbPassEnv); v != "" {
		c.Database.Password = v
	}

	if v := os.Getenv(ollamaURLEnv); v != "" {
		c.Enrichment.Endpoint = v
	}
	if v := os.Getenv(ollamaModelEnv); v != "" {
		c.Enrichment.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
}

func setInt(dst *int, name, value string) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("config: ignoring %s=%q: not an integer", name, value)
		return
	}
	*dst = n
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Source.LogPath) == "" {
		errs = append(errs, errors.New("source.logPath is required"))
	}
	if c.Scheduler.PollIntervalSeconds <= 0 {
		errs = append(errs, errors.New("scheduler.pollIntervalSeconds must be positive"))
	}

	switch c.State.Backend {
	case BackendFile:
		if c.State.CheckpointPath == "" || c.State.PendingDir == "" {
			errs = append(errs, errors.New("state: file backend needs checkpointPath and pendingDir"))
		}
	case BackendBadger:
		if c.State.BadgerPath == "" {
			errs = append(errs, errors.New("state: badger backend needs badgerPath"))
		}
	case BackendRedis:
		if c.State.RedisAddr == "" {
			errs = append(errs, errors.New("state: redis backend needs redisAddr"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("state.backend %q is not supported", c.State.Backend))
	}

	switch c.Pipeline.CheckpointPolicy {
	case PolicyWatermark, PolicyBatch:
	default:
		errs = append(errs, fmt.Errorf("pipeline.checkpointPolicy %q is not supported", c.Pipeline.CheckpointPolicy))
	}

	if c.Enrichment.Endpoint == "" || c.Enrichment.Model == "" {
		errs = append(errs, errors.New("enrichment.endpoint and enrichment.model are required"))
	}
	if c.Enrichment.TimeoutSeconds < 0 || c.Enrichment.ThrottleMillis < 0 {
		errs = append(errs, errors.New("enrichment timeouts must not be negative"))
	}
	if c.Enrichment.Workers < 1 {
		errs = append(errs, errors.New("enrichment.workers must be at least 1"))
	}
	if c.Enrichment.Breaker.Failures < 0 || c.Enrichment.Breaker.OpenSeconds < 0 {
		errs = append(errs, errors.New("enrichment.breaker values must not be negative"))
	}

	if c.Database.MaxRetries < 0 || c.Database.RetryDelaySeconds < 0 {
		errs = append(errs, errors.New("database retry settings must not be negative"))
	}

	return errors.Join(errs...)
}

// Default matches the stock Wazuh + Ollama compose deployment.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Source: SourceConfig{
			LogPath:           "/var/ossec/logs/alerts/alerts.json",
			SeverityThreshold: 3,
		},
		Scheduler: SchedulerConfig{PollIntervalSeconds: 2, Watch: true},
		State: StateConfig{
			Backend:        BackendFile,
			CheckpointPath: "/app/wazuh_pipeline/last_processed_alert_id.txt",
			PendingDir:     "/app/wazuh_pipeline/ai_pending",
			BadgerPath:     "/app/wazuh_pipeline/state",
			RedisAddr:      "localhost:6379",
			RedisPrefix:    "alertenricher",
		},
		Pipeline: PipelineConfig{CheckpointPolicy: PolicyWatermark},
		Enrichment: EnrichmentConfig{
			Endpoint:       "http://ollama:11434",
			Model:          "phi3:mini",
			TimeoutSeconds: 120,
			ThrottleMillis: 500,
			Workers:        1,
			Breaker:        BreakerConfig{Failures: 5, OpenSeconds: 30},
		},
		Database: DatabaseConfig{
			Host:              "postgres",
			Port:              5432,
			Name:              "soc_copilot",
			User:              "postgres",
			Password:          "postgres",
			SSLMode:           "disable",
			MaxRetries:        10,
			RetryDelaySeconds: 3,
		},
		HTTP: HTTPConfig{Addr: ":8000"},
	}
}
