package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"agentorders/internal/core"
)

const envPrefix = "AGENTORDERS_"

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig holds polling loop settings.
type SchedulerConfig struct {
	PollInterval    time.Duration
	Workers         int
	DispatchTimeout time.Duration
}

// BackendConfig holds inference backend endpoints.
type BackendConfig struct {
	OpenAIURL   string
	OpenAIModel string
	OllamaURL   string
	OllamaModel string
	RatePerSec  float64
}

// HistoryConfig holds execution history retention settings.
type HistoryConfig struct {
	Retention int
	PruneCron string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Scheduler    SchedulerConfig
	Backend      BackendConfig
	History      HistoryConfig
	Notification NotificationConfig

	// Mode selects the surfaces served next to the scheduler: http, mcp, or both.
	Mode          string
	StateDir      string
	DBPath        string
	UseUTC        bool
	// ShutdownGrace bounds the HTTP drain. The running scheduler cycle is always awaited.
	ShutdownGrace time.Duration
}

const (
	ModeHTTP = "http"
	ModeMCP  = "mcp"
	ModeBoth = "both"
)

const (
	defaultAddr            = "127.0.0.1:7070"
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultPollInterval    = 30 * time.Second
	defaultWorkers         = 1
	defaultDispatchTimeout = 30 * time.Second
	defaultOpenAIURL       = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel     = "gpt-3.5-turbo"
	defaultOllamaURL       = "http://localhost:11434"
	defaultOllamaModel     = "llama2"
	defaultRetention       = 50
	defaultPruneCron       = "0 3 * * *"
	defaultShutdownGrace   = 5 * time.Second
	dbFileName             = "agentorders.db"
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvFloat returns the environment variable as float64 or default
func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return d
		}
	}
	return defaultVal
}

// Load builds the configuration from environment variables, an optional .env file, and
// defaults. Command-line flags are bound on top of the result by the caller.
// Priority: CLI flags > Environment variables > .env file > defaults
func Load() (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "agentorders", ".env"))
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f) // optional; godotenv never overrides variables already set
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("ADDR", defaultAddr),
			AuthToken: getEnvString("AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level:  getEnvString("LOG_LEVEL", defaultLogLevel),
			Format: getEnvString("LOG_FORMAT", defaultLogFormat),
		},
		Scheduler: SchedulerConfig{
			PollInterval:    getEnvDuration("POLL_INTERVAL", defaultPollInterval),
			Workers:         getEnvInt("WORKERS", defaultWorkers),
			DispatchTimeout: getEnvDuration("DISPATCH_TIMEOUT", defaultDispatchTimeout),
		},
		Backend: BackendConfig{
			OpenAIURL:   getEnvString("OPENAI_URL", defaultOpenAIURL),
			OpenAIModel: getEnvString("OPENAI_MODEL", defaultOpenAIModel),
			OllamaURL:   getEnvString("OLLAMA_URL", defaultOllamaURL),
			OllamaModel: getEnvString("OLLAMA_MODEL", defaultOllamaModel),
			RatePerSec:  getEnvFloat("BACKEND_RPS", 0),
		},
		History: HistoryConfig{
			Retention: getEnvInt("EXECUTION_RETENTION", defaultRetention),
			PruneCron: getEnvString("PRUNE_CRON", defaultPruneCron),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("BARK_URL", ""),
				Enabled: getEnvBool("BARK_ENABLED", false),
			},
		},
		Mode:          getEnvString("MODE", ModeHTTP),
		StateDir:      getEnvString("STATE_DIR", ""),
		DBPath:        getEnvString("DB_PATH", ""),
		UseUTC:        getEnvBool("USE_UTC", false),
		ShutdownGrace: getEnvDuration("SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeHTTP, ModeMCP, ModeBoth:
	default:
		errs = append(errs, fmt.Errorf("mode must be one of http, mcp, both (got %q)", c.Mode))
	}
	if c.ServesHTTP() && strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("addr is required in http mode"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json (got %q)", c.Log.Format))
	}
	if c.Scheduler.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Scheduler.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	if c.Scheduler.DispatchTimeout <= 0 {
		errs = append(errs, errors.New("dispatch timeout must be positive"))
	}
	if c.Backend.RatePerSec < 0 {
		errs = append(errs, errors.New("backend rate must not be negative"))
	}
	if c.History.Retention < 1 {
		errs = append(errs, errors.New("execution retention must be at least 1"))
	}
	if _, err := core.ParseCron(c.History.PruneCron); err != nil {
		errs = append(errs, fmt.Errorf("prune cron: %w", err))
	}
	if c.Notification.Bark.Enabled && strings.TrimSpace(c.Notification.Bark.URL) == "" {
		errs = append(errs, errors.New("bark url is required when bark is enabled"))
	}
	if c.ShutdownGrace < 0 {
		errs = append(errs, errors.New("shutdown grace must not be negative"))
	}
	return errors.Join(errs...)
}

// DatabasePath is DBPath when set, otherwise the database file inside StateDir.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.StateDir, dbFileName)
}

// Location is the zone time-of-day windows and the prune schedule are evaluated in.
func (c *Config) Location() *time.Location {
	if c.UseUTC {
		return time.UTC
	}
	return time.Local
}

func (c *Config) ServesHTTP() bool {
	return c.Mode == ModeHTTP || c.Mode == ModeBoth
}

func (c *Config) ServesMCP() bool {
	return c.Mode == ModeMCP || c.Mode == ModeBoth
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "agentorders"), nil
}
