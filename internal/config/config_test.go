package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 1, cfg.Scheduler.Workers)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.DispatchTimeout)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Backend.OpenAIModel)
	assert.Equal(t, "http://localhost:11434", cfg.Backend.OllamaURL)
	assert.Equal(t, "llama2", cfg.Backend.OllamaModel)
	assert.Equal(t, 50, cfg.History.Retention)
	assert.Equal(t, "0 3 * * *", cfg.History.PruneCron)
	assert.Equal(t, ModeHTTP, cfg.Mode)
	assert.False(t, cfg.UseUTC)
	assert.Equal(t, "agentorders", filepath.Base(cfg.StateDir))
	assert.Equal(t, filepath.Join(cfg.StateDir, "agentorders.db"), cfg.DatabasePath())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	state := t.TempDir()
	t.Setenv("AGENTORDERS_ADDR", ":9090")
	t.Setenv("AGENTORDERS_AUTH_TOKEN", "secret")
	t.Setenv("AGENTORDERS_LOG_FORMAT", "json")
	t.Setenv("AGENTORDERS_STATE_DIR", state)
	t.Setenv("AGENTORDERS_POLL_INTERVAL", "5s")
	t.Setenv("AGENTORDERS_WORKERS", "4")
	t.Setenv("AGENTORDERS_BACKEND_RPS", "0.5")
	t.Setenv("AGENTORDERS_USE_UTC", "yes")
	t.Setenv("AGENTORDERS_MODE", "both")
	t.Setenv("AGENTORDERS_BARK_ENABLED", "1")
	t.Setenv("AGENTORDERS_BARK_URL", "https://api.day.app/key")
	t.Setenv("AGENTORDERS_DISPATCH_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.AuthToken)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, state, cfg.StateDir)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 0.5, cfg.Backend.RatePerSec)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.DispatchTimeout, "invalid values fall back to the default")
	assert.True(t, cfg.UseUTC)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.True(t, cfg.ServesHTTP())
	assert.True(t, cfg.ServesMCP())
	assert.True(t, cfg.Notification.Bark.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("AGENTORDERS_OLLAMA_MODEL=mistral\nAGENTORDERS_WORKERS=3\n"), 0o600))
	// Registers a cleanup that unsets the variable godotenv is about to set.
	t.Setenv("AGENTORDERS_OLLAMA_MODEL", "")
	require.NoError(t, os.Unsetenv("AGENTORDERS_OLLAMA_MODEL"))
	t.Setenv("AGENTORDERS_STATE_DIR", t.TempDir())
	t.Setenv("AGENTORDERS_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.Backend.OllamaModel)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Addr: ":7070"},
			Log:       LogConfig{Level: "info", Format: "text"},
			Scheduler: SchedulerConfig{PollInterval: time.Second, Workers: 1, DispatchTimeout: time.Second},
			History:   HistoryConfig{Retention: 1, PruneCron: "0 3 * * *"},
			Mode:      ModeHTTP,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "mode", mutate: func(c *Config) { c.Mode = "grpc" }, want: "mode must be one of"},
		{name: "addr", mutate: func(c *Config) { c.Server.Addr = "" }, want: "addr is required"},
		{name: "format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: "log format"},
		{name: "interval", mutate: func(c *Config) { c.Scheduler.PollInterval = 0 }, want: "poll interval"},
		{name: "workers", mutate: func(c *Config) { c.Scheduler.Workers = 0 }, want: "workers"},
		{name: "timeout", mutate: func(c *Config) { c.Scheduler.DispatchTimeout = -time.Second }, want: "dispatch timeout"},
		{name: "rate", mutate: func(c *Config) { c.Backend.RatePerSec = -1 }, want: "backend rate"},
		{name: "retention", mutate: func(c *Config) { c.History.Retention = 0 }, want: "retention"},
		{name: "cron", mutate: func(c *Config) { c.History.PruneCron = "@daily" }, want: "prune cron"},
		{name: "bark", mutate: func(c *Config) { c.Notification.Bark.Enabled = true }, want: "bark url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestValidate_MCPModeNeedsNoAddr(t *testing.T) {
	c := &Config{
		Log:       LogConfig{Format: "json"},
		Scheduler: SchedulerConfig{PollInterval: time.Second, Workers: 1, DispatchTimeout: time.Second},
		History:   HistoryConfig{Retention: 5, PruneCron: "*/10 * * * *"},
		Mode:      ModeMCP,
	}
	assert.NoError(t, c.Validate())
	assert.False(t, c.ServesHTTP())
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	err := (&Config{Mode: "bad"}).Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "mode")
	assert.ErrorContains(t, err, "workers")
	assert.ErrorContains(t, err, "retention")
}

func TestDatabasePath_Override(t *testing.T) {
	c := &Config{StateDir: "/var/lib/agentorders", DBPath: "/srv/shared/app.db"}
	assert.Equal(t, "/srv/shared/app.db", c.DatabasePath())
	assert.Equal(t, time.Local, c.Location())
}
