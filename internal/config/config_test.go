package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "anthropic", cfg.Generation.Provider)
	assert.Equal(t, int64(4096), cfg.Anthropic.MaxTokens)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Perplexity.BaseURL)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, "notion", cfg.Pipeline.UploadTarget)
	assert.Equal(t, 10, cfg.Pipeline.MaxEntities)
	assert.Equal(t, 3, cfg.Pipeline.MaxContactsPerEntity)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.PollInterval)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Schema.Path)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: prospector.db
log:
  level: debug
  format: console
pipeline:
  upload_target: salesforce
  max_entities: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "prospector.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "salesforce", cfg.Pipeline.UploadTarget)
	assert.Equal(t, 4, cfg.Pipeline.MaxEntities)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Pipeline.MaxContactsPerEntity)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9090\n"), 0644))
	t.Setenv("PROSPECTOR_SERVER_PORT", "7070")
	t.Setenv("PROSPECTOR_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PROSPECTOR_PERPLEXITY_KEY=pplx-from-dotenv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("PROSPECTOR_PERPLEXITY_KEY") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pplx-from-dotenv", cfg.Perplexity.Key)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validConfig() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "sqlite", DatabaseURL: "p.db"},
		Generation: GenerationConfig{Provider: "anthropic"},
		Anthropic:  AnthropicConfig{Key: "k", Model: "m", MaxTokens: 1024},
		Perplexity: PerplexityConfig{Key: "p"},
		Notion:     NotionConfig{Token: "n", ContactDB: "db"},
		Pipeline:   PipelineConfig{UploadTarget: "notion", MaxEntities: 1, MaxContactsPerEntity: 1, PollInterval: time.Second},
		Server:     ServerConfig{Port: 8080},
		Log:        LogConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		missing []string
	}{
		{name: "complete pipeline", mode: ModePipeline, mutate: func(*Config) {}},
		{
			name:    "research needs generation key",
			mode:    ModeResearch,
			mutate:  func(c *Config) { c.Anthropic.Key = "" },
			missing: []string{"anthropic.key"},
		},
		{
			name: "research ignores upload credentials",
			mode: ModeResearch,
			mutate: func(c *Config) {
				c.Perplexity.Key = ""
				c.Notion.Token = ""
			},
		},
		{
			name: "openai provider",
			mode: ModeResearch,
			mutate: func(c *Config) {
				c.Generation.Provider = "openai"
			},
			missing: []string{"openai.key"},
		},
		{
			name: "postgres needs url",
			mode: ModeResearch,
			mutate: func(c *Config) {
				c.Store.Driver = "postgres"
				c.Store.DatabaseURL = ""
			},
			missing: []string{"store.database_url"},
		},
		{
			name: "salesforce target",
			mode: ModeServe,
			mutate: func(c *Config) {
				c.Pipeline.UploadTarget = "salesforce"
				c.Salesforce.ClientID = "cid"
			},
			missing: []string{"salesforce.username", "salesforce.key_path"},
		},
		{
			name: "notion target",
			mode: ModePipeline,
			mutate: func(c *Config) {
				c.Perplexity.Key = " "
				c.Notion.ContactDB = ""
			},
			missing: []string{"perplexity.key", "notion.contact_db"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate(tt.mode)
			if len(tt.missing) == 0 {
				assert.NoError(t, err)
				return
			}

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.mode, cfgErr.Mode)
			assert.Equal(t, tt.missing, cfgErr.Missing)
		})
	}
}

func TestValidate_Shape(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate(ModeResearch)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	assert.False(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "config: validate")
}

func TestValidate_PollInterval(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		cfg := validConfig()
		cfg.Pipeline.PollInterval = d

		err := cfg.Validate(ModePipeline)
		require.Error(t, err, d.String())
		assert.Contains(t, err.Error(), "PollInterval")
	}
}

func TestValidate_SearchRecency(t *testing.T) {
	cfg := validConfig()
	cfg.Perplexity.SearchRecency = "month"
	require.NoError(t, cfg.Validate(ModePipeline))

	cfg.Perplexity.SearchRecency = "decade"
	err := cfg.Validate(ModePipeline)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SearchRecency")
}

func TestConfigurationError_Message(t *testing.T) {
	err := &ConfigurationError{Mode: "pipeline", Missing: []string{"a", "b"}}
	assert.Equal(t, "config: pipeline requires a, b", err.Error())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	err := InitLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
