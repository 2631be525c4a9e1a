package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Validation modes. Each mode requires a different set of credentials.
const (
	ModeResearch = "research"
	ModePipeline = "pipeline"
	ModeServe    = "serve"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Schema     SchemaConfig     `yaml:"schema" mapstructure:"schema"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// GenerationConfig selects the reasoning service backing research steps.
type GenerationConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider" validate:"oneof=anthropic openai"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	Model   string `yaml:"model" mapstructure:"model"`

	// SearchRecency restricts discovery searches to recent web results.
	SearchRecency string `yaml:"search_recency" mapstructure:"search_recency" validate:"omitempty,oneof=hour day week month year"`
}

// NotionConfig holds the Notion integration token and the contacts database.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	ContactDB string  `yaml:"contact_db" mapstructure:"contact_db"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
}

// SchemaConfig points at the report schema document. An empty path uses the
// embedded default schema.
type SchemaConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig configures the prospecting pipeline.
type PipelineConfig struct {
	UploadTarget         string        `yaml:"upload_target" mapstructure:"upload_target" validate:"oneof=notion salesforce"`
	MaxEntities          int           `yaml:"max_entities" mapstructure:"max_entities" validate:"min=1"`
	MaxContactsPerEntity int           `yaml:"max_contacts_per_entity" mapstructure:"max_contacts_per_entity" validate:"min=1"`
	PollInterval         time.Duration `yaml:"poll_interval" mapstructure:"poll_interval" validate:"gt=0"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// ConfigurationError reports credentials that a mode needs but the loaded
// configuration does not provide. It is fatal to starting any run.
type ConfigurationError struct {
	Mode    string
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "config: " + e.Mode + " requires " + strings.Join(e.Missing, ", ")
}

// dotEnvPath is the optional .env file loaded before the environment is read.
var dotEnvPath = ".env"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(dotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("generation.provider", "anthropic")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("pipeline.upload_target", "notion")
	v.SetDefault("pipeline.max_entities", 10)
	v.SetDefault("pipeline.max_contacts_per_entity", 3)
	v.SetDefault("pipeline.poll_interval", "2s")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Keys that only ever come from the environment still need to be known
	// to viper for Unmarshal to see them.
	for _, key := range []string{
		"store.database_url",
		"anthropic.key",
		"openai.key",
		"openai.base_url",
		"perplexity.key",
		"perplexity.search_recency",
		"notion.token",
		"notion.contact_db",
		"salesforce.client_id",
		"salesforce.username",
		"salesforce.key_path",
		"schema.path",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate checks the configuration shape and that every credential needed
// by mode is present. Missing credentials yield a *ConfigurationError.
func (c *Config) Validate(mode string) error {
	if err := validate.Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}

	var missing []string
	need := func(val, key string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}

	switch c.Generation.Provider {
	case "openai":
		need(c.OpenAI.Key, "openai.key")
	default:
		need(c.Anthropic.Key, "anthropic.key")
	}

	if c.Store.Driver == "postgres" {
		need(c.Store.DatabaseURL, "store.database_url")
	}

	if mode == ModePipeline || mode == ModeServe {
		need(c.Perplexity.Key, "perplexity.key")
		switch c.Pipeline.UploadTarget {
		case "salesforce":
			need(c.Salesforce.ClientID, "salesforce.client_id")
			need(c.Salesforce.Username, "salesforce.username")
			need(c.Salesforce.KeyPath, "salesforce.key_path")
		default:
			need(c.Notion.Token, "notion.token")
			need(c.Notion.ContactDB, "notion.contact_db")
		}
	}

	if len(missing) > 0 {
		return &ConfigurationError{Mode: mode, Missing: missing}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
