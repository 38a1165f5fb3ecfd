package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
}

// StoreConfig configures the Postgres pool.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// AnthropicConfig holds the advisory validator's API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SyncConfig controls workbook layout and the sync engine.
type SyncConfig struct {
	SheetName           string   `yaml:"sheet_name" mapstructure:"sheet_name"`
	DataStartRow        int      `yaml:"data_start_row" mapstructure:"data_start_row"`
	TxTimeoutSecs       int      `yaml:"tx_timeout_secs" mapstructure:"tx_timeout_secs"`
	FuzzyThreshold      float64  `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	Placeholders        []string `yaml:"placeholders" mapstructure:"placeholders"`
	Validate            bool     `yaml:"validate" mapstructure:"validate"`
	ValidateConcurrency int      `yaml:"validate_concurrency" mapstructure:"validate_concurrency"`
	ValidateRPS         float64  `yaml:"validate_rps" mapstructure:"validate_rps"`
	RetryAttempts       int      `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// TxTimeout is the per-row transaction bound.
func (s SyncConfig) TxTimeout() time.Duration {
	return time.Duration(s.TxTimeoutSecs) * time.Second
}

// Load reads config.yaml from the working directory, if present, and the
// BILLING_* environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("sync.sheet_name", "")
	v.SetDefault("sync.data_start_row", 5)
	v.SetDefault("sync.tx_timeout_secs", 30)
	v.SetDefault("sync.fuzzy_threshold", 0.45)
	v.SetDefault("sync.placeholders", []string{"", "TBC", "TBD", "N/A", "-", "PENDING"})
	v.SetDefault("sync.validate", false)
	v.SetDefault("sync.validate_concurrency", 4)
	v.SetDefault("sync.validate_rps", 2.0)
	v.SetDefault("sync.retry_attempts", 3)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.Sync.DataStartRow < 1 {
		return nil, eris.Errorf("config: sync.data_start_row must be >= 1, got %d", cfg.Sync.DataStartRow)
	}
	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
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
