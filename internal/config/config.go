package config

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. GAGES_NWIS_BASE_URL.
const EnvPrefix = "GAGES"

// Config holds the full application configuration.
type Config struct {
	NWIS     NWISConfig     `yaml:"nwis" mapstructure:"nwis"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// NWISConfig configures the site service client.
type NWISConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// OutputConfig controls how features are written.
type OutputConfig struct {
	TruncateFieldNames bool    `yaml:"truncate_field_names" mapstructure:"truncate_field_names"`
	NumericSentinel    float64 `yaml:"numeric_sentinel" mapstructure:"numeric_sentinel"`
	TextSentinel       string  `yaml:"text_sentinel" mapstructure:"text_sentinel"`
	DBFEncoding        string  `yaml:"dbf_encoding" mapstructure:"dbf_encoding"`
}

// PostgresConfig tunes the pool used for PostGIS outputs.
type PostgresConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("nwis.base_url", "https://waterservices.usgs.gov/nwis/site/")
	v.SetDefault("nwis.user_agent", "usgs-gages/1.0")
	v.SetDefault("nwis.timeout_secs", 60)
	v.SetDefault("nwis.max_retries", 1)
	v.SetDefault("nwis.rate_per_sec", 5)
	v.SetDefault("output.truncate_field_names", true)
	v.SetDefault("output.numeric_sentinel", -9999)
	v.SetDefault("output.text_sentinel", "")
	v.SetDefault("output.dbf_encoding", "windows-1252")
	v.SetDefault("postgres.max_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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

// Validate checks values Load cannot type-check.
func (c *Config) Validate() error {
	var problems []string

	u, err := url.Parse(c.NWIS.BaseURL)
	if err != nil || !u.IsAbs() {
		problems = append(problems, "nwis.base_url must be an absolute URL")
	}
	if c.NWIS.TimeoutSecs <= 0 {
		problems = append(problems, "nwis.timeout_secs must be positive")
	}
	if c.NWIS.MaxRetries < 1 {
		problems = append(problems, "nwis.max_retries must be at least 1")
	}
	if c.NWIS.RatePerSec <= 0 {
		problems = append(problems, "nwis.rate_per_sec must be positive")
	}
	if c.Postgres.MaxConns < 1 {
		problems = append(problems, "postgres.max_conns must be at least 1")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		problems = append(problems, "log.format must be json or console")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
