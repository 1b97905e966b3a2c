// Package config loads anansi's runtime knobs from defaults, an optional YAML
// file, a .env file and the environment, highest priority last.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/david/anansi/internal/ingest"
)

// Ledger backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned by Validate for an unsupported ledger backend.
var ErrUnknownBackend = errors.New("unknown ledger backend")

type Config struct {
	FutureOnly      bool          `mapstructure:"future_only" yaml:"future_only"`
	RequireDeadline bool          `mapstructure:"require_deadline" yaml:"require_deadline"`
	MaxLines        int           `mapstructure:"max_lines" yaml:"max_lines"`
	MaxItems        int           `mapstructure:"max_items" yaml:"max_items"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	PublishTimeout  time.Duration `mapstructure:"publish_timeout" yaml:"publish_timeout"`
	Parallelism     int           `mapstructure:"parallelism" yaml:"parallelism"`
	SourcesFile     string        `mapstructure:"sources_file" yaml:"sources_file,omitempty"`

	SlackWebhookURL string `mapstructure:"slack_webhook_url" yaml:"slack_webhook_url,omitempty"`
	DatabaseURL     string `mapstructure:"database_url" yaml:"database_url,omitempty"`
	RecordRuns      bool   `mapstructure:"record_runs" yaml:"record_runs"`

	Ledger LedgerConfig `mapstructure:"ledger" yaml:"ledger"`
	Redis  RedisConfig  `mapstructure:"redis" yaml:"redis"`
	HTTP   HTTPConfig   `mapstructure:"http" yaml:"http"`
	Auth   AuthConfig   `mapstructure:"auth" yaml:"auth"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`

	v *viper.Viper
}

type LedgerConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
	Key     string `mapstructure:"key" yaml:"key"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address" yaml:"address,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`
	AdminSecretHash string `mapstructure:"admin_secret_hash" yaml:"admin_secret_hash,omitempty"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// envBindings maps config keys to the environment names operators already use.
var envBindings = map[string][]string{
	"future_only":            {"ANANSI_FUTURE_ONLY"},
	"require_deadline":       {"ANANSI_REQUIRE_DEADLINE"},
	"max_lines":              {"ANANSI_MAX_LINES"},
	"max_items":              {"ANANSI_MAX_ITEMS"},
	"fetch_timeout":          {"ANANSI_FETCH_TIMEOUT"},
	"publish_timeout":        {"ANANSI_PUBLISH_TIMEOUT"},
	"parallelism":            {"ANANSI_PARALLELISM"},
	"sources_file":           {"ANANSI_SOURCES_FILE"},
	"slack_webhook_url":      {"SLACK_WEBHOOK_URL"},
	"database_url":           {"DATABASE_URL"},
	"record_runs":            {"ANANSI_RECORD_RUNS"},
	"ledger.backend":         {"ANANSI_LEDGER_BACKEND"},
	"ledger.path":            {"ANANSI_STATE_FILE"},
	"ledger.key":             {"ANANSI_LEDGER_KEY"},
	"redis.address":          {"REDIS_ADDRESS"},
	"redis.password":         {"REDIS_PASSWORD"},
	"redis.db":               {"REDIS_DB"},
	"http.port":              {"PORT"},
	"auth.jwt_secret":        {"ANANSI_JWT_SECRET"},
	"auth.admin_secret_hash": {"ANANSI_ADMIN_SECRET_HASH"},
	"log.level":              {"ANANSI_LOG_LEVEL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("future_only", true)
	v.SetDefault("require_deadline", false)
	v.SetDefault("max_lines", 14)
	v.SetDefault("max_items", 60)
	v.SetDefault("fetch_timeout", 90*time.Second)
	v.SetDefault("publish_timeout", 15*time.Second)
	v.SetDefault("parallelism", 4)
	v.SetDefault("record_runs", false)
	v.SetDefault("ledger.backend", BackendFile)
	v.SetDefault("ledger.path", "state.json")
	v.SetDefault("ledger.key", "anansi:seen")
	v.SetDefault("redis.db", 0)
	v.SetDefault("http.port", "8081")
	v.SetDefault("log.level", "info")
}

// Load reads configuration. configFile is optional; when empty only
// defaults, .env and the environment apply.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.v = v
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendFile, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Ledger.Backend)
	}
	if c.MaxLines < 1 {
		return fmt.Errorf("max_lines must be at least 1, got %d", c.MaxLines)
	}
	return nil
}

// ApplySourceOverrides overlays per-source knobs onto the registry. For a
// source with id "afd" the keys are sources.afd.since_days, .ogp_only and
// .enabled, also read from AFD_SINCE_DAYS, AFD_OGP_ONLY and INCLUDE_AFD.
// Sources without a max_items of their own inherit the global value.
func (c *Config) ApplySourceOverrides(reg *ingest.Registry) error {
	for i := range reg.Sources {
		src := &reg.Sources[i]
		prefix := strings.ToUpper(src.ID)
		base := "sources." + src.ID

		if err := c.v.BindEnv(base+".since_days", prefix+"_SINCE_DAYS"); err != nil {
			return err
		}
		if err := c.v.BindEnv(base+".ogp_only", prefix+"_OGP_ONLY"); err != nil {
			return err
		}
		if err := c.v.BindEnv(base+".enabled", "INCLUDE_"+prefix); err != nil {
			return err
		}

		if c.v.IsSet(base + ".since_days") {
			src.SinceDays = c.v.GetInt(base + ".since_days")
		}
		if c.v.IsSet(base + ".ogp_only") {
			src.OGPOnly = c.v.GetBool(base + ".ogp_only")
		}
		if c.v.IsSet(base + ".enabled") {
			src.Disabled = !c.v.GetBool(base + ".enabled")
		}
		if src.MaxItems == 0 {
			src.MaxItems = c.MaxItems
		}
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.SlackWebhookURL = mask(c.SlackWebhookURL)
	c.DatabaseURL = mask(c.DatabaseURL)
	c.Redis.Password = mask(c.Redis.Password)
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.Auth.AdminSecretHash = mask(c.Auth.AdminSecretHash)
	c.v = nil
	return c
}
