// Package config provides configuration loading and validation for the server and CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FLOW_PORT.
const EnvPrefix = "FLOW"

// Config is the runtime configuration. Values come from defaults, then an
// optional config file, then the environment.
type Config struct {
	Port        int    `mapstructure:"port" validate:"min=1,max=65535"`
	DatabaseURL string `mapstructure:"database_url" validate:"required"`

	GeminiAPIKey         string `mapstructure:"gemini_api_key"`
	GeminiAPIKeySecretID string `mapstructure:"gemini_api_key_secret_id"`
	LLMProvider          string `mapstructure:"llm_provider" validate:"oneof=gemini genai"`
	LLMModel             string `mapstructure:"llm_model"`

	StageCeiling time.Duration `mapstructure:"stage_ceiling" validate:"gt=0"`
	AgentTimeout time.Duration `mapstructure:"agent_timeout" validate:"gt=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	PollBudget   time.Duration `mapstructure:"poll_budget" validate:"gt=0"`

	StorageBackend   string `mapstructure:"storage_backend" validate:"oneof=fs s3"`
	StorageDir       string `mapstructure:"storage_dir"`
	StorageBucket    string `mapstructure:"storage_bucket"`
	StorageRegion    string `mapstructure:"storage_region"`
	StoragePublicURL string `mapstructure:"storage_public_url"`

	RateLimitEnabled bool `mapstructure:"rate_limit_enabled"`

	APIURL    string `mapstructure:"api_url" validate:"required,url"`
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`
}

var defaults = map[string]any{
	"port":                     8080,
	"database_url":             "sqlite://flow.db",
	"gemini_api_key":           "",
	"gemini_api_key_secret_id": "",
	"llm_provider":             "gemini",
	"llm_model":                "",
	"stage_ceiling":            300 * time.Second,
	"agent_timeout":            270 * time.Second,
	"poll_interval":            5 * time.Second,
	"poll_budget":              6 * time.Minute,
	"storage_backend":          "fs",
	"storage_dir":              "artifacts",
	"storage_bucket":           "flow-artifacts",
	"storage_region":           "eu-west-1",
	"storage_public_url":       "",
	"rate_limit_enabled":       true,
	"api_url":                  "http://localhost:8080",
	"log_level":                "info",
	"log_format":               "text",
}

// unprefixed are conventional variable names accepted besides the FLOW_ ones.
var unprefixed = map[string]string{
	"database_url":   "DATABASE_URL",
	"gemini_api_key": "GEMINI_API_KEY",
	"port":           "PORT",
}

// Load builds a Config. path may be empty; when set the file must exist and
// its format follows its extension (yaml, json, toml).
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range unprefixed {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks field values and the relations between the timing settings.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// A stage must be able to record its own failure before the ceiling.
	if c.AgentTimeout >= c.StageCeiling {
		return fmt.Errorf("config error: agent_timeout (%s) must be shorter than stage_ceiling (%s)", c.AgentTimeout, c.StageCeiling)
	}
	if c.PollBudget <= c.PollInterval {
		return fmt.Errorf("config error: poll_budget (%s) must be longer than poll_interval (%s)", c.PollBudget, c.PollInterval)
	}
	if c.StorageBackend == "s3" && c.StorageBucket == "" {
		return errors.New("config error: storage_bucket is required for the s3 backend")
	}
	return nil
}
