// Package config loads engine configuration from config.yaml with
// environment-variable overrides. Secrets only come from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the query engine.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"5000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Language-model service configuration
	LLM LLMConfig `yaml:"llm"`

	// Chat history persistence (optional; in-memory store when unset)
	ChatStore ChatStoreConfig `yaml:"chat_store"`

	// Engine tuning knobs
	Engine EngineConfig `yaml:"engine"`
}

// LLMConfig holds the query-generation model settings.
type LLMConfig struct {
	// Provider selects the client implementation: "openai" or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`

	// Endpoint overrides the provider's default base URL (optional).
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`

	Model string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`

	// Secrets - environment only
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`

	TimeoutSeconds int `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`
}

// ChatStoreConfig holds the persistence store connection.
type ChatStoreConfig struct {
	// URL is a PostgreSQL connection string. Secret - environment only.
	URL string `yaml:"-" env:"DATABASE_URL"`
}

// EngineConfig holds query-engine tuning parameters.
type EngineConfig struct {
	// SchemaTTLMinutes is how long a cached schema snapshot stays fresh.
	SchemaTTLMinutes int `yaml:"schema_ttl_minutes" env:"SCHEMA_TTL_MINUTES" env-default:"10"`

	// RowCap bounds the number of rows in a result envelope.
	RowCap int `yaml:"row_cap" env:"RESULT_ROW_CAP" env-default:"500"`

	// MaxPromptEntities bounds schema entities embedded in a prompt.
	MaxPromptEntities int `yaml:"max_prompt_entities" env:"MAX_PROMPT_ENTITIES" env-default:"25"`

	// MaxPromptTurns bounds prior turns embedded for continuity.
	MaxPromptTurns int `yaml:"max_prompt_turns" env:"MAX_PROMPT_TURNS" env-default:"5"`

	// ExecTimeoutSeconds is the hard budget for one adapter execute call.
	ExecTimeoutSeconds int `yaml:"exec_timeout_seconds" env:"EXEC_TIMEOUT_SECONDS" env-default:"30"`
}

// SchemaTTL returns the snapshot TTL as a duration.
func (e *EngineConfig) SchemaTTL() time.Duration {
	return time.Duration(e.SchemaTTLMinutes) * time.Minute
}

// ExecTimeout returns the execution budget as a duration.
func (e *EngineConfig) ExecTimeout() time.Duration {
	return time.Duration(e.ExecTimeoutSeconds) * time.Second
}

// Timeout returns the generation budget as a duration.
func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// APIKey returns the credential for the configured provider.
func (l *LLMConfig) APIKey() string {
	if l.Provider == "anthropic" {
		return l.AnthropicAPIKey
	}
	return l.OpenAIAPIKey
}

// Load reads configuration from config.yaml with environment overrides.
// When no config.yaml exists, configuration comes from the environment
// alone. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLM.Provider)
	}

	if c.Engine.RowCap <= 0 {
		return fmt.Errorf("result row cap must be positive, got %d", c.Engine.RowCap)
	}

	return nil
}
