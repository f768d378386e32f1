// Package config loads Forge's process-wide configuration: provider
// credentials and defaults, orchestrator tunables, MCP server definitions,
// and logging/tracing setup. It is grounded in the teacher's cmd/kodelet
// main.go init() — same viper defaults-then-env-then-file layering, same
// FORGE_-prefixed env vars with "." replaced by "_" for nested keys.
package config

import (
	"context"
	"strings"

	"github.com/spf13/viper"

	"github.com/vanshchauhan21/forge/pkg/dispatcher"
	"github.com/vanshchauhan21/forge/pkg/logger"
	"github.com/vanshchauhan21/forge/pkg/orchestrator"
)

// Config is the fully-resolved process configuration.
type Config struct {
	Provider     string                                `mapstructure:"provider"`
	Model        string                                `mapstructure:"model"`
	MaxTokens    int                                   `mapstructure:"max_tokens"`
	WorkflowDirs []string                              `mapstructure:"workflow_dirs"`
	DBPath       string                                `mapstructure:"db_path"`
	LogLevel     string                                `mapstructure:"log_level"`
	LogFormat    string                                `mapstructure:"log_format"`
	Tracing      TracingConfig                         `mapstructure:"tracing"`
	Orchestrator OrchestratorConfig                    `mapstructure:"orchestrator"`
	MCPServers   map[string]dispatcher.MCPServerConfig `mapstructure:"mcp"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Sampler string  `mapstructure:"sampler"`
	Ratio   float64 `mapstructure:"ratio"`
}

// OrchestratorConfig mirrors orchestrator.Config with viper-friendly tags;
// ToOrchestratorConfig converts it once a ContextWindowForModel resolver is
// available.
type OrchestratorConfig struct {
	CompactionRatio    float64 `mapstructure:"compaction_ratio"`
	ResponseBufferSize int     `mapstructure:"response_buffer_size"`
}

// ToOrchestratorConfig resolves this OrchestratorConfig into an
// orchestrator.Config, falling back to orchestrator.DefaultConfig's values
// for anything left at its zero value.
func (c OrchestratorConfig) ToOrchestratorConfig(contextWindowForModel func(string) int) orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	if c.CompactionRatio > 0 {
		cfg.CompactionRatio = c.CompactionRatio
	}
	if c.ResponseBufferSize > 0 {
		cfg.ResponseBufferSize = c.ResponseBufferSize
	}
	if contextWindowForModel != nil {
		cfg.ContextWindowForModel = contextWindowForModel
	}
	return cfg
}

// Init sets viper's defaults, wires FORGE_-prefixed environment variables,
// and loads config.yaml from $HOME/.forge or the working directory if
// present. Call once at process startup, mirroring the teacher's
// cmd/kodelet/main.go init().
func Init() {
	viper.SetDefault("provider", "anthropic")
	viper.SetDefault("model", "claude-sonnet-4-0")
	viper.SetDefault("max_tokens", 8192)
	viper.SetDefault("workflow_dirs", []string{"./workflows"})
	viper.SetDefault("db_path", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.sampler", "ratio")
	viper.SetDefault("tracing.ratio", 1.0)
	viper.SetDefault("orchestrator.compaction_ratio", 0.8)
	viper.SetDefault("orchestrator.response_buffer_size", 1)
	viper.SetDefault("mcp", map[string]dispatcher.MCPServerConfig{})

	viper.SetEnvPrefix("FORGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.forge")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err == nil {
		logger.G(context.Background()).WithField("config_file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

// Load unmarshals viper's current state into a Config. Call Init first.
func Load() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
