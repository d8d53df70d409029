// Package config carries the engine's runtime configuration, resolved from
// flags, warden.config.yaml, and WARDEN_-prefixed environment variables via
// viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Engine roles.
const (
	RoleDefense = "defense"
	RoleOffense = "offense"
)

// Config is the resolved configuration for one engine run.
type Config struct {
	Role   string
	Target string

	MCPURL      string
	KnowledgeDB string
	AdvisoryDir string

	LLMURL    string
	LLMModel  string
	LLMAPIKey string

	MaxIterations  int
	CommandTimeout time.Duration
	ApplyPatches   bool

	AuditLogPath string
	MetricsPath  string

	DockerContainer string

	LogLevel string
}

// SetViperDefaults registers every configuration default. Flag and file
// values override these.
func SetViperDefaults() {
	viper.SetDefault("target", "192.168.1.99")

	viper.SetDefault("mcp.url", "")
	viper.SetDefault("knowledge.db", "./knowledge.db")
	viper.SetDefault("knowledge.dir", "")

	viper.SetDefault("llm.url", "http://localhost:1234")
	viper.SetDefault("llm.model", "qwen2.5-coder-14b-instruct")
	viper.SetDefault("llm.api_key", "lm-studio")

	viper.SetDefault("engine.max_iterations", 10)
	viper.SetDefault("engine.command_timeout", "30s")
	viper.SetDefault("engine.apply_patches", true)

	viper.SetDefault("audit.log", "")
	viper.SetDefault("metrics.path", "")

	viper.SetDefault("docker.container", "")

	viper.SetDefault("logging.level", "info")
}

// FromViper builds a Config for role from the current viper state. Role-
// dependent output paths resolve here so the defensive and offensive engines
// never share an audit trail.
func FromViper(role string) (*Config, error) {
	cfg := &Config{
		Role:            role,
		Target:          viper.GetString("target"),
		MCPURL:          viper.GetString("mcp.url"),
		KnowledgeDB:     viper.GetString("knowledge.db"),
		AdvisoryDir:     viper.GetString("knowledge.dir"),
		LLMURL:          viper.GetString("llm.url"),
		LLMModel:        viper.GetString("llm.model"),
		LLMAPIKey:       viper.GetString("llm.api_key"),
		MaxIterations:   viper.GetInt("engine.max_iterations"),
		ApplyPatches:    viper.GetBool("engine.apply_patches"),
		AuditLogPath:    viper.GetString("audit.log"),
		MetricsPath:     viper.GetString("metrics.path"),
		DockerContainer: viper.GetString("docker.container"),
		LogLevel:        viper.GetString("logging.level"),
	}

	timeout, err := time.ParseDuration(viper.GetString("engine.command_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid engine.command_timeout: %w", err)
	}
	cfg.CommandTimeout = timeout

	if cfg.AuditLogPath == "" {
		cfg.AuditLogPath = fmt.Sprintf("/var/log/warden/%s_commands.log", role)
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = fmt.Sprintf("/var/log/warden/%s_metrics.json", role)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Role != RoleDefense && c.Role != RoleOffense {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	if c.LLMURL == "" {
		return fmt.Errorf("llm.url is required")
	}
	if c.LLMModel == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("engine.max_iterations must be positive")
	}
	return nil
}
