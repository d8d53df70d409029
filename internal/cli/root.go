// Package cli wires the warden binary: cobra commands, viper configuration,
// and construction of the engine with its collaborators.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adversim/warden/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Autonomous security remediation engine",
	Long: `warden runs an autonomous security engine against a lab target: it queries a
knowledge base, plans one command per iteration through an LLM, executes it
through a whitelist gate, classifies the output for vulnerability signatures,
and applies validated patches with rollback.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("target", "192.168.1.99", "Target host to operate against")
	pf.String("llm-url", "http://localhost:1234", "OpenAI-compatible LLM endpoint")
	pf.String("llm-model", "qwen2.5-coder-14b-instruct", "Model name for chat completions")
	pf.String("mcp-url", "", "MCP knowledge server URL (empty: use the local sqlite store)")
	pf.String("knowledge-db", "./knowledge.db", "Path of the local knowledge store")
	pf.String("knowledge-dir", "", "Advisory directory to ingest into the local store")
	pf.Int("max-iterations", 10, "Iteration budget per objective")
	pf.String("timeout", "30s", "Per-command execution timeout")
	pf.Bool("apply", true, "Apply resolved patches (false: generate only)")
	pf.String("audit-log", "", "Audit log path (default: /var/log/warden/<role>_commands.log)")
	pf.String("metrics", "", "Metrics output path (default: /var/log/warden/<role>_metrics.json)")
	pf.String("docker-container", "", "Execute commands inside this container instead of the host shell")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")

	for flag, key := range map[string]string{
		"target":           "target",
		"llm-url":          "llm.url",
		"llm-model":        "llm.model",
		"mcp-url":          "mcp.url",
		"knowledge-db":     "knowledge.db",
		"knowledge-dir":    "knowledge.dir",
		"max-iterations":   "engine.max_iterations",
		"timeout":          "engine.command_timeout",
		"apply":            "engine.apply_patches",
		"audit-log":        "audit.log",
		"metrics":          "metrics.path",
		"docker-container": "docker.container",
		"log-level":        "logging.level",
	} {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("flag binding %s: %v", flag, err))
		}
	}

	config.SetViperDefaults()

	viper.SetConfigName("warden.config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")

	viper.SetEnvPrefix("WARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(defendCmd, attackCmd, scoreCmd)
}

// initConfig reads the config file when one exists; absence is not an error.
func initConfig() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %v\n", err)
		}
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
