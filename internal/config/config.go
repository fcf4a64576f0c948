// Package config handles configuration loading for Ensemble.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for Ensemble.
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
	Output   OutputConfig   `mapstructure:"output"`
	History  HistoryConfig  `mapstructure:"history"`
	Debug    bool           `mapstructure:"debug"`
}

// AgentConfig holds agent subprocess settings.
type AgentConfig struct {
	// Executable is the agent binary spawned per task.
	Executable string `mapstructure:"executable"`
	// Provider is the default model provider.
	Provider string `mapstructure:"provider"`
	// Model is the default model.
	Model string `mapstructure:"model"`
	// AgentsDir overrides the user agents directory.
	AgentsDir string `mapstructure:"agents_dir"`
}

// DefaultsConfig holds default execution parameters.
type DefaultsConfig struct {
	// MaxConcurrency is the configured concurrency limit. The run command
	// does not read it: parallel mode takes --concurrency and team mode takes
	// the team definition's own limit.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// WorkspaceRoot is where team workspaces are created.
	WorkspaceRoot string `mapstructure:"workspace_root"`
}

// OutputConfig holds output truncation caps.
type OutputConfig struct {
	MaxBytes int `mapstructure:"max_bytes"`
	MaxLines int `mapstructure:"max_lines"`
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	// Enabled toggles run history recording.
	Enabled bool `mapstructure:"enabled"`
	// Path is the history database location.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
//  1. Environment variables (ENSEMBLE_*)
//  2. Project config (.ensemble.yaml in current directory or parent)
//  3. User config (~/.config/ensemble/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("ENSEMBLE")
	v.AutomaticEnv()
	v.BindEnv("agent.executable", "ENSEMBLE_AGENT_EXECUTABLE")
	v.BindEnv("agent.model", "ENSEMBLE_MODEL")
	v.BindEnv("debug", "ENSEMBLE_DEBUG")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// AgentsUserDir returns the directory holding user-level agent definitions.
func (c *Config) AgentsUserDir() string {
	if c.Agent.AgentsDir != "" {
		return c.Agent.AgentsDir
	}
	return filepath.Join(getUserConfigDir(), "agents")
}

// AgentsProjectDir returns the nearest-ancestor project agents directory,
// or "" when the current tree has none.
func AgentsProjectDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		dir := filepath.Join(cwd, ".ensemble", "agents")
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.executable", "pi")
	v.SetDefault("agent.provider", "")
	v.SetDefault("agent.model", "")

	v.SetDefault("defaults.max_concurrency", 4)
	v.SetDefault("defaults.workspace_root", filepath.Join(os.TempDir(), "ensemble"))

	v.SetDefault("output.max_bytes", 50*1024)
	v.SetDefault("output.max_lines", 2000)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", filepath.Join(getUserConfigDir(), "history.db"))

	v.SetDefault("debug", false)
}

// getUserConfigDir returns the XDG config directory for Ensemble.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ensemble")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "ensemble")
	}
	return filepath.Join(home, ".config", "ensemble")
}

// findProjectConfig searches for .ensemble.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".ensemble.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with built-in default values.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Executable: "pi",
		},
		Defaults: DefaultsConfig{
			MaxConcurrency: 4,
			WorkspaceRoot:  filepath.Join(os.TempDir(), "ensemble"),
		},
		Output: OutputConfig{
			MaxBytes: 50 * 1024,
			MaxLines: 2000,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(getUserConfigDir(), "history.db"),
		},
	}
}
