package team

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a team definition from a YAML file and validates the basics
// that do not require graph construction. Full validation happens in Build.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read team file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML team definition.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse team file: %w", err)
	}

	if len(cfg.Members) == 0 {
		return Config{}, fmt.Errorf("team has no members")
	}
	if len(cfg.Tasks) == 0 {
		return Config{}, fmt.Errorf("team has no tasks")
	}
	if cfg.Name == "" {
		cfg.Name = "team"
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MaxConcurrency > MaxConcurrencyCap {
		cfg.MaxConcurrency = MaxConcurrencyCap
	}
	return cfg, nil
}
