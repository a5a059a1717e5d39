package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, defaults are applied to fields left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./agentflow.yaml, ~/.agentflow/config.yaml.
// When no file exists, the built-in defaults are returned: the tool is
// usable with zero configuration.
func LoadDefault() (*Config, error) {
	candidates := []string{"agentflow.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".agentflow", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return Default(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills unset fields with built-in values. AGENTFLOW_STATE_DIR
// wins over base_dir: phase children run inside the worktree, where a
// relative base_dir would resolve against the wrong tree.
func applyDefaults(cfg *Config) {
	if dir := os.Getenv("AGENTFLOW_STATE_DIR"); dir != "" {
		cfg.BaseDir = dir
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = ".agentflow"
	}
	if cfg.TreesDir == "" {
		cfg.TreesDir = "trees"
	}
	if cfg.Ports.BackendBase == 0 {
		cfg.Ports.BackendBase = 9100
	}
	if cfg.Ports.FrontendBase == 0 {
		cfg.Ports.FrontendBase = 9200
	}
	if cfg.Ports.PoolSize == 0 {
		cfg.Ports.PoolSize = 100
	}
	if cfg.Database.Path == "" && cfg.Database.DSN == "" {
		cfg.Database.Path = filepath.Join(cfg.BaseDir, "agentflow.db")
	}
}
