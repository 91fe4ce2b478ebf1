// Package engine exposes the platform's ML core as a single facade:
// typed requests in, typed results or kind-tagged errors out.
package engine

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Config controls how a Core is assembled.
type Config struct {
	// StorageDir is the directory for persisted model blobs. Empty keeps
	// everything in memory.
	StorageDir string `yaml:"storage_dir"`
	// LogLevel is one of debug, info, warn, error, disabled.
	LogLevel string `yaml:"log_level"`
	// DefaultSeed is injected as random_state into training requests
	// that do not set one, so runs are reproducible by default.
	DefaultSeed int64 `yaml:"default_seed"`
}

// DefaultConfig returns an in-memory, info-level configuration.
func DefaultConfig() Config {
	return Config{LogLevel: "info", DefaultSeed: 42}
}

// LoadConfig reads a YAML config file, filling unset fields with
// defaults.
func LoadConfig(path string) (Config, error) {
	const op = "engine.LoadConfig"
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewStorageError(op, err)
	}
	return ParseConfig(raw)
}

// ParseConfig parses YAML config bytes, filling unset fields with
// defaults.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.NewInputError("engine.ParseConfig", "malformed config: "+err.Error())
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}
