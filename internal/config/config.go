// Package config provides configuration management for trk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	trkerrors "github.com/trkhq/trk/internal/errors"
	"github.com/trkhq/trk/internal/util"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// TrkDir is the trk state directory
	TrkDir = ".trk"
)

// RevertConfig controls revert planning and execution behavior.
type RevertConfig struct {
	// IgnorePaths lists doublestar globs excluded from conflict
	// detection (generated files, lockfiles, docs)
	IgnorePaths []string `yaml:"ignore_paths,omitempty"`

	// RequireCleanTree refuses to execute a revert on a dirty working
	// tree (default: true)
	RequireCleanTree bool `yaml:"require_clean_tree"`
}

// Config represents the trk configuration.
type Config struct {
	// Version is the config file version
	Version int `yaml:"version"`

	// LogLevel is the slog level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// Revert behavior
	Revert RevertConfig `yaml:"revert"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version:  1,
		LogLevel: "info",
		Revert: RevertConfig{
			RequireCleanTree: true,
		},
	}
}

// Load reads configuration for the project at root with layered precedence:
// defaults, then user config (~/.trk/config.yaml), then project config
// (.trk/config.yaml), then TRK_* environment variables.
func Load(root string) (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, TrkDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(cfg, userPath); err != nil {
				return nil, err
			}
		}
	}

	projectPath := filepath.Join(root, TrkDir, ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		// Project config errors are fatal
		if err := mergeFromFile(cfg, projectPath); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TRK_REVERT_IGNORE_PATHS"); v != "" {
		cfg.Revert.IgnorePaths = strings.Split(v, ",")
	}
	if v := os.Getenv("TRK_REVERT_REQUIRE_CLEAN_TREE"); v != "" {
		cfg.Revert.RequireCleanTree = v == "true" || v == "1"
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return trkerrors.ErrConfigInvalid("log_level",
			fmt.Sprintf("%q is not one of debug, info, warn, error", c.LogLevel))
	}
	return nil
}

// Save writes the configuration to the project config file.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(root, TrkDir, ConfigFileName)
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Init creates the .trk directory structure and a default config.
func Init(root string, force bool) error {
	trkPath := filepath.Join(root, TrkDir)
	if _, err := os.Stat(trkPath); err == nil && !force {
		return trkerrors.ErrAlreadyInitialized(trkPath)
	}

	dirs := []string{
		trkPath,
		filepath.Join(trkPath, "tracks"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return Default().Save(root)
}

// IsInitialized returns true if trk is initialized at root.
func IsInitialized(root string) bool {
	_, err := os.Stat(filepath.Join(root, TrkDir))
	return err == nil
}

// FindProjectRoot walks up from the working directory until it finds a .trk
// directory.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for {
		if IsInitialized(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", trkerrors.ErrNotInitialized()
		}
		dir = parent
	}
}
