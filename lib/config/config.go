// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of one mount.
type Config struct {
	// Mountpoint is the directory the region files appear in,
	// usually a world's region/ directory.
	Mountpoint string `yaml:"mountpoint" json:"mountpoint"`

	// AllowOther lets other users (the game server's account) access
	// the mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other" json:"allow_other"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Generator GeneratorConfig `yaml:"generator" json:"generator"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Provider  ProviderConfig  `yaml:"provider" json:"provider"`
	Region    RegionConfig    `yaml:"region" json:"region"`
}

// GeneratorConfig selects the world generator.
type GeneratorConfig struct {
	// Kind is flat, terrain, or none. With none, only stored chunks
	// exist.
	Kind string `yaml:"kind" json:"kind"`

	// Seed drives the terrain generator.
	Seed int64 `yaml:"seed" json:"seed"`

	// DataVersion is stamped on generated chunks. Zero uses the
	// generator's default.
	DataVersion int32 `yaml:"data_version" json:"data_version"`

	// Biome fills every generated chunk. Empty uses plains.
	Biome string `yaml:"biome" json:"biome"`

	// Layers are the flat world's layers from the bottom of the world
	// upward. Empty uses bedrock, two dirt, grass.
	Layers []LayerConfig `yaml:"layers" json:"layers"`
}

// LayerConfig is one flat world layer.
type LayerConfig struct {
	Block string `yaml:"block" json:"block"`
	Count int    `yaml:"count" json:"count"`
}

// StorageConfig selects where written chunks persist.
type StorageConfig struct {
	// Kind is memory, sqlite, or delta.
	Kind string `yaml:"kind" json:"kind"`

	// Path is the database file for sqlite and delta.
	Path string `yaml:"path" json:"path"`

	// PoolSize is the number of database connections. Zero uses the
	// pool default.
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// ProviderConfig tunes the chunk provider.
type ProviderConfig struct {
	CacheEntries int `yaml:"cache_entries" json:"cache_entries"`

	// Timeout bounds each storage or generator call, as a Go
	// duration string.
	Timeout string `yaml:"timeout" json:"timeout"`

	// MaxConcurrency bounds concurrent loads and generations. Zero
	// uses four per CPU.
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`

	WriteThrough        bool `yaml:"write_through" json:"write_through"`
	FallbackToGenerator bool `yaml:"fallback_to_generator" json:"fallback_to_generator"`
}

// RegionConfig selects how region files are laid out and written.
type RegionConfig struct {
	// Layout is fixed or packed.
	Layout string `yaml:"layout" json:"layout"`

	// SlotSectors is the per-chunk budget of the fixed layout.
	SlotSectors int `yaml:"slot_sectors" json:"slot_sectors"`

	// Writes is stateless or stateful.
	Writes string `yaml:"writes" json:"writes"`
}

// Default returns the default configuration: a flat world served
// read-only from memory.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Generator: GeneratorConfig{
			Kind: "flat",
		},
		Storage: StorageConfig{
			Kind: "memory",
		},
		Provider: ProviderConfig{
			CacheEntries: 4096,
			Timeout:      "10s",
		},
		Region: RegionConfig{
			Layout:      "fixed",
			SlotSectors: 64,
			Writes:      "stateless",
		},
	}
}

// Load loads configuration from the file named by REGIONFS_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("REGIONFS_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("REGIONFS_CONFIG environment variable not set; " +
			"set it to the path of your regionfs.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults and
// expands variables in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
// ${REGIONFS_ROOT} in the storage path refers to the mountpoint's
// parent, the world directory.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Mountpoint = expandVars(c.Mountpoint, vars)
	if c.Mountpoint != "" {
		vars["REGIONFS_ROOT"] = filepath.Dir(c.Mountpoint)
	}
	c.Storage.Path = expandVars(c.Storage.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// TimeoutDuration parses Provider.Timeout. Empty means zero, which
// the provider replaces with its default.
func (p ProviderConfig) TimeoutDuration() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("provider.timeout: %w", err)
	}
	return duration, nil
}

// Validate checks the configuration for errors. It reports every
// problem, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Mountpoint == "" {
		errs = append(errs, fmt.Errorf("mountpoint is required"))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	switch c.Generator.Kind {
	case "flat":
		total := 0
		for i, layer := range c.Generator.Layers {
			if layer.Block == "" {
				errs = append(errs, fmt.Errorf("generator.layers[%d]: block is required", i))
			}
			if layer.Count < 1 {
				errs = append(errs, fmt.Errorf("generator.layers[%d]: count must be positive", i))
			}
			total += layer.Count
		}
		if total > 384 {
			errs = append(errs, fmt.Errorf("generator.layers: %d blocks exceed the world height of 384", total))
		}
	case "terrain", "none":
		if len(c.Generator.Layers) > 0 {
			errs = append(errs, fmt.Errorf("generator.layers applies only to the flat generator"))
		}
	default:
		errs = append(errs, fmt.Errorf("generator.kind must be one of flat, terrain, none; got %q", c.Generator.Kind))
	}
	if c.Generator.DataVersion < 0 {
		errs = append(errs, fmt.Errorf("generator.data_version must not be negative"))
	}

	switch c.Storage.Kind {
	case "memory":
	case "sqlite", "delta":
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for %s storage", c.Storage.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.kind must be one of memory, sqlite, delta; got %q", c.Storage.Kind))
	}
	if c.Storage.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("storage.pool_size must not be negative"))
	}
	if c.Storage.Kind == "delta" && c.Generator.Kind == "none" {
		errs = append(errs, fmt.Errorf("delta storage needs a generator to diff against"))
	}

	if c.Provider.CacheEntries < 0 {
		errs = append(errs, fmt.Errorf("provider.cache_entries must not be negative"))
	}
	if c.Provider.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("provider.max_concurrency must not be negative"))
	}
	if timeout, err := c.Provider.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	} else if timeout < 0 {
		errs = append(errs, fmt.Errorf("provider.timeout must not be negative"))
	}
	if c.Generator.Kind == "none" && (c.Provider.WriteThrough || c.Provider.FallbackToGenerator) {
		errs = append(errs, fmt.Errorf("provider.write_through and provider.fallback_to_generator need a generator"))
	}

	switch c.Region.Layout {
	case "fixed":
		if c.Region.SlotSectors < 1 || c.Region.SlotSectors > 255 {
			errs = append(errs, fmt.Errorf("region.slot_sectors must be in [1, 255]; got %d", c.Region.SlotSectors))
		}
	case "packed":
	default:
		errs = append(errs, fmt.Errorf("region.layout must be fixed or packed; got %q", c.Region.Layout))
	}
	if c.Region.Writes != "stateless" && c.Region.Writes != "stateful" {
		errs = append(errs, fmt.Errorf("region.writes must be stateless or stateful; got %q", c.Region.Writes))
	}

	return errors.Join(errs...)
}
