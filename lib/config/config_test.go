// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Generator.Kind != "flat" {
		t.Errorf("expected generator.kind=flat, got %s", cfg.Generator.Kind)
	}
	if cfg.Storage.Kind != "memory" {
		t.Errorf("expected storage.kind=memory, got %s", cfg.Storage.Kind)
	}
	if cfg.Region.Layout != "fixed" || cfg.Region.SlotSectors != 64 || cfg.Region.Writes != "stateless" {
		t.Errorf("unexpected region defaults: %+v", cfg.Region)
	}

	// Only the mountpoint is missing.
	cfg.Mountpoint = "/mnt/world/region"
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with a mountpoint do not validate: %v", err)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv("REGIONFS_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when REGIONFS_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "REGIONFS_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, "regionfs.yaml", `
mountpoint: /srv/world/region
allow_other: true
generator:
  kind: flat
  layers:
    - {block: bedrock, count: 1}
    - {block: stone, count: 60}
storage:
  kind: delta
  path: /srv/world/regionfs.db
provider:
  timeout: 2s
  write_through: true
region:
  writes: stateful
`)
	t.Setenv("REGIONFS_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Mountpoint != "/srv/world/region" || !cfg.AllowOther {
		t.Errorf("mount settings = %q allow_other=%v", cfg.Mountpoint, cfg.AllowOther)
	}
	if len(cfg.Generator.Layers) != 2 || cfg.Generator.Layers[1] != (LayerConfig{Block: "stone", Count: 60}) {
		t.Errorf("layers = %+v", cfg.Generator.Layers)
	}
	if cfg.Storage.Kind != "delta" || cfg.Storage.Path != "/srv/world/regionfs.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if timeout, err := cfg.Provider.TimeoutDuration(); err != nil || timeout != 2*time.Second {
		t.Errorf("timeout = %v, %v", timeout, err)
	}

	// Unset fields keep their defaults.
	if cfg.Provider.CacheEntries != 4096 || cfg.Region.Layout != "fixed" || cfg.LogLevel != "info" {
		t.Errorf("defaults lost: cache=%d layout=%s log=%s", cfg.Provider.CacheEntries, cfg.Region.Layout, cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "regionfs.jsonc", `{
  // Terrain world with packed regions.
  "mountpoint": "/srv/world/region",
  "generator": {"kind": "terrain", "seed": 42,},
  /* Sizes come from the entries. */
  "region": {"layout": "packed"},
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Generator.Kind != "terrain" || cfg.Generator.Seed != 42 || cfg.Region.Layout != "packed" {
		t.Errorf("loaded %+v %+v", cfg.Generator, cfg.Region)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}
	if _, err := LoadFile(writeConfig(t, "bad.yaml", "generator: [unclosed")); err == nil {
		t.Error("LoadFile of malformed YAML succeeded")
	}
	if _, err := LoadFile(writeConfig(t, "bad.json", `{"mountpoint": }`)); err == nil {
		t.Error("LoadFile of malformed JSON succeeded")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("HOME", "/home/steve")
	path := writeConfig(t, "regionfs.yaml", `
mountpoint: ${HOME}/worlds/alpha/region
storage:
  kind: sqlite
  path: ${REGIONFS_ROOT}/chunks.db
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Mountpoint != "/home/steve/worlds/alpha/region" {
		t.Errorf("mountpoint = %q", cfg.Mountpoint)
	}
	if cfg.Storage.Path != "/home/steve/worlds/alpha/chunks.db" {
		t.Errorf("storage.path = %q", cfg.Storage.Path)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/regionfs",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/regionfs",
		},
		{
			input:    "${REGIONFS_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"no mountpoint", func(c *Config) { c.Mountpoint = "" }, "mountpoint is required"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown generator", func(c *Config) { c.Generator.Kind = "amplified" }, "generator.kind"},
		{"empty layer block", func(c *Config) { c.Generator.Layers = []LayerConfig{{Count: 1}} }, "block is required"},
		{"zero layer count", func(c *Config) { c.Generator.Layers = []LayerConfig{{Block: "stone"}} }, "count must be positive"},
		{"layers above world", func(c *Config) { c.Generator.Layers = []LayerConfig{{Block: "stone", Count: 385}} }, "world height"},
		{"layers on terrain", func(c *Config) {
			c.Generator.Kind = "terrain"
			c.Generator.Layers = []LayerConfig{{Block: "stone", Count: 1}}
		}, "only to the flat generator"},
		{"unknown storage", func(c *Config) { c.Storage.Kind = "s3" }, "storage.kind"},
		{"sqlite without path", func(c *Config) { c.Storage.Kind = "sqlite" }, "storage.path is required"},
		{"delta without generator", func(c *Config) {
			c.Storage = StorageConfig{Kind: "delta", Path: "/tmp/d.db"}
			c.Generator.Kind = "none"
		}, "needs a generator"},
		{"fallback without generator", func(c *Config) {
			c.Generator.Kind = "none"
			c.Provider.FallbackToGenerator = true
		}, "need a generator"},
		{"bad timeout", func(c *Config) { c.Provider.Timeout = "soon" }, "provider.timeout"},
		{"negative timeout", func(c *Config) { c.Provider.Timeout = "-1s" }, "must not be negative"},
		{"negative cache", func(c *Config) { c.Provider.CacheEntries = -1 }, "cache_entries"},
		{"slot too large", func(c *Config) { c.Region.SlotSectors = 256 }, "slot_sectors"},
		{"unknown layout", func(c *Config) { c.Region.Layout = "sparse" }, "region.layout"},
		{"unknown writes", func(c *Config) { c.Region.Writes = "append" }, "region.writes"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.Mountpoint = "/mnt/region"
			test.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not mention %q", err, test.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Storage.Kind = "tape"
	cfg.Region.Writes = "sometimes"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate succeeded")
	}
	for _, want := range []string{"mountpoint", "storage.kind", "region.writes"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestGeneratorNoneAllowsPackedLayout(t *testing.T) {
	cfg := Default()
	cfg.Mountpoint = "/mnt/region"
	cfg.Generator.Kind = "none"
	cfg.Storage = StorageConfig{Kind: "sqlite", Path: "/tmp/chunks.db"}
	cfg.Region.Layout = "packed"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
