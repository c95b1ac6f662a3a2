// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/regionfs/lib/config"
	"github.com/bureau-foundation/regionfs/lib/generator"
	"github.com/bureau-foundation/regionfs/lib/provider"
	"github.com/bureau-foundation/regionfs/lib/storage"
	"github.com/bureau-foundation/regionfs/lib/storage/delta"
	"github.com/bureau-foundation/regionfs/lib/storage/sqlitestore"
	"github.com/bureau-foundation/regionfs/lib/vfile"
)

// build constructs the chunk provider and region policy a mount
// needs. The caller owns the provider and must Close it.
func build(cfg *config.Config, logger *slog.Logger) (*provider.Provider, vfile.Policy, error) {
	policy, err := newPolicy(cfg.Region)
	if err != nil {
		return nil, vfile.Policy{}, err
	}

	worldGenerator, err := newGenerator(cfg.Generator)
	if err != nil {
		return nil, vfile.Policy{}, err
	}

	backend, err := newBackend(cfg.Storage, worldGenerator, logger)
	if err != nil {
		return nil, vfile.Policy{}, err
	}

	timeout, err := cfg.Provider.TimeoutDuration()
	if err != nil {
		return nil, vfile.Policy{}, err
	}

	options := provider.Options{
		Backend:             backend,
		Generator:           worldGenerator,
		CacheEntries:        cfg.Provider.CacheEntries,
		Timeout:             timeout,
		MaxConcurrency:      cfg.Provider.MaxConcurrency,
		WriteThrough:        cfg.Provider.WriteThrough,
		FallbackToGenerator: cfg.Provider.FallbackToGenerator,
		Logger:              logger,
	}
	chunkProvider, err := provider.New(options)
	if err != nil {
		if closer, ok := backend.(interface{ Close() error }); ok {
			closer.Close()
		}
		return nil, vfile.Policy{}, fmt.Errorf("creating chunk provider: %w", err)
	}
	return chunkProvider, policy, nil
}

func newPolicy(cfg config.RegionConfig) (vfile.Policy, error) {
	layout, err := vfile.ParseLayoutKind(cfg.Layout)
	if err != nil {
		return vfile.Policy{}, err
	}
	writes, err := vfile.ParseWriteMode(cfg.Writes)
	if err != nil {
		return vfile.Policy{}, err
	}
	policy := vfile.Policy{Layout: layout, SlotSectors: cfg.SlotSectors, Writes: writes}
	if err := policy.Validate(); err != nil {
		return vfile.Policy{}, err
	}
	return policy, nil
}

// newGenerator returns nil for the none kind.
func newGenerator(cfg config.GeneratorConfig) (generator.Generator, error) {
	switch cfg.Kind {
	case "flat":
		layers := make([]generator.Layer, 0, len(cfg.Layers))
		for _, layer := range cfg.Layers {
			layers = append(layers, generator.Layer{Block: layer.Block, Count: layer.Count})
		}
		flat, err := generator.NewFlat(generator.FlatConfig{
			Layers:      layers,
			Biome:       cfg.Biome,
			DataVersion: cfg.DataVersion,
		})
		if err != nil {
			return nil, err
		}
		return flat, nil
	case "terrain":
		terrain, err := generator.NewTerrain(generator.TerrainConfig{
			Seed:        cfg.Seed,
			Biome:       cfg.Biome,
			DataVersion: cfg.DataVersion,
		})
		if err != nil {
			return nil, err
		}
		return terrain, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown generator kind %q", cfg.Kind)
	}
}

func newBackend(cfg config.StorageConfig, worldGenerator generator.Generator, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Kind {
	case "memory":
		return storage.NewMemory(), nil
	case "sqlite":
		store, err := sqlitestore.Open(sqlitestore.Config{
			Path:     cfg.Path,
			PoolSize: cfg.PoolSize,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening chunk database: %w", err)
		}
		return store, nil
	case "delta":
		if worldGenerator == nil {
			return nil, fmt.Errorf("delta storage needs a generator")
		}
		store, err := delta.Open(delta.Config{
			Path:      cfg.Path,
			PoolSize:  cfg.PoolSize,
			Generator: worldGenerator,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening delta database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
}
