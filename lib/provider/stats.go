// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of provider activity since creation.
type Stats struct {
	CacheHits      uint64
	CacheMisses    uint64
	Loads          uint64
	Generations    uint64
	Saves          uint64
	Failures       uint64
	LoadTime       time.Duration
	GenerationTime time.Duration
}

// LogValue groups the counters for structured logging.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("cache_hits", s.CacheHits),
		slog.Uint64("cache_misses", s.CacheMisses),
		slog.Uint64("loads", s.Loads),
		slog.Uint64("generations", s.Generations),
		slog.Uint64("saves", s.Saves),
		slog.Uint64("failures", s.Failures),
		slog.Duration("load_time", s.LoadTime),
		slog.Duration("generation_time", s.GenerationTime),
	)
}

type counters struct {
	cacheHits       atomic.Uint64
	cacheMisses     atomic.Uint64
	loads           atomic.Uint64
	generations     atomic.Uint64
	saves           atomic.Uint64
	failures        atomic.Uint64
	loadNanos       atomic.Int64
	generationNanos atomic.Int64
}

// Stats returns the current counters.
func (p *Provider) Stats() Stats {
	return Stats{
		CacheHits:      p.stats.cacheHits.Load(),
		CacheMisses:    p.stats.cacheMisses.Load(),
		Loads:          p.stats.loads.Load(),
		Generations:    p.stats.generations.Load(),
		Saves:          p.stats.saves.Load(),
		Failures:       p.stats.failures.Load(),
		LoadTime:       time.Duration(p.stats.loadNanos.Load()),
		GenerationTime: time.Duration(p.stats.generationNanos.Load()),
	}
}
