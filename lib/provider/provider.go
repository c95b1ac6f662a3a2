// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider resolves chunk coordinates to framed region
// entries. Stored entries win over generated ones; results are kept
// in an LRU cache, and concurrent requests for the same chunk share a
// single load or generation.
//
// Every backend and generator call runs under a timeout on a context
// detached from the requesting caller. A caller that gives up returns
// early with its own context error while the shared work finishes for
// the callers still waiting on it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/regionfs/lib/chunk"
	"github.com/bureau-foundation/regionfs/lib/clock"
	"github.com/bureau-foundation/regionfs/lib/generator"
	"github.com/bureau-foundation/regionfs/lib/region"
	"github.com/bureau-foundation/regionfs/lib/storage"
)

const (
	// DefaultCacheEntries is the LRU capacity when Options leaves it
	// zero. A full region is 1024 entries.
	DefaultCacheEntries = 4096

	// DefaultTimeout bounds each backend or generator call.
	DefaultTimeout = 10 * time.Second
)

// Options configures a Provider.
type Options struct {
	// Backend persists written chunks. Nil uses a process-lifetime
	// storage.Memory.
	Backend storage.Backend

	// Generator produces chunks the backend does not have. Nil means
	// such chunks are absent.
	Generator generator.Generator

	// Codec encodes generated chunks. Nil uses chunk.NBT.
	Codec chunk.Codec

	CacheEntries   int
	Timeout        time.Duration
	MaxConcurrency int

	// WriteThrough saves every generated chunk to the backend.
	WriteThrough bool

	// FallbackToGenerator serves generated content when the backend
	// is unavailable. Malformed stored data never falls back.
	FallbackToGenerator bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Provider is safe for concurrent use.
type Provider struct {
	backend      storage.Backend
	generator    generator.Generator
	codec        chunk.Codec
	timeout      time.Duration
	writeThrough bool
	fallback     bool
	clock        clock.Clock
	logger       *slog.Logger

	cache   *lru.Cache[region.ChunkCoord, *region.Entry]
	flight  singleflight.Group
	work    *semaphore.Weighted
	writers *keyedSemaphore
	stats   counters
}

// New creates a Provider from options, filling defaults.
func New(options Options) (*Provider, error) {
	if options.Backend == nil {
		options.Backend = storage.NewMemory()
	}
	if options.Codec == nil {
		options.Codec = chunk.NBT{}
	}
	if options.CacheEntries == 0 {
		options.CacheEntries = DefaultCacheEntries
	}
	if options.Timeout == 0 {
		options.Timeout = DefaultTimeout
	}
	if options.MaxConcurrency == 0 {
		options.MaxConcurrency = 4 * runtime.GOMAXPROCS(0)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.CacheEntries < 0 || options.Timeout < 0 || options.MaxConcurrency < 0 {
		return nil, fmt.Errorf("provider options: negative cache size, timeout, or concurrency")
	}

	cache, err := lru.New[region.ChunkCoord, *region.Entry](options.CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("creating chunk cache: %w", err)
	}
	return &Provider{
		backend:      options.Backend,
		generator:    options.Generator,
		codec:        options.Codec,
		timeout:      options.Timeout,
		writeThrough: options.WriteThrough,
		fallback:     options.FallbackToGenerator,
		clock:        options.Clock,
		logger:       options.Logger,
		cache:        cache,
		work:         semaphore.NewWeighted(int64(options.MaxConcurrency)),
		writers:      newKeyedSemaphore(),
	}, nil
}

// Chunk returns the entry for coord. It returns region.ErrChunkAbsent
// when the backend has no entry and there is no generator.
func (p *Provider) Chunk(ctx context.Context, coord region.ChunkCoord) (*region.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entry, ok := p.cache.Get(coord); ok {
		p.stats.cacheHits.Add(1)
		return entry, nil
	}
	p.stats.cacheMisses.Add(1)

	results := p.flight.DoChan(flightKey(coord), func() (any, error) {
		return p.shared(ctx, coord)
	})
	select {
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*region.Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Exists reports whether coord has content. With a generator every
// chunk exists; without one, only stored chunks do.
func (p *Provider) Exists(ctx context.Context, coord region.ChunkCoord) (bool, error) {
	if p.generator != nil {
		return true, nil
	}
	_, err := p.Chunk(ctx, coord)
	if errors.Is(err, region.ErrChunkAbsent) {
		return false, nil
	}
	return err == nil, err
}

// Store persists entry for coord and replaces the cached entry.
// Writers to one coordinate are serialized; writers to different
// coordinates proceed in parallel.
func (p *Provider) Store(ctx context.Context, coord region.ChunkCoord, entry *region.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	release, err := p.writers.acquire(ctx, coord)
	if err != nil {
		return fmt.Errorf("waiting to store chunk %v: %w", coord, err)
	}
	defer release()

	if err := p.backend.Save(ctx, coord, entry); err != nil {
		p.stats.failures.Add(1)
		return p.classify(coord, "storing", err)
	}
	p.stats.saves.Add(1)
	p.cache.Add(coord, entry)
	// Callers arriving after this point must not join a load that
	// started before the save.
	p.flight.Forget(flightKey(coord))
	return nil
}

// Close releases the backend if it holds resources.
func (p *Provider) Close() error {
	p.cache.Purge()
	if closer, ok := p.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// shared is the single-flight body. A caller that missed the cache can
// reach it after an earlier flight for coord has finished, so the cache
// is checked again before any backend or generator work.
func (p *Provider) shared(ctx context.Context, coord region.ChunkCoord) (*region.Entry, error) {
	if entry, ok := p.cache.Peek(coord); ok {
		return entry, nil
	}
	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.produce(work, coord)
}

func (p *Provider) produce(ctx context.Context, coord region.ChunkCoord) (*region.Entry, error) {
	if err := p.work.Acquire(ctx, 1); err != nil {
		p.stats.failures.Add(1)
		return nil, p.classify(coord, "waiting for a worker for", err)
	}
	defer p.work.Release(1)

	entry, err := p.load(ctx, coord)
	if err != nil {
		if !p.fallback || !errors.Is(err, region.ErrStorageUnavailable) || p.generator == nil {
			p.stats.failures.Add(1)
			p.logger.Error("loading chunk failed", "chunk_x", coord.X, "chunk_z", coord.Z, "error", err)
			return nil, err
		}
		p.logger.Warn("storage unavailable, serving generated chunk",
			"chunk_x", coord.X, "chunk_z", coord.Z, "error", err)
		return p.generate(ctx, coord, false)
	}
	if entry != nil {
		return p.remember(coord, entry), nil
	}
	if p.generator == nil {
		return nil, fmt.Errorf("chunk %v: %w", coord, region.ErrChunkAbsent)
	}
	return p.generate(ctx, coord, p.writeThrough)
}

// load returns nil without error when the backend has no entry.
func (p *Provider) load(ctx context.Context, coord region.ChunkCoord) (*region.Entry, error) {
	start := p.clock.Now()
	entry, found, err := p.backend.Load(ctx, coord)
	p.stats.loads.Add(1)
	p.stats.loadNanos.Add(int64(p.clock.Now().Sub(start)))
	if err != nil {
		return nil, p.classify(coord, "loading", err)
	}
	if !found {
		return nil, nil
	}
	if entry == nil || !entry.Compression().Supported() {
		return nil, fmt.Errorf("loading chunk %v: %w: unsupported stored entry", coord, region.ErrMalformedEntry)
	}
	return entry, nil
}

func (p *Provider) generate(ctx context.Context, coord region.ChunkCoord, save bool) (*region.Entry, error) {
	start := p.clock.Now()
	content, err := p.generator.Generate(ctx, coord)
	if err == nil {
		err = ctx.Err()
	}
	p.stats.generations.Add(1)
	p.stats.generationNanos.Add(int64(p.clock.Now().Sub(start)))
	if err != nil {
		p.stats.failures.Add(1)
		p.logger.Error("generating chunk failed", "chunk_x", coord.X, "chunk_z", coord.Z, "error", err)
		if errors.Is(err, region.ErrGeneration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: chunk %v: %w", region.ErrGeneration, coord, err)
	}

	entry, err := chunk.EncodeEntry(p.codec, content)
	if err != nil {
		p.stats.failures.Add(1)
		return nil, fmt.Errorf("%w: encoding chunk %v: %w", region.ErrGeneration, coord, err)
	}

	if save {
		if err := p.backend.Save(ctx, coord, entry); err != nil {
			p.stats.failures.Add(1)
			p.logger.Warn("write-through save failed", "chunk_x", coord.X, "chunk_z", coord.Z, "error", err)
		} else {
			p.stats.saves.Add(1)
		}
	}
	return p.remember(coord, entry), nil
}

// remember caches entry unless a newer one was stored while it was
// being produced, and returns whichever entry is current.
func (p *Provider) remember(coord region.ChunkCoord, entry *region.Entry) *region.Entry {
	if found, _ := p.cache.ContainsOrAdd(coord, entry); found {
		if current, ok := p.cache.Peek(coord); ok {
			return current
		}
	}
	return entry
}

// classify wraps a backend error. Deadline and transport failures
// become ErrStorageUnavailable; errors that already carry a region
// kind keep it.
func (p *Provider) classify(coord region.ChunkCoord, action string, err error) error {
	switch {
	case errors.Is(err, region.ErrMalformedEntry),
		errors.Is(err, region.ErrStorageUnavailable),
		errors.Is(err, region.ErrGeneration):
		return fmt.Errorf("%s chunk %v: %w", action, coord, err)
	default:
		return fmt.Errorf("%s chunk %v: %w: %w", action, coord, region.ErrStorageUnavailable, err)
	}
}

func flightKey(coord region.ChunkCoord) string {
	return coord.String()
}
