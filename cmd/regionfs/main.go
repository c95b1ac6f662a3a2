// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/regionfs/lib/config"
	"github.com/bureau-foundation/regionfs/lib/regionfs"
	"github.com/bureau-foundation/regionfs/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "regionfs: %v\n", err)
		os.Exit(1)
	}
}

// flags holds command-line overrides. Zero values leave the loaded
// configuration unchanged.
type flags struct {
	configPath  string
	showVersion bool
	mountpoint  string
	allowOther  bool
	logLevel    string
	generator   string
	seed        int64
	storage     string
	storagePath string
	layout      string
	writes      string
}

func parseFlags(args []string) (*flags, *pflag.FlagSet, error) {
	parsed := &flags{}
	flagSet := pflag.NewFlagSet("regionfs", pflag.ContinueOnError)
	flagSet.StringVar(&parsed.configPath, "config", "", "path to regionfs.yaml or regionfs.jsonc (default: $REGIONFS_CONFIG)")
	flagSet.BoolVar(&parsed.showVersion, "version", false, "print version information and exit")
	flagSet.StringVar(&parsed.mountpoint, "mountpoint", "", "directory to mount the region files in")
	flagSet.BoolVar(&parsed.allowOther, "allow-other", false, "let other users access the mount")
	flagSet.StringVar(&parsed.logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.StringVar(&parsed.generator, "generator", "", "world generator: flat, terrain, or none")
	flagSet.Int64Var(&parsed.seed, "seed", 0, "terrain generator seed")
	flagSet.StringVar(&parsed.storage, "storage", "", "chunk storage: memory, sqlite, or delta")
	flagSet.StringVar(&parsed.storagePath, "storage-path", "", "database file for sqlite or delta storage")
	flagSet.StringVar(&parsed.layout, "layout", "", "region layout: fixed or packed")
	flagSet.StringVar(&parsed.writes, "writes", "", "write handling: stateless or stateful")
	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	if flagSet.NArg() > 0 {
		return nil, flagSet, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return parsed, flagSet, nil
}

// loadConfig reads the configuration file, if any, and applies flag
// overrides on top.
func loadConfig(parsed *flags, flagSet *pflag.FlagSet) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case parsed.configPath != "":
		cfg, err = config.LoadFile(parsed.configPath)
	case os.Getenv("REGIONFS_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if parsed.mountpoint != "" {
		cfg.Mountpoint = parsed.mountpoint
	}
	if flagSet.Changed("allow-other") {
		cfg.AllowOther = parsed.allowOther
	}
	if parsed.logLevel != "" {
		cfg.LogLevel = parsed.logLevel
	}
	if parsed.generator != "" {
		cfg.Generator.Kind = parsed.generator
	}
	if flagSet.Changed("seed") {
		cfg.Generator.Seed = parsed.seed
	}
	if parsed.storage != "" {
		cfg.Storage.Kind = parsed.storage
	}
	if parsed.storagePath != "" {
		cfg.Storage.Path = parsed.storagePath
	}
	if parsed.layout != "" {
		cfg.Region.Layout = parsed.layout
	}
	if parsed.writes != "" {
		cfg.Region.Writes = parsed.writes
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func run(args []string) error {
	parsed, flagSet, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w\n\n%s", err, flagSet.FlagUsages())
	}
	if parsed.showVersion {
		fmt.Printf("regionfs %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(parsed, flagSet)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	mountProvider, policy, err := build(cfg, logger)
	if err != nil {
		return err
	}

	server, err := regionfs.Mount(regionfs.Options{
		Mountpoint: cfg.Mountpoint,
		Provider:   mountProvider,
		Policy:     policy,
		AllowOther: cfg.AllowOther,
		Logger:     logger,
	})
	if err != nil {
		mountProvider.Close()
		return err
	}
	logger.Info("regionfs started", "build", version.LogValue(), "generator", cfg.Generator.Kind, "storage", cfg.Storage.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	unmounted := make(chan struct{})
	go func() {
		server.Wait()
		close(unmounted)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-unmounted:
		logger.Info("filesystem unmounted externally")
	}
	return server.Unmount()
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	// Validate has already restricted level to the names slog knows.
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		slogLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}
