// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the regionfs mount configuration.
//
// Configuration comes from a single file named by the REGIONFS_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). Files ending in .json or .jsonc are parsed as JSON with
// comments and trailing commas allowed; anything else is YAML. Values
// absent from the file keep their [Default].
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${REGIONFS_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Generator, Storage, Provider, Region
//   - [Default] -- a Config for a stateless flat world in memory
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other regionfs packages.
package config
