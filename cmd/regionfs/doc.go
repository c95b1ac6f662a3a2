// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Regionfs mounts a directory of Minecraft Anvil region files whose
// chunks are produced on demand.
//
// The mount presents every r.<X>.<Z>.mca name as an existing region
// file of fixed size. Chunks are read from the configured storage
// backend and, when absent, generated. Other files the server writes
// into the directory (session.lock and the like) live in memory for
// the lifetime of the mount.
//
// Usage:
//
//	regionfs --config regionfs.yaml
//	regionfs --mountpoint ~/server/world/region --generator terrain --seed 42
//
// With neither --config nor REGIONFS_CONFIG the built-in defaults are
// used: a flat world, memory storage, and stateless writes.
//
// The process unmounts and exits on SIGINT or SIGTERM. It also exits
// when the filesystem is unmounted from outside (fusermount -u).
package main
