// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which regionfs build is running.
//
// The values are stamped by the linker:
//
//	go build -ldflags "-X github.com/bureau-foundation/regionfs/lib/version.Commit=$(git rev-parse --short HEAD)" ./cmd/regionfs
package version

import (
	"fmt"
	"log/slog"
	"runtime"
)

var (
	// Version is the release version.
	Version = "0.1.0-dev"

	// Commit is the short git SHA of the build.
	Commit = "unknown"

	// Dirty is "true" when the tree had uncommitted changes.
	Dirty = "false"
)

func commit() string {
	if Dirty == "true" {
		return Commit + "-dirty"
	}
	return Commit
}

// Info is the --version line.
func Info() string {
	return fmt.Sprintf("%s (%s, %s, %s/%s)", Version, commit(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// LogValue groups the build identity for the startup log line.
func LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", Version),
		slog.String("commit", commit()),
		slog.String("go", runtime.Version()),
	)
}
