// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package regionfs mounts a directory of virtual region files.
//
// Every name of the form r.<X>.<Z>.mca resolves to a region file that
// exists without ever having been created. Its bytes come from a
// vfile.File opened per file handle. Other names are ordinary
// in-memory files, so a server that drops a lock or temporary file
// next to its regions keeps working.
package regionfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/regionfs/lib/clock"
	"github.com/bureau-foundation/regionfs/lib/inode"
	"github.com/bureau-foundation/regionfs/lib/provider"
	"github.com/bureau-foundation/regionfs/lib/region"
	"github.com/bureau-foundation/regionfs/lib/vfile"
)

// ErrMount reports that the filesystem could not be mounted.
var ErrMount = errors.New("mount failed")

// fuseDevice is opened by the kernel driver for every mount.
const fuseDevice = "/dev/fuse"

// Options configures Mount.
type Options struct {
	// Mountpoint is created if it does not exist.
	Mountpoint string

	Provider *provider.Provider
	Policy   vfile.Policy

	// AllowOther lets users other than the mounting user access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Clock stamps the region header timestamps. Nil uses the real
	// clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Server is a mounted region filesystem.
type Server struct {
	fuse     *fuse.Server
	provider *provider.Provider
	logger   *slog.Logger
	once     sync.Once
	err      error
}

// Mount checks that FUSE is usable and mounts the filesystem. Every
// failure wraps ErrMount.
func Mount(options Options) (*Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("%w: mountpoint is required", ErrMount)
	}
	if options.Provider == nil {
		return nil, fmt.Errorf("%w: chunk provider is required", ErrMount)
	}
	if err := options.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMount, err)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	if err := unix.Access(fuseDevice, unix.R_OK|unix.W_OK); err != nil {
		return nil, fmt.Errorf("%w: %s is not accessible: %w", ErrMount, fuseDevice, err)
	}
	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating mountpoint %s: %w", ErrMount, options.Mountpoint, err)
	}

	fs := &filesystem{
		mapper:    inode.New(),
		provider:  options.Provider,
		policy:    options.Policy,
		clock:     options.Clock,
		timestamp: uint32(options.Clock.Now().Unix()),
		started:   options.Clock.Now(),
		logger:    options.Logger,
		generic:   make(map[string]*genericFile),
	}
	root := &rootNode{fs: fs}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "regionfs",
			Name:       "regionfs",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: mounting FUSE filesystem at %s: %w", ErrMount, options.Mountpoint, err)
	}

	options.Logger.Info("region filesystem mounted",
		"mountpoint", options.Mountpoint,
		"layout", options.Policy.Layout.String(),
		"writes", options.Policy.Writes.String(),
		"file_size", options.Policy.FileSize(),
	)
	return &Server{fuse: server, provider: options.Provider, logger: options.Logger}, nil
}

// Wait blocks until the filesystem is unmounted, by Unmount or from
// outside the process.
func (s *Server) Wait() {
	s.fuse.Wait()
}

// Unmount detaches the filesystem, logs provider statistics, and
// closes the provider's backend. It is safe to call more than once.
func (s *Server) Unmount() error {
	s.once.Do(func() {
		unmountErr := s.fuse.Unmount()
		s.logger.Info("region filesystem unmounted", "stats", s.provider.Stats())
		s.err = errors.Join(unmountErr, s.provider.Close())
	})
	return s.err
}

// errno translates an error from the region layers for the kernel.
func errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, region.ErrOutOfBounds):
		return syscall.EFBIG
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}
