// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package regionfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/regionfs/lib/chunk"
	"github.com/bureau-foundation/regionfs/lib/clock"
	"github.com/bureau-foundation/regionfs/lib/generator"
	"github.com/bureau-foundation/regionfs/lib/provider"
	"github.com/bureau-foundation/regionfs/lib/region"
	"github.com/bureau-foundation/regionfs/lib/storage"
	"github.com/bureau-foundation/regionfs/lib/vfile"
)

var testEpoch = time.Unix(1735689600, 0)

// fuseAvailable skips tests that need a real mount when /dev/fuse or
// the fusermount helper is absent.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
	if !fusermountInstalled() {
		t.Skip("skipping: neither fusermount3 nor fusermount on PATH")
	}
}

func fusermountInstalled() bool {
	for _, name := range []string{"fusermount3", "fusermount"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func testProvider(t *testing.T, backend storage.Backend) *provider.Provider {
	t.Helper()
	flat, err := generator.NewFlat(generator.FlatConfig{Layers: []generator.Layer{
		{Block: "bedrock", Count: 1},
		{Block: "dirt", Count: 3},
		{Block: "grass_block", Count: 1},
	}})
	if err != nil {
		t.Fatalf("NewFlat: %v", err)
	}
	chunks, err := provider.New(provider.Options{Backend: backend, Generator: flat})
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}
	return chunks
}

func testMount(t *testing.T, policy vfile.Policy, backend storage.Backend) (string, *provider.Provider) {
	t.Helper()
	fuseAvailable(t)

	mountpoint := filepath.Join(t.TempDir(), "region")
	chunks := testProvider(t, backend)
	server, err := Mount(Options{
		Mountpoint: mountpoint,
		Provider:   chunks,
		Policy:     policy,
		Clock:      clock.Fake(testEpoch),
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})
	return mountpoint, chunks
}

func TestErrno(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{fmt.Errorf("write: %w", region.ErrOutOfBounds), syscall.EFBIG},
		{fmt.Errorf("read: %w", context.Canceled), syscall.EINTR},
		{fmt.Errorf("generate: %w: %w", region.ErrGeneration, context.DeadlineExceeded), syscall.EIO},
		{region.ErrStorageUnavailable, syscall.EIO},
		{region.ErrMalformedEntry, syscall.EIO},
		{errors.New("anything else"), syscall.EIO},
	}
	for _, test := range tests {
		if got := errno(test.err); got != test.want {
			t.Errorf("errno(%v) = %v, want %v", test.err, got, test.want)
		}
	}
}

func TestRegionHandleRelease(t *testing.T) {
	pos := region.RegionPos{X: -1, Z: 3}
	file, err := vfile.Open(context.Background(), pos, testProvider(t, nil), vfile.DefaultPolicy(), vfile.Options{})
	if err != nil {
		t.Fatalf("vfile.Open: %v", err)
	}
	handle := &regionHandle{file: file, logger: slog.New(slog.DiscardHandler)}
	if got := handle.Release(context.Background()); got != 0 {
		t.Fatalf("Release = %v, want 0", got)
	}
	if got := handle.Release(context.Background()); got != 0 {
		t.Errorf("second Release = %v, want 0", got)
	}
	if _, err := file.ReadAt(context.Background(), make([]byte, 16), 0); !errors.Is(err, os.ErrClosed) {
		t.Errorf("ReadAt after Release = %v, want os.ErrClosed", err)
	}
}

func TestMountRequiresProvider(t *testing.T) {
	_, err := Mount(Options{Mountpoint: t.TempDir(), Policy: vfile.DefaultPolicy()})
	if !errors.Is(err, ErrMount) {
		t.Errorf("Mount without provider = %v, want ErrMount", err)
	}
	_, err = Mount(Options{Provider: testProvider(t, nil), Policy: vfile.DefaultPolicy()})
	if !errors.Is(err, ErrMount) {
		t.Errorf("Mount without mountpoint = %v, want ErrMount", err)
	}
}

func TestMountServesRegionFiles(t *testing.T) {
	policy := vfile.DefaultPolicy()
	mountpoint, _ := testMount(t, policy, nil)

	path := filepath.Join(mountpoint, "r.-3.7.mca")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != policy.FileSize() || !info.Mode().IsRegular() {
		t.Fatalf("stat = size %d mode %v", info.Size(), info.Mode())
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()

	head := make([]byte, region.HeaderSize+policy.SlotSectors*region.SectorSize)
	if _, err := file.ReadAt(head, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	header, err := region.ParseHeader(head)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if header.Slots[0].Offset != 2 || header.Timestamps[0] != uint32(testEpoch.Unix()) {
		t.Errorf("slot 0 = %+v timestamp %d", header.Slots[0], header.Timestamps[0])
	}

	entry, err := region.ParseEntry(head[region.HeaderSize:])
	if err != nil {
		t.Fatalf("ParseEntry: %v", err)
	}
	content, err := chunk.DecodeEntry(chunk.NBT{}, entry)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if content.X != -3*32 || content.Z != 7*32 {
		t.Errorf("first chunk at (%d,%d), want (-96,224)", content.X, content.Z)
	}
}

func TestMountRegionInodesAreStable(t *testing.T) {
	mountpoint, _ := testMount(t, vfile.DefaultPolicy(), nil)
	inodeOf := func(name string) uint64 {
		t.Helper()
		info, err := os.Stat(filepath.Join(mountpoint, name))
		if err != nil {
			t.Fatalf("Stat(%s): %v", name, err)
		}
		return info.Sys().(*syscall.Stat_t).Ino
	}
	first := inodeOf("r.10.-10.mca")
	if again := inodeOf("r.10.-10.mca"); again != first {
		t.Errorf("inode changed between lookups: %d then %d", first, again)
	}
	if other := inodeOf("r.-10.10.mca"); other == first {
		t.Error("two regions share an inode")
	}
}

func TestMountGenericFiles(t *testing.T) {
	mountpoint, _ := testMount(t, vfile.DefaultPolicy(), nil)
	path := filepath.Join(mountpoint, "session.lock")

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("generic file exists before creation: %v", err)
	}
	if err := os.WriteFile(path, []byte("☃ locked"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "☃ locked" {
		t.Errorf("read back %q", got)
	}

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "session.lock" {
		t.Errorf("directory lists %v", entries)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("generic file survives removal: %v", err)
	}
	if err := os.Remove(filepath.Join(mountpoint, "r.0.0.mca")); err == nil {
		t.Error("removing a region file succeeded")
	}
}

func TestMountStatelessWrite(t *testing.T) {
	backend := storage.NewMemory()
	mountpoint, _ := testMount(t, vfile.DefaultPolicy(), backend)

	file, err := os.OpenFile(filepath.Join(mountpoint, "r.0.0.mca"), os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer file.Close()

	before := make([]byte, 16)
	if _, err := file.ReadAt(before, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if _, err := file.WriteAt(bytes.Repeat([]byte{0xEE}, 16), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	after := make([]byte, 16)
	if _, err := file.ReadAt(after, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("stateless write changed the header")
	}
	if backend.Len() != 0 {
		t.Errorf("stateless write stored %d chunks", backend.Len())
	}
}

func TestMountStatefulWrite(t *testing.T) {
	backend := storage.NewMemory()
	policy := vfile.Policy{Layout: vfile.LayoutFixed, SlotSectors: 4, Writes: vfile.WritesStateful}
	mountpoint, chunks := testMount(t, policy, backend)
	pos := region.RegionPos{X: 1, Z: 2}

	builder := chunk.NewBuilder(pos.Chunk(0).X, pos.Chunk(0).Z, chunk.DefaultDataVersion)
	builder.FillLayer(chunk.MinY, chunk.State("obsidian"))
	entry, err := chunk.EncodeEntry(chunk.NBT{}, builder.Build())
	if err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}

	file, err := os.OpenFile(filepath.Join(mountpoint, pos.Filename()), os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer file.Close()

	// Append after the last slot, then point slot 0 at it.
	sector := uint32(2 + region.ChunksPerRegion*policy.SlotSectors)
	padded := make([]byte, entry.Sectors()*region.SectorSize)
	copy(padded, entry.Bytes())
	if _, err := file.WriteAt(padded, int64(sector)*region.SectorSize); err != nil {
		t.Fatalf("writing entry: %v", err)
	}
	word := binary.BigEndian.AppendUint32(nil, sector<<8|uint32(entry.Sectors()))
	if _, err := file.WriteAt(word, 0); err != nil {
		t.Fatalf("writing location: %v", err)
	}

	stored, found, err := backend.Load(context.Background(), pos.Chunk(0))
	if err != nil || !found || !bytes.Equal(stored.Bytes(), entry.Bytes()) {
		t.Fatalf("backend does not hold the written chunk (found=%v err=%v)", found, err)
	}
	if saves := chunks.Stats().Saves; saves != 1 {
		t.Errorf("saves = %d, want 1", saves)
	}

	if _, err := file.WriteAt([]byte{1}, policy.FileSize()); !errors.Is(err, syscall.EFBIG) {
		t.Errorf("write past the end = %v, want EFBIG", err)
	}
}
