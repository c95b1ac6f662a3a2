// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"sync"

	"github.com/bureau-foundation/regionfs/lib/region"
)

// keyedSemaphore grants one holder per coordinate. Waiting honors
// context cancellation, so a stuck save cannot pin a writer forever.
type keyedSemaphore struct {
	mu    sync.Mutex
	slots map[region.ChunkCoord]*keySlot
}

type keySlot struct {
	token chan struct{}
	users int
}

func newKeyedSemaphore() *keyedSemaphore {
	return &keyedSemaphore{slots: make(map[region.ChunkCoord]*keySlot)}
}

// acquire blocks until key is free or ctx ends. The returned function
// releases the key.
func (k *keyedSemaphore) acquire(ctx context.Context, key region.ChunkCoord) (func(), error) {
	k.mu.Lock()
	slot := k.slots[key]
	if slot == nil {
		slot = &keySlot{token: make(chan struct{}, 1)}
		k.slots[key] = slot
	}
	slot.users++
	k.mu.Unlock()

	select {
	case slot.token <- struct{}{}:
		return func() {
			<-slot.token
			k.leave(key, slot)
		}, nil
	case <-ctx.Done():
		k.leave(key, slot)
		return nil, ctx.Err()
	}
}

func (k *keyedSemaphore) leave(key region.ChunkCoord, slot *keySlot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	slot.users--
	if slot.users == 0 {
		delete(k.slots, key)
	}
}

// held reports how many coordinates have a holder or waiter.
func (k *keyedSemaphore) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
