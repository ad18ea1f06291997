// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import "unsafe"

// freeListHeap is TrackedDefault's bookkeeping: a free-list-shaped
// ledger of every outstanding allocation the allocator has handed out,
// reusing the same index-with-back-reference trick as freeList even
// though, unlike a page's free list, each tracked entry owns its own
// independent backing array rather than sharing one page's storage.
type freeListHeap struct {
	entries [][]Block // entries[i] is the backing array of the allocation with freelistID i+1
}

func (h *freeListHeap) track(storage []Block) {
	h.entries = append(h.entries, storage)
	headerAt(storage, 0).freelistID = uint32(len(h.entries))
}

func (h *freeListHeap) untrack(payload []byte) {
	id := headerFromPayload(payload).freelistID
	i := int(id) - 1
	last := len(h.entries) - 1
	h.entries[i] = h.entries[last]
	headerAt(h.entries[i], 0).freelistID = uint32(i + 1)
	h.entries = h.entries[:last]
}

// contains reports whether payload was handed out by this ledger,
// verified via the back-reference rather than a linear address scan.
func (h *freeListHeap) contains(payload []byte) bool {
	hdr := headerFromPayload(payload)
	if hdr.freelistID == 0 || int(hdr.freelistID) > len(h.entries) {
		return false
	}
	return storageAddr(h.entries[hdr.freelistID-1]) == uintptr(unsafe.Pointer(hdr))
}

func (h *freeListHeap) malloc(size int) []byte {
	storage := make([]Block, headerBlocks+blocksFor(size))
	hdr := headerAt(storage, 0)
	hdr.blockCount = uint32(blocksFor(size))
	h.track(storage)
	return payloadBytes(storage, 0, size)
}

func (h *freeListHeap) realloc(payload []byte, size int) []byte {
	if size <= cap(payload) {
		headerFromPayload(payload).blockCount = uint32(blocksFor(size))
		return payload[:size]
	}

	fresh := h.malloc(size)
	copy(fresh, payload)
	h.untrack(payload)
	return fresh
}

func (h *freeListHeap) free(payload []byte) {
	h.untrack(payload)
}
