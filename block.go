// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package allocator implements a composable block allocator: a family
// of allocation strategies (a thin pass-through to Go's own heap, a
// tracked variant of the same, a single-page bump arena with a free
// list, and a multi-page arena) that share one entry point and can be
// chained so a primary allocator falls back to a secondary one when it
// cannot satisfy a request.
//
// Every strategy hands out payloads fronted by a fixed-size header
// stored immediately before them in memory, in the manner of a C
// allocator's bookkeeping node. At Free or Realloc time a payload is
// routed back to the allocator that produced it by walking the fallback
// chain: Default allocations are recognised by the header's sentinel
// freelistID, TrackedDefault allocations by their entry in the
// allocator's ledger, and page-backed allocations by address range.
package allocator

import "unsafe"

// Block is the fixed granularity of space accounting. All sizes are
// rounded up to an integral number of blocks, so payloads are always
// blockSize-aligned.
type Block = uint64

const blockSize = int(unsafe.Sizeof(Block(0)))

// header is the fixed-size metadata record stored immediately before
// its payload. It occupies exactly headerBlocks blocks.
type header struct {
	blockCount uint32 // payload blocks owned by this allocation, not counting the header
	freelistID uint32 // 0 if live; otherwise index+1 into the owning page's free list
}

const (
	headerSize = int(unsafe.Sizeof(header{}))

	// headerBlocks is the header's footprint in blocks (H in spec terms).
	headerBlocks = (headerSize + blockSize - 1) / blockSize

	// defaultFreelistID marks a header allocated straight from the Go
	// heap via the Default strategy rather than from any page's free list.
	defaultFreelistID = 0xFFFFFFFF

	// minBlocksForSplit is the smallest surplus (header + >=1 payload
	// block) that justifies carving a free region in two.
	minBlocksForSplit = headerBlocks + 1
)

func init() {
	if headerSize%blockSize != 0 {
		panic("allocator: header size is not a whole multiple of the block size")
	}
}

// blocksFor returns the number of payload blocks needed to hold size
// bytes, i.e. ceil(size/blockSize).
func blocksFor(size int) int {
	return (size + blockSize - 1) / blockSize
}

// headerAt returns a pointer to the header living at block offset off
// within storage. storage must stay alive and unchanged for as long as
// the returned pointer, or any payload slice derived from it, is in use;
// callers satisfy this by holding storage in a long-lived field (the
// owning page or, for unpaged allocations, the slice returned to the
// caller) rather than by discarding it after the call.
func headerAt(storage []Block, off int) *header {
	return (*header)(unsafe.Pointer(&storage[off]))
}

// nextOffset returns the block offset immediately following the
// allocation whose header sits at off.
func nextOffset(storage []Block, off int) int {
	return off + headerBlocks + int(headerAt(storage, off).blockCount)
}

// payloadBytes returns a byte view over the size bytes of payload that
// begins right after the header at off, with capacity extended to the
// header's full block-rounded allocation so that cap() reports the
// usable size, matching the spirit of C realloc's usable-size slack.
func payloadBytes(storage []Block, off int, size int) []byte {
	h := headerAt(storage, off)
	payloadOff := off + headerBlocks
	full := unsafe.Slice((*byte)(unsafe.Pointer(&storage[payloadOff])), int(h.blockCount)*blockSize)
	return full[:size:int(h.blockCount)*blockSize]
}

// headerFromPayload recovers the header immediately preceding payload.
// payload must have been returned by Malloc/Calloc/Realloc/Copy of some
// allocator in this package; the pointer arithmetic below is performed
// in a single expression (Pointer -> uintptr -> arithmetic -> Pointer),
// which is the documented-safe unsafe.Pointer pattern and never stores
// the intermediate uintptr across a call.
func headerFromPayload(payload []byte) *header {
	return (*header)(unsafe.Pointer(uintptr(unsafe.Pointer(&payload[0])) - uintptr(headerSize)))
}

// addrOf returns the numeric address of payload's first byte, used only
// for range-containment comparisons (never converted back to a Pointer).
func addrOf(payload []byte) uintptr {
	return uintptr(unsafe.Pointer(&payload[0]))
}

// storageAddr returns the numeric address of storage's first block.
func storageAddr(storage []Block) uintptr {
	return uintptr(unsafe.Pointer(&storage[0]))
}
