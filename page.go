// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import "github.com/cznic/mathutil"

// arenaPage is a contiguous block-aligned region partitioned into a
// bump frontier (head..end) and a free list of returned regions. It is
// the serviceable unit behind both the StaticPage strategy and each
// page of a MultiPageArena.
type arenaPage struct {
	storage    []Block
	head       int // block offset of the bump frontier
	end        int // one past the last block usable for a payload
	freelist   freeList
	ownsMemory bool // whether the page must release storage on destroy
}

// newArenaPageFromMemory partitions storage (length in Blocks) into a
// page. ownsMemory controls whether destroy releases it. A page
// must hold at least enough blocks for one header; fewer is a
// programmer error (the caller configured a StaticPage or arena page
// size too small to ever be useful) and aborts rather than returning an
// unusable zero-capacity page.
func newArenaPageFromMemory(storage []Block, ownsMemory bool) arenaPage {
	if len(storage) < headerBlocks {
		abort("arena page initialized with too few blocks")
	}

	p := arenaPage{
		storage:    storage,
		head:       0,
		end:        len(storage) - headerBlocks,
		ownsMemory: ownsMemory,
	}
	p.freelist = newFreeList(storage)

	// Zero the sentinel header at end so that next-of-last-allocation
	// reads a well-defined empty header (freelistID == 0, blockCount == 0)
	// instead of uninitialized memory.
	sentinel := headerAt(storage, p.end)
	*sentinel = header{}

	return p
}

func (p *arenaPage) contains(off int) bool {
	return off >= 0 && off < p.end
}

// containsAddr reports whether payload was carved out of this page's
// storage, used by the allocator façade's ownership predicate.
func (p *arenaPage) containsAddr(payload []byte) bool {
	addr := addrOf(payload)
	lo := storageAddr(p.storage)
	hi := lo + uintptr(len(p.storage))*uintptr(blockSize)
	return addr >= lo && addr < hi
}

// offsetOf converts a live payload slice (already known to belong to
// this page) back to its header's block offset.
func (p *arenaPage) offsetOf(payload []byte) int {
	payloadAddr := addrOf(payload)
	base := storageAddr(p.storage)
	return int(payloadAddr-base)/blockSize - headerBlocks
}

// makeAllocation returns the block offset of a header whose payload has
// at least blocksFor(size) blocks, or -1 if the page cannot satisfy the
// request.
func (p *arenaPage) makeAllocation(size int) int {
	required := blocksFor(size) + headerBlocks

	// Mirrors the source allocator's early-exit: an empty free list with
	// remaining headroom exactly equal to required still bails here
	// rather than falling through to the bump path below.
	if p.end-p.head <= required && p.freelist.count() == 0 {
		return -1
	}

	// The free-list dispatch order is unconstrained by the servicing
	// contract (a first-fit match anywhere in the list is as valid as
	// any other), so the scan starts at a slot biased by the bit length
	// of the request rather than always at slot 0. Same-size-class
	// requests, the common case under repeated malloc/free churn, tend
	// to land on an early candidate instead of walking the whole list.
	slots := p.freelist.slots
	if n := len(slots); n > 0 {
		start := mathutil.BitLen(required) % n
		for i := 0; i < n; i++ {
			off := slots[(start+i)%n]
			allocated := p.freelist.takeBlocksFrom(off, required)
			if allocated == 0 {
				continue
			}
			h := headerAt(p.storage, off)
			h.freelistID = 0
			h.blockCount = uint32(allocated - headerBlocks)
			return off
		}
	}

	if p.head+required <= p.end {
		off := p.head
		h := headerAt(p.storage, off)
		h.blockCount = uint32(required - headerBlocks)
		h.freelistID = 0
		p.head += required
		return off
	}

	return -1
}

// tryReallocateInPlace attempts to resize the allocation at off to hold
// size bytes without moving it. It reports whether it succeeded.
func (p *arenaPage) tryReallocateInPlace(off int, size int) bool {
	h := headerAt(p.storage, off)
	required := blocksFor(size)

	switch {
	case int(h.blockCount) >= required+minBlocksForSplit:
		remaining := int(h.blockCount) - required
		if nextOffset(p.storage, off) == p.head {
			p.head -= remaining
			h.blockCount = uint32(required)
			return true
		}

		h.blockCount = uint32(required)
		remainderOff := nextOffset(p.storage, off)
		remainder := headerAt(p.storage, remainderOff)
		remainder.blockCount = uint32(remaining - headerBlocks)
		remainder.freelistID = 0
		p.freelist.join(remainderOff)
		return true

	case int(h.blockCount) < required:
		additional := required - int(h.blockCount)
		nextOff := nextOffset(p.storage, off)

		if nextOff == p.head {
			if p.head+additional > p.end {
				return false
			}
			p.head += additional
			h.blockCount += uint32(additional)
			return true
		}

		if p.freelist.contains(nextOff) {
			granted := p.freelist.takeBlocksFrom(nextOff, additional)
			if granted == 0 {
				return false
			}
			h.blockCount += uint32(granted)
			return true
		}

		return false

	default: // unchanged
		return true
	}
}

// freeAllocation returns the allocation at off to the page: it retracts
// the bump frontier when off sits right against it, or joins it into
// the free list otherwise. Either way it finishes by folding any
// free-listed region now sitting flush against the frontier back into
// head, so that freeing a run of allocations whose rightmost member
// happens to be last-adjacent reclaims the whole run rather than
// leaving a dangling free entry one step short of head.
func (p *arenaPage) freeAllocation(off int) {
	h := headerAt(p.storage, off)
	if nextOffset(p.storage, off) == p.head {
		p.head -= headerBlocks + int(h.blockCount)
	} else {
		h.freelistID = 0
		p.freelist.join(off)
	}
	p.retractFreeSuffix()
}

// retractFreeSuffix folds the free-listed region ending exactly at head,
// if any, back into the bump frontier. Because join always saturates a
// freed region against both its neighbours, at most one free entry can
// ever end at a given address, so one pass suffices; it loops anyway
// since that invariant is cheap to re-check and costs nothing when it
// doesn't fire.
func (p *arenaPage) retractFreeSuffix() {
	for {
		off, ok := p.freelist.findEndingAt(p.head)
		if !ok {
			return
		}
		p.freelist.remove(off)
		p.head = off
	}
}

// destroy releases the page's backing memory, if the page owns it.
func (p *arenaPage) destroy() error {
	if p == nil {
		return nil
	}
	var err error
	if p.ownsMemory && p.storage != nil {
		err = releaseBlocks(p.storage)
	}
	*p = arenaPage{}
	return err
}
