// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

// freeList is an unordered, dynamically-grown sequence of free headers
// living inside one page's storage. Each entry's header carries a
// freelistID equal to (index+1), giving O(1) removal and O(1) membership
// testing without a separate lookup structure — the same back-reference
// trick the teacher library uses for its own per-size-class free chains,
// adapted here from an intrusive linked list to an index array because
// this allocator must support splitting a free region (an operation a
// plain linked node has no room to describe).
type freeList struct {
	storage []Block // shared with the owning page; never reallocated
	slots   []int   // block offsets of free headers; slots[i] has freelistID == i+1
}

func newFreeList(storage []Block) freeList {
	return freeList{storage: storage}
}

func (fl *freeList) count() int { return len(fl.slots) }

// contains reports whether the header at off is currently free-listed
// in fl, verified via the back-reference rather than a linear scan.
func (fl *freeList) contains(off int) bool {
	h := headerAt(fl.storage, off)
	if h.freelistID == 0 || int(h.freelistID) > len(fl.slots) {
		return false
	}
	return fl.slots[h.freelistID-1] == off
}

// append adds off to the free list, growing the backing array
// geometrically when needed.
func (fl *freeList) append(off int) {
	if len(fl.slots) == cap(fl.slots) {
		grown := make([]int, len(fl.slots), 1+2*len(fl.slots))
		copy(grown, fl.slots)
		fl.slots = grown
	}
	fl.slots = append(fl.slots, off)
	headerAt(fl.storage, off).freelistID = uint32(len(fl.slots))
}

// remove deletes off from the free list via swap-with-last, fixing up
// the moved entry's back-reference, and shrinks the backing array once
// occupancy drops to a quarter of capacity.
func (fl *freeList) remove(off int) {
	h := headerAt(fl.storage, off)
	i := int(h.freelistID) - 1
	last := len(fl.slots) - 1
	fl.slots[i] = fl.slots[last]
	headerAt(fl.storage, fl.slots[i]).freelistID = uint32(i + 1)
	fl.slots = fl.slots[:last]
	h.freelistID = 0

	if len(fl.slots)*4 <= cap(fl.slots) {
		shrunk := make([]int, len(fl.slots), 1+2*len(fl.slots))
		copy(shrunk, fl.slots)
		fl.slots = shrunk
	}
}

// findEndingAt reports the offset of the free-listed header whose right
// edge equals target, if any. Used to fold a free region back into the
// bump frontier once it sits flush against it.
func (fl *freeList) findEndingAt(target int) (int, bool) {
	for _, off := range fl.slots {
		if nextOffset(fl.storage, off) == target {
			return off, true
		}
	}
	return -1, false
}

// takeBlocksFrom attempts to satisfy a requiredBlocks-including-header
// request from member, a header already present in fl. It returns 0 if
// member does not have enough space; otherwise it returns the number of
// blocks (including header) the caller has taken ownership of, which
// may exceed requiredBlocks when the remainder was too small to split
// off as its own free header.
func (fl *freeList) takeBlocksFrom(off int, requiredBlocks int) int {
	h := headerAt(fl.storage, off)
	available := int(h.blockCount) + headerBlocks

	switch {
	case available < requiredBlocks:
		return 0

	case available < requiredBlocks+minBlocksForSplit:
		fl.remove(off)
		return available

	default:
		remaining := available - requiredBlocks
		h.blockCount = uint32(requiredBlocks - headerBlocks)

		newOff := nextOffset(fl.storage, off)
		newHeader := headerAt(fl.storage, newOff)
		newHeader.blockCount = uint32(remaining - headerBlocks)
		newHeader.freelistID = h.freelistID
		fl.slots[h.freelistID-1] = newOff
		return requiredBlocks
	}
}

// join coalesces the header at off with its right neighbour (if that
// neighbour is itself free-listed) and with any left neighbour found by
// scanning the list for an entry whose right edge lands on off. off
// must not already be free-listed (freelistID == 0). If no neighbour is
// found, off is appended as a new free entry.
func (fl *freeList) join(off int) {
	h := headerAt(fl.storage, off)
	if h.freelistID != 0 {
		abort("join called on an already free-listed header")
	}

	nextOff := nextOffset(fl.storage, off)
	if fl.contains(nextOff) {
		next := headerAt(fl.storage, nextOff)
		h.freelistID = next.freelistID
		h.blockCount += next.blockCount + uint32(headerBlocks)
		fl.slots[h.freelistID-1] = off
	}

	for i := 0; i < len(fl.slots); i++ {
		before := fl.slots[i]
		if nextOffset(fl.storage, before) == off {
			beforeHeader := headerAt(fl.storage, before)
			beforeHeader.blockCount += h.blockCount + uint32(headerBlocks)
			if h.freelistID != 0 {
				fl.remove(off)
			}
			return
		}
	}

	if h.freelistID == 0 {
		fl.append(off)
	}
}
