// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

// arena is an ordered, dynamically-grown sequence of arena pages
// sharing one page size (in bytes).
type arena struct {
	pageSize int // bytes
	pages    []*arenaPage
}

// pageBlocks is how many Blocks a fresh page of arena.pageSize bytes is
// created with.
func (a *arena) pageBlocks() int {
	return blocksFor(a.pageSize)
}

// malloc returns the payload offset and owning page for a size-byte
// allocation, or (nil, -1) if the request exceeds the arena's page size
// or the OS refuses to grow it. It probes existing pages in creation
// order before appending a new page, matching the arena_malloc contract
// in the source this package ports from.
func (a *arena) malloc(size int) (*arenaPage, int) {
	if size+headerBlocks*blockSize > a.pageSize {
		return nil, -1
	}

	for _, p := range a.pages {
		if off := p.makeAllocation(size); off != -1 {
			return p, off
		}
	}

	storage, err := allocateBlocks(a.pageBlocks())
	if err != nil {
		return nil, -1
	}
	newPage := newArenaPageFromMemory(storage, true)
	a.pages = append(a.pages, &newPage)

	off := newPage.makeAllocation(size)
	return &newPage, off
}

// findOwningPage returns the page containing payload, or nil.
func (a *arena) findOwningPage(payload []byte) *arenaPage {
	for _, p := range a.pages {
		if p.containsAddr(payload) {
			return p
		}
	}
	return nil
}

// realloc resizes the allocation identified by payload (already known
// to live in owningPage) to size bytes, trying in place first and
// falling back to a fresh allocation from malloc. It returns the new
// page, the new offset, and whether the allocation moved; on a move the
// caller copies the payload and frees the old allocation.
func (a *arena) realloc(owningPage *arenaPage, off int, size int) (page *arenaPage, newOff int, moved bool) {
	if size > a.pageSize {
		return nil, -1, false
	}

	if owningPage.tryReallocateInPlace(off, size) {
		return owningPage, off, false
	}

	newPage, newOffset := a.malloc(size)
	if newPage == nil {
		return nil, -1, false
	}
	return newPage, newOffset, true
}

func (a *arena) destroy() error {
	var first error
	for _, p := range a.pages {
		if err := p.destroy(); err != nil && first == nil {
			first = err
		}
	}
	a.pages = nil
	return first
}
