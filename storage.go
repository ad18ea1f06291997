// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import "unsafe"

// allocateBlocks asks the OS for a fresh, zeroed region of at least n
// blocks via mmap, the same OS-backed page source the teacher library
// uses for its own slab pages. Pages obtained this way live outside the
// Go runtime's heap, so the header-before-payload pointer arithmetic on
// such pages has no garbage collector that could relocate or reclaim
// the region out from under an address the allocator is still doing
// arithmetic on. Default and TrackedDefault allocations, and pages over
// caller-supplied memory, are not mmap'd and live wherever Go put them.
func allocateBlocks(n int) ([]Block, error) {
	raw, err := osMmap(n * blockSize)
	if err != nil {
		return nil, err
	}
	return bytesToBlocks(raw), nil
}

// releaseBlocks returns a region obtained from allocateBlocks to the OS.
func releaseBlocks(storage []Block) error {
	if len(storage) == 0 {
		return nil
	}
	return osMunmap(blocksToBytes(storage))
}

func bytesToBlocks(b []byte) []Block {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*Block)(unsafe.Pointer(&b[0])), len(b)/blockSize)
}

func blocksToBytes(s []Block) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*blockSize)
}
