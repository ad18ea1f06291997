// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import "testing"

func TestAllocateAndReleaseBlocks(t *testing.T) {
	storage, err := allocateBlocks(16)
	if err != nil {
		t.Fatalf("allocateBlocks: %v", err)
	}
	if len(storage) != 16 {
		t.Fatalf("len(storage) = %d, want 16", len(storage))
	}
	for i, b := range storage {
		if b != 0 {
			t.Fatalf("block %d = %#x, want a freshly mmap'd zero block", i, b)
		}
	}
	if err := releaseBlocks(storage); err != nil {
		t.Fatalf("releaseBlocks: %v", err)
	}
}

func TestBytesBlocksRoundTrip(t *testing.T) {
	raw := make([]byte, 5*blockSize)
	for i := range raw {
		raw[i] = byte(i)
	}
	blocks := bytesToBlocks(raw)
	if len(blocks) != 5 {
		t.Fatalf("len(blocks) = %d, want 5", len(blocks))
	}
	back := blocksToBytes(blocks)
	if len(back) != len(raw) {
		t.Fatalf("len(back) = %d, want %d", len(back), len(raw))
	}
	for i := range raw {
		if back[i] != raw[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, back[i], raw[i])
		}
	}
}
