// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cznic/mathutil"
)

func TestMallocZeroReturnsNil(t *testing.T) {
	a := NewTrackedDefault()
	if b := a.Malloc(0); b != nil {
		t.Fatal("Malloc(0) must return nil without allocating")
	}
}

func TestMallocNilReceiverUsesDefault(t *testing.T) {
	var a *Allocator
	b := a.Malloc(16)
	if b == nil {
		t.Fatal("a nil *Allocator must behave as the Default singleton")
	}
	if !ownsMemory(defaultAllocator, b) {
		t.Fatal("a nil-receiver Malloc must be owned by the Default singleton")
	}
}

func TestCallocZeroesMemory(t *testing.T) {
	a := NewTrackedDefault()
	b := a.Calloc(8, 4)
	if len(b) != 32 {
		t.Fatalf("len = %d, want 32", len(b))
	}
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, v)
		}
	}
}

func TestCallocOverflowReturnsNil(t *testing.T) {
	a := NewTrackedDefault()
	if b := a.Calloc(math.MaxInt, 2); b != nil {
		t.Fatal("an overflowing count*size must return nil rather than wrapping")
	}
}

func TestCopy(t *testing.T) {
	a := NewTrackedDefault()
	src := []byte("hello, allocator")
	b := a.Copy(src, len(src))
	if string(b) != string(src) {
		t.Fatalf("Copy = %q, want %q", b, src)
	}
}

func TestReallocNilPayloadIsMalloc(t *testing.T) {
	a := NewTrackedDefault()
	b := a.Realloc(nil, 16)
	if b == nil || len(b) != 16 {
		t.Fatal("Realloc(nil, size) must behave like Malloc(size)")
	}
}

func TestReallocZeroSizeFrees(t *testing.T) {
	a := NewTrackedDefault()
	b := a.Malloc(16)
	if r := a.Realloc(b, 0); r != nil {
		t.Fatal("Realloc(payload, 0) must return nil")
	}
	if a.tracked.contains(b) {
		t.Fatal("Realloc(payload, 0) must have freed the original allocation")
	}
}

func TestFallbackRoutingToDefault(t *testing.T) {
	static := NewStaticPageFromMemory(make([]byte, 64))
	static.Fallback = &Allocator{kind: Default}

	b := static.Malloc(1024) // too big for a 64-byte page
	if b == nil {
		t.Fatal("expected the fallback Default allocator to service the request")
	}
	if !ownsMemory(static.Fallback, b) {
		t.Fatal("the fallback, not the primary, should own the oversized allocation")
	}
}

func TestOwnershipDispatchIsExclusive(t *testing.T) {
	primary := NewTrackedDefault()
	primary.Fallback = NewTrackedDefault()

	a := primary.Malloc(8)
	b := primary.Fallback.Malloc(8)

	owners := 0
	for cur := primary; cur != nil; cur = cur.Fallback {
		if ownsMemory(cur, a) {
			owners++
		}
	}
	if owners != 1 {
		t.Fatalf("payload a was reported owned by %d allocators in the chain, want 1", owners)
	}
	if ownsMemory(primary, b) {
		t.Fatal("the primary must not claim ownership of the fallback's allocation")
	}
}

func TestDestroyDefaultSingletonAborts(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("destroying the Default singleton must panic")
		}
	}()
	defaultAllocator.Destroy()
}

func TestMustMallocPanicsOnFailure(t *testing.T) {
	a := NewMultiPageArena(64) // no fallback, and 1 MiB is far larger than a 64-byte page
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("MustMalloc must panic when the request cannot be satisfied")
		}
	}()
	a.MustMalloc(1 << 20)
}

// --- end-to-end scenarios -----------------------------------------------

func TestScenarioStackAllocatorCapacity(t *testing.T) {
	buf := make([]byte, 450)
	a := NewStaticPageFromMemory(buf)

	successes := 0
	for i := 0; i < 10; i++ {
		if b := a.Malloc(100); b != nil {
			successes++
		} else {
			break
		}
	}
	if successes != 3 {
		t.Fatalf("successes = %d, want 3", successes)
	}
}

func TestScenarioStackPlusFallback(t *testing.T) {
	a, err := NewStaticPageWithFallback(500)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		if b := a.Malloc(120); b == nil {
			t.Fatalf("allocation %d should not fail", i)
		}
	}

	a.Destroy()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("using the allocator after Destroy should abort")
		}
	}()
	a.Malloc(8)
}

func TestScenarioReallocationStorm(t *testing.T) {
	sizeTable := []int{1, 2, 3, 4, 5, 8, 10, 11, 12, 13, 16, 24, 27, 32, 64, 90, 100, 112, 512, 600, 1024}

	rng, err := mathutil.NewFC32(0, len(sizeTable)-1, true)
	if err != nil {
		t.Fatal(err)
	}
	rng.Seed(42)

	a := NewMultiPageArena(1 << 20)
	defer a.Destroy()

	fill := func(b []byte, id int) {
		for i := 0; i+4 <= len(b); i += 4 {
			binary.LittleEndian.PutUint32(b[i:], uint32(id))
		}
	}
	verify := func(b []byte, id int) bool {
		for i := 0; i+4 <= len(b); i += 4 {
			if binary.LittleEndian.Uint32(b[i:]) != uint32(id) {
				return false
			}
		}
		return true
	}

	const arrayCount = 4096
	arrays := make([][]byte, arrayCount)
	for i := range arrays {
		size := sizeTable[rng.Next()] * 4
		b := a.MustMalloc(size)
		fill(b, i)
		arrays[i] = b
	}

	for n := 0; n < 10000; n++ {
		i := n % arrayCount
		size := sizeTable[rng.Next()] * 4
		b := a.MustRealloc(arrays[i], size)
		fill(b, i)
		arrays[i] = b
	}

	for i, b := range arrays {
		if !verify(b, i) {
			t.Fatalf("array %d lost its identifier across the reallocation storm", i)
		}
	}
}

func TestScenarioSplitAndCoalesce(t *testing.T) {
	a := NewMultiPageArena(1 << 16)
	defer a.Destroy()

	regionA := a.MustMalloc(24)
	regionB := a.MustMalloc(16)
	regionC := a.MustMalloc(40)
	_, _, _ = regionA, regionB, regionC

	a.Free(regionB)
	a.Free(regionA)
	a.Free(regionC)

	page := a.multi.pages[0]
	if page.freelist.count() != 0 {
		t.Fatalf("free list count = %d, want 0", page.freelist.count())
	}
	if page.head != 0 {
		t.Fatalf("head = %d, want 0", page.head)
	}
}

func TestScenarioOversizedRequestFallback(t *testing.T) {
	a := NewMultiPageArena(4096)
	a.Fallback = &Allocator{kind: Default}
	defer a.Destroy()

	b := a.Malloc(1 << 20)
	if b == nil {
		t.Fatal("expected the Default fallback to service the oversized request")
	}
	a.Free(b)
}

func TestScenarioUnrecognisedFreeAborts(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("freeing a pointer no chained allocator owns must abort")
		}
	}()
	a := NewTrackedDefault()
	foreign := make([]byte, 16)
	a.Free(foreign)
}
