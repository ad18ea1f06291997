// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import "testing"

func TestArenaMallocRejectsOversizedRequest(t *testing.T) {
	a := arena{pageSize: 256}
	if p, off := a.malloc(1024); p != nil || off != -1 {
		t.Fatal("a request larger than the page size must be rejected, not serviced")
	}
	if len(a.pages) != 0 {
		t.Fatal("a rejected request must not have grown the arena")
	}
}

func TestArenaMallocGrowsOnDemand(t *testing.T) {
	a := arena{pageSize: 256}

	p1, off1 := a.malloc(64)
	if p1 == nil || off1 == -1 {
		t.Fatal("first allocation into an empty arena should succeed")
	}
	if len(a.pages) != 1 {
		t.Fatalf("expected exactly 1 page after the first allocation, got %d", len(a.pages))
	}

	// Fill the rest of the first page so the next request must append a
	// second page.
	for p1.makeAllocation(64) != -1 {
	}
	before := len(a.pages)
	p2, off2 := a.malloc(64)
	if p2 == nil || off2 == -1 {
		t.Fatal("arena should grow a new page once the existing ones are full")
	}
	if len(a.pages) != before+1 {
		t.Fatalf("expected arena to grow by exactly one page, had %d now has %d", before, len(a.pages))
	}
	if p2 == p1 {
		t.Fatal("the new allocation should land on a fresh page, not the original")
	}
}

func TestArenaFindOwningPage(t *testing.T) {
	a := arena{pageSize: 256}
	page, off := a.malloc(32)
	payload := payloadBytes(page.storage, off, 32)

	found := a.findOwningPage(payload)
	if found != page {
		t.Fatal("findOwningPage must locate the page that actually produced the payload")
	}

	elsewhere := make([]byte, 32)
	if a.findOwningPage(elsewhere) != nil {
		t.Fatal("findOwningPage must return nil for a payload the arena never produced")
	}
}

func TestArenaReallocMigratesAcrossPages(t *testing.T) {
	a := arena{pageSize: 256}
	page, off := a.malloc(32)

	// Drain the rest of the first page so an in-place grow is impossible.
	for page.makeAllocation(64) != -1 {
	}

	newPage, newOff, moved := a.realloc(page, off, 200)
	if newPage == nil {
		t.Fatal("realloc should have found or grown a page to service the larger request")
	}
	if !moved {
		t.Fatal("growing past the original page's remaining capacity must report a move")
	}
	if newPage == page && newOff == off {
		t.Fatal("a reported move must actually land somewhere new")
	}
}

func TestArenaDestroyReleasesAllPages(t *testing.T) {
	a := arena{pageSize: 256}
	a.malloc(32)
	a.malloc(32)
	if len(a.pages) == 0 {
		t.Fatal("setup failed: expected at least one page")
	}
	if err := a.destroy(); err != nil {
		t.Fatalf("destroy returned an error: %v", err)
	}
	if len(a.pages) != 0 {
		t.Fatal("destroy must clear the page list")
	}
}
