// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

import (
	"fmt"
	"os"
)

// trace, when flipped to true and recompiled, makes every public
// operation print a one-line trace to stderr — the same opt-in,
// source-edit-only debug switch the teacher library ships.
const trace = false

// Kind selects one of the four allocation strategies a given Allocator
// implements. The zero Kind is Default.
type Kind int

const (
	// Default passes each allocation straight through to the Go heap.
	// It holds no state of its own; its headers carry the sentinel
	// freelistID so an allocation can be recognized as Default-owned
	// without any side table.
	Default Kind = iota

	// TrackedDefault is Default plus a free-list-shaped ledger of every
	// outstanding allocation it has handed out. Its headers carry a
	// ledger index instead of the sentinel, and ownership is decided
	// from the ledger.
	TrackedDefault

	// StaticPage serves allocations from a single arena page, which may
	// be backed by caller-supplied memory or by a freshly mmap'd region.
	StaticPage

	// MultiPageArena serves allocations from a growable sequence of
	// arena pages sharing one page size.
	MultiPageArena
)

// Allocator is a tagged variant over the four strategies above. Every
// Allocator may chain to an optional Fallback, consulted when the
// primary strategy cannot satisfy a request. The chain is expected to
// be finite and acyclic; a Malloc that runs off the end of the chain
// without being satisfied returns nil (no Default is appended
// implicitly).
type Allocator struct {
	Fallback *Allocator

	kind Kind

	tracked   freeListHeap // TrackedDefault bookkeeping (headers are not page-resident)
	static    arenaPage    // StaticPage state
	multi     arena        // MultiPageArena state
	destroyed bool
}

// defaultAllocator is the process-global Default singleton. It is never
// destroyed; Destroy on it is a programmer error.
var defaultAllocator = &Allocator{kind: Default}

// NewTrackedDefault returns an Allocator that passes allocations through
// to the Go heap like Default, additionally tracking every outstanding
// allocation; ownership queries consult that ledger rather than the
// Default sentinel freelistID.
func NewTrackedDefault() *Allocator {
	return &Allocator{kind: TrackedDefault}
}

// NewStaticPage returns an Allocator serving a single arena page backed
// by a freshly OS-mmap'd region of size bytes. The page is released on
// Destroy.
func NewStaticPage(size int) (*Allocator, error) {
	storage, err := allocateBlocks(blocksFor(size))
	if err != nil {
		return nil, err
	}
	return &Allocator{kind: StaticPage, static: newArenaPageFromMemory(storage, true)}, nil
}

// NewStaticPageFromMemory returns an Allocator serving a single arena
// page backed by caller-supplied memory. The allocator assumes the
// caller's ownership of buf and will never free it, so buf may safely
// be a local array the caller keeps alive for the allocator's lifetime.
func NewStaticPageFromMemory(buf []byte) *Allocator {
	return &Allocator{kind: StaticPage, static: newArenaPageFromMemory(bytesToBlocks(buf), false)}
}

// NewStaticPageWithFallback is the STACK_ALLOCATOR_PLUS convenience from
// the source this package ports from: a StaticPage of size bytes whose
// Fallback is a fresh TrackedDefault, so callers get bump-arena speed
// until the page fills and then transparently spill to the Go heap.
func NewStaticPageWithFallback(size int) (*Allocator, error) {
	a, err := NewStaticPage(size)
	if err != nil {
		return nil, err
	}
	a.Fallback = NewTrackedDefault()
	return a, nil
}

// NewMultiPageArena returns an Allocator serving a growable sequence of
// arena pages, each pageSize bytes, allocated from the OS as needed.
func NewMultiPageArena(pageSize int) *Allocator {
	return &Allocator{kind: MultiPageArena, multi: arena{pageSize: pageSize}}
}

func resolve(a *Allocator) *Allocator {
	if a == nil {
		return defaultAllocator
	}
	return a
}

// Malloc allocates size bytes and returns them uninitialized, or nil if
// no allocator in the chain (starting at a, or the Default singleton if
// a is nil) could satisfy the request. Malloc(0) returns nil without
// allocating.
func (a *Allocator) Malloc(size int) (r []byte) {
	if trace {
		defer func() {
			var p *byte
			if len(r) != 0 {
				p = &r[0]
			}
			fmt.Fprintf(os.Stderr, "Malloc(%#x) %p\n", size, p)
		}()
	}
	return malloc(resolve(a), size)
}

func malloc(a *Allocator, size int) []byte {
	if size == 0 {
		return nil
	}
	if a.destroyed {
		abort("use of a destroyed allocator")
	}

	var payload []byte
	switch a.kind {
	case Default:
		payload = defaultMalloc(size)
	case TrackedDefault:
		payload = a.tracked.malloc(size)
	case StaticPage:
		if off := a.static.makeAllocation(size); off != -1 {
			payload = payloadBytes(a.static.storage, off, size)
		}
	case MultiPageArena:
		if p, off := a.multi.malloc(size); p != nil && off != -1 {
			payload = payloadBytes(p.storage, off, size)
		}
	}

	if payload != nil {
		return payload
	}
	if a.Fallback != nil {
		return malloc(a.Fallback, size)
	}
	return nil
}

// Calloc is like Malloc except the returned memory is zero-filled.
// count*size is computed with overflow checked; an overflowing request
// returns nil rather than silently wrapping to a small allocation (the
// source this package ports from leaves this case unspecified).
func (a *Allocator) Calloc(count, size int) []byte {
	total, ok := mulNoOverflow(count, size)
	if !ok {
		return nil
	}
	b := a.Malloc(total)
	if b == nil {
		return nil
	}
	for i := range b {
		b[i] = 0
	}
	return b
}

func mulNoOverflow(a, b int) (int, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/a != b {
		return 0, false
	}
	return p, true
}

// Copy allocates size bytes and copies the first min(len(src), size)
// bytes of src into them. An empty src or a zero size returns nil.
func (a *Allocator) Copy(src []byte, size int) []byte {
	if len(src) == 0 || size == 0 {
		return nil
	}
	b := a.Malloc(size)
	if b == nil {
		return nil
	}
	copy(b, src)
	return b
}

// findOwner walks the fallback chain starting at root looking for the
// allocator that owns payload.
func findOwner(root *Allocator, payload []byte) *Allocator {
	for cur := root; cur != nil; cur = cur.Fallback {
		if ownsMemory(cur, payload) {
			return cur
		}
	}
	return nil
}

func ownsMemory(a *Allocator, payload []byte) bool {
	if a == nil || len(payload) == 0 {
		return false
	}
	switch a.kind {
	case Default:
		return headerFromPayload(payload).freelistID == defaultFreelistID
	case TrackedDefault:
		return a.tracked.contains(payload)
	case StaticPage:
		return a.static.containsAddr(payload)
	case MultiPageArena:
		return a.multi.findOwningPage(payload) != nil
	}
	return false
}

// Realloc resizes payload (previously returned by Malloc/Calloc/Copy/
// Realloc of some allocator in a's fallback chain) to size bytes.
// size == 0 frees payload and returns nil. payload == nil behaves as
// Malloc(size). The owning allocator first tries to resize in place
// (page-backed owners may also move the allocation within their own
// pages). Cross-allocator migration — when the owner cannot serve the
// resize itself, a fresh allocation is drawn from the top of the chain
// and the original is freed via its true owner — is expected and legal.
func (a *Allocator) Realloc(payload []byte, size int) (r []byte) {
	if trace {
		defer func() {
			var p *byte
			if len(r) != 0 {
				p = &r[0]
			}
			fmt.Fprintf(os.Stderr, "Realloc(%p, %#x) %p\n", addrOrNil(payload), size, p)
		}()
	}

	root := resolve(a)
	if size == 0 {
		root.Free(payload)
		return nil
	}
	if len(payload) == 0 {
		return root.Malloc(size)
	}

	owner := findOwner(root, payload)
	if owner == nil {
		abort("passing unknown pointer to allocator for reallocation")
	}

	if result := reallocInPlace(owner, payload, size); result != nil {
		return result
	}

	fresh := malloc(root, size)
	if fresh == nil {
		return nil
	}
	n := len(payload)
	if len(fresh) < n {
		n = len(fresh)
	}
	copy(fresh, payload[:n])
	freeInternal(owner, payload)
	return fresh
}

func reallocInPlace(owner *Allocator, payload []byte, size int) []byte {
	switch owner.kind {
	case Default:
		return defaultRealloc(payload, size)
	case TrackedDefault:
		return owner.tracked.realloc(payload, size)
	case StaticPage:
		off := owner.static.offsetOf(payload)
		if owner.static.tryReallocateInPlace(off, size) {
			return payloadBytes(owner.static.storage, off, size)
		}
		if newOff := owner.static.makeAllocation(size); newOff != -1 {
			result := payloadBytes(owner.static.storage, newOff, size)
			n := len(payload)
			if len(result) < n {
				n = len(result)
			}
			copy(result, payload[:n])
			owner.static.freeAllocation(off)
			return result
		}
		return nil
	case MultiPageArena:
		page := owner.multi.findOwningPage(payload)
		off := page.offsetOf(payload)
		newPage, newOff, moved := owner.multi.realloc(page, off, size)
		if newPage == nil {
			return nil
		}
		result := payloadBytes(newPage.storage, newOff, size)
		if moved {
			n := len(payload)
			if len(result) < n {
				n = len(result)
			}
			copy(result, payload[:n])
			page.freeAllocation(off)
		}
		return result
	}
	return nil
}

// Free releases payload. A nil payload is a no-op. If no allocator in
// a's fallback chain owns payload, Free aborts: an unrecognised pointer
// is a programming error, not a recoverable condition.
func (a *Allocator) Free(payload []byte) {
	if trace {
		defer fmt.Fprintf(os.Stderr, "Free(%p)\n", addrOrNil(payload))
	}
	if len(payload) == 0 {
		return
	}

	root := resolve(a)
	owner := findOwner(root, payload)
	if owner == nil {
		abort("trying to free unrecognized pointer")
	}
	freeInternal(owner, payload)
}

func freeInternal(owner *Allocator, payload []byte) {
	switch owner.kind {
	case Default:
		// Nothing to do: the Go garbage collector reclaims the backing
		// array once the caller drops its last reference to payload.
	case TrackedDefault:
		owner.tracked.free(payload)
	case StaticPage:
		owner.static.freeAllocation(owner.static.offsetOf(payload))
	case MultiPageArena:
		page := owner.multi.findOwningPage(payload)
		page.freeAllocation(page.offsetOf(payload))
	}
}

// Destroy recursively destroys a's fallback chain and then releases a's
// own resources. Destroying the process-global Default singleton is a
// programmer error and aborts.
func (a *Allocator) Destroy() {
	if trace {
		defer fmt.Fprintf(os.Stderr, "Destroy(%p)\n", a)
	}
	if a == nil {
		return
	}
	if a == defaultAllocator {
		abort("default allocator cannot be destroyed")
	}

	if a.Fallback != nil {
		a.Fallback.Destroy()
		a.Fallback = nil
	}

	switch a.kind {
	case TrackedDefault:
		a.tracked = freeListHeap{}
	case StaticPage:
		_ = a.static.destroy()
	case MultiPageArena:
		_ = a.multi.destroy()
	}
	a.destroyed = true
}

func addrOrNil(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return &b[0]
}

// MustMalloc is Malloc but panics with *AllocatorError instead of
// returning nil, for callers that want the MALLOC/DMALLOC macro's
// abort-on-OOM behavior rather than manual nil-checking.
func (a *Allocator) MustMalloc(size int) []byte {
	b := a.Malloc(size)
	if b == nil {
		abort("out of memory")
	}
	return b
}

// MustCalloc is Calloc but panics instead of returning nil.
func (a *Allocator) MustCalloc(count, size int) []byte {
	b := a.Calloc(count, size)
	if b == nil {
		abort("out of memory")
	}
	return b
}

// MustRealloc is Realloc but panics instead of returning nil for a
// non-zero size.
func (a *Allocator) MustRealloc(payload []byte, size int) []byte {
	b := a.Realloc(payload, size)
	if b == nil && size != 0 {
		abort("out of memory")
	}
	return b
}

// MustCopy is Copy but panics instead of returning nil.
func (a *Allocator) MustCopy(src []byte, size int) []byte {
	b := a.Copy(src, size)
	if b == nil {
		abort("out of memory")
	}
	return b
}
