// Copyright 2024 The Allocator Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allocator

// defaultMalloc allocates size bytes straight from the Go heap via
// make, the direct analogue of the source library's passthrough to
// the C system allocator. The header is stamped with the sentinel
// freelistID so the allocation is recognizable as Default-owned without
// any side table.
func defaultMalloc(size int) []byte {
	storage := make([]Block, headerBlocks+blocksFor(size))
	h := headerAt(storage, 0)
	h.blockCount = uint32(blocksFor(size))
	h.freelistID = defaultFreelistID
	return payloadBytes(storage, 0, size)
}

// defaultRealloc resizes payload in place when it already fits within
// its allocated capacity (Go's slice capacity makes this free, unlike
// the C source which must ask the system allocator every time), and
// otherwise allocates fresh and copies, exactly as Realloc's top-level
// migration fallback would have done anyway.
func defaultRealloc(payload []byte, size int) []byte {
	h := headerFromPayload(payload)
	if size <= cap(payload) {
		h.blockCount = uint32(blocksFor(size))
		return payload[:size]
	}

	fresh := defaultMalloc(size)
	copy(fresh, payload)
	return fresh
}
