// Package membuffer implements the Memory Region and Atomic Buffer
// abstractions: a contiguous, 8-byte-aligned byte region and a
// width-typed, bounds-checked, ordered/atomic view over it. Everything
// else in this module — record framing, ring trailers, the MPSC/SPSC
// rings, Snowflake — is built on top of an AtomicBuffer.
package membuffer

import "unsafe"

// MemoryRegion owns a contiguous, zero-initialized byte block aligned to
// at least 8 bytes. Its lifetime is independent of any AtomicBuffer views
// taken over it; views borrow the region and must not outlive it.
type MemoryRegion struct {
	backing []uint64 // keeps the allocation 8-byte aligned and alive
	data    []byte
}

// NewMemoryRegion allocates a region of exactly length bytes. length must
// be positive; the underlying allocation is rounded up to a whole number
// of 8-byte words but the region only exposes length bytes.
func NewMemoryRegion(length int) *MemoryRegion {
	if length <= 0 {
		Fatalf("memory region length=%d must be positive", length)
	}
	words := (length + 7) / 8
	backing := make([]uint64, words)
	data := unsafe.Slice((*byte)(unsafe.Pointer(&backing[0])), words*8)[:length]
	return &MemoryRegion{backing: backing, data: data}
}

// Bytes returns the region's full byte view. Callers that need a
// sub-view should slice it and wrap with Wrap.
func (m *MemoryRegion) Bytes() []byte { return m.data }

// Len returns the region's length in bytes.
func (m *MemoryRegion) Len() int { return len(m.data) }

// View returns an AtomicBuffer over the whole region.
func (m *MemoryRegion) View() *AtomicBuffer { return Wrap(m.data) }
