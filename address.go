// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "unsafe"

// An Address is a typed wrapper around a raw memory location inside one of
// the heap's reserved regions (the small-object arena or a precise
// allocation's body). It exists to keep pointer arithmetic explicit and to
// stop addresses and ordinary Go pointers from being confused with each
// other at call sites.
type Address uintptr

// NullAddress is the zero Address; it never refers to a real object.
const NullAddress Address = 0

// AddressOf returns the Address of the byte p points to.
func AddressOf(p unsafe.Pointer) Address {
	return Address(uintptr(p))
}

// Pointer converts a back to an unsafe.Pointer into the arena it was
// carved from. Callers must only do this for addresses known to fall
// inside a live reservation.
func (a Address) Pointer() unsafe.Pointer {
	return unsafe.Pointer(a)
}

// IsNull reports whether a is the null address.
func (a Address) IsNull() bool {
	return a == NullAddress
}

// Add returns a+n.
func (a Address) Add(n uintptr) Address {
	return a + Address(n)
}

// Sub returns a-n.
func (a Address) Sub(n uintptr) Address {
	return a - Address(n)
}

// Diff returns a-b as a signed byte distance.
func (a Address) Diff(b Address) int64 {
	return int64(a) - int64(b)
}

// OffsetFrom returns the byte offset of a from base. The caller must
// ensure a >= base.
func (a Address) OffsetFrom(base Address) uintptr {
	return uintptr(a - base)
}

// alignUp rounds v up to the nearest multiple of align. align must be a
// power of two.
func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// alignDown rounds v down to the nearest multiple of align. align must be
// a power of two.
func alignDown(v, align uintptr) uintptr {
	return v &^ (align - 1)
}

// AlignUp rounds a up to the nearest multiple of align.
func (a Address) AlignUp(align uintptr) Address {
	return Address(alignUp(uintptr(a), align))
}

// AlignDown rounds a down to the nearest multiple of align.
func (a Address) AlignDown(align uintptr) Address {
	return Address(alignDown(uintptr(a), align))
}

// aligned reports whether v is a multiple of align.
func aligned(v, align uintptr) bool {
	return v&(align-1) == 0
}

// A Region is a contiguous span of address space, rounded up to a
// caller-chosen alignment, carved out of a single backing allocation. It
// is the unit the block allocator reserves; the large object space does
// not use Regions.
type Region struct {
	storage []byte
	base    Address
	size    uintptr
}

// NewRegion reserves a new Region of at least size bytes, rounded up to
// align. The backing storage is a single Go byte slice; since Go's garbage
// collector never interprets []byte contents as pointers, tagged or
// otherwise-invalid bit patterns stored inside it (as object headers are)
// are safe to keep there.
func NewRegion(size, align uintptr) *Region {
	rounded := alignUp(size, align)
	// Overallocate by align so we can carve out an aligned sub-slice
	// regardless of where the Go allocator happened to place storage.
	storage := make([]byte, rounded+align)
	base := AddressOf(unsafe.Pointer(&storage[0])).AlignUp(align)
	return &Region{storage: storage, base: base, size: rounded}
}

// Base returns the aligned start address of the region.
func (r *Region) Base() Address { return r.base }

// Size returns the usable size of the region in bytes.
func (r *Region) Size() uintptr { return r.size }

// End returns the address just past the end of the region.
func (r *Region) End() Address { return r.base.Add(r.size) }

// Contains reports whether addr lies within [Base, End).
func (r *Region) Contains(addr Address) bool {
	return addr >= r.base && addr < r.End()
}

// Slice returns the byte slice backing [addr, addr+n) within the region.
// The caller must ensure the range falls inside the region.
func (r *Region) Slice(addr Address, n uintptr) []byte {
	off := addr.OffsetFrom(r.base)
	return r.storage[off : off+n : off+n]
}
