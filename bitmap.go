// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "math/bits"

// A granuleBitmap is a flat bit array covering a range of addresses
// [base, base+span) with one bit per granule bytes. It underlies both the
// space bitmap (one bit per 16-byte allocation granule across the whole
// small-object arena) and a block's line map (one bit per 256-byte line
// within a single block) — the two uses in the specification that need
// "test one bit for an address, set/clear it, walk the set bits" and
// nothing else.
//
// Grounded on the bit-twiddling conventions of the teacher's uBits type
// (cznic/exp/dbm/bits.go), generalized from page-addressed file storage to
// a flat in-memory bit array, since this heap has no paged backing file.
type granuleBitmap struct {
	base    Address
	granule uintptr
	bits    []uint64
}

func newGranuleBitmap(base Address, span, granule uintptr) granuleBitmap {
	n := (span + granule - 1) / granule
	return granuleBitmap{
		base:    base,
		granule: granule,
		bits:    make([]uint64, (n+63)/64),
	}
}

func (b *granuleBitmap) index(addr Address) (word, bit uintptr) {
	g := addr.OffsetFrom(b.base) / b.granule
	return g / 64, g % 64
}

// Test reports whether the bit for addr is set.
func (b *granuleBitmap) Test(addr Address) bool {
	w, bit := b.index(addr)
	return b.bits[w]&(uint64(1)<<bit) != 0
}

// Set sets the bit for addr.
func (b *granuleBitmap) Set(addr Address) {
	w, bit := b.index(addr)
	b.bits[w] |= uint64(1) << bit
}

// Clear clears the bit for addr.
func (b *granuleBitmap) Clear(addr Address) {
	w, bit := b.index(addr)
	b.bits[w] &^= uint64(1) << bit
}

// ClearAll clears every bit.
func (b *granuleBitmap) ClearAll() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

// IsClear reports whether no bit is set.
func (b *granuleBitmap) IsClear() bool {
	for _, w := range b.bits {
		if w != 0 {
			return false
		}
	}
	return true
}

// Walk calls fn, in ascending address order, once for every set bit.
func (b *granuleBitmap) Walk(fn func(Address)) {
	for wi, w := range b.bits {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			w &^= uint64(1) << bit
			addr := b.base.Add(uintptr(wi*64+bit) * b.granule)
			fn(addr)
		}
	}
}

// A SpaceBitmap is the space bitmap described by the specification: one
// bit per allocation granule across the entire small-object address
// range, set iff an object starts at that address.
type SpaceBitmap struct {
	granuleBitmap
}

// NewSpaceBitmap creates a SpaceBitmap covering [base, base+span).
func NewSpaceBitmap(base Address, span uintptr) *SpaceBitmap {
	return &SpaceBitmap{granuleBitmap: newGranuleBitmap(base, span, Alignment)}
}
