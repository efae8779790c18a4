// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import (
	"sort"
	"unsafe"
)

// A PreciseAllocation is the header of a single large-object-space entry:
// one heap-allocated backing array holding exactly one object, tracked
// individually rather than carved out of a shared block.
type PreciseAllocation struct {
	storage       []byte
	base          Address
	cellSize      uintptr
	typeID        TypeID
	isMarked      bool
	hasValidCell  bool
	indexInSpace  int
	adjustedAlign bool
}

// Object returns the address of the managed object this allocation backs.
func (pa *PreciseAllocation) Object() Address { return pa.base }

// HalfAlignMask is the disambiguation mask large-object payloads satisfy
// and small-object block payloads never do: addr&HalfAlignMask != 0.
const HalfAlignMask = Alignment / 2

// A LargeObjectSpace holds every allocation at or above LargeObject size,
// each with its own precise header instead of a shared block. Grounded on
// spec.md §4.5; the teacher's equivalent is the extent list of
// cznic/exp/lldb/falloc.go, generalized from disk extents to individually
// headed heap allocations.
type LargeObjectSpace struct {
	allocations []*PreciseAllocation
	sorted      bool
}

// NewLargeObjectSpace creates an empty large-object space.
func NewLargeObjectSpace() *LargeObjectSpace {
	return &LargeObjectSpace{}
}

// Alloc reserves size bytes (header + payload) for an instance of id,
// returning the object address. The payload is positioned so that
// addr&HalfAlignMask != 0, disambiguating it from a small-object address
// on the conservative-scan path.
func (los *LargeObjectSpace) Alloc(size uintptr, id TypeID) Address {
	// Reserve enough slack to both align the slice's own base and then
	// push the payload to satisfy the half-alignment invariant.
	storage := make([]byte, size+2*Alignment)
	base := AddressOf(unsafe.Pointer(&storage[0])).AlignUp(Alignment)
	adjusted := false
	if uintptr(base)&HalfAlignMask == 0 {
		base = base.Add(HalfAlignMask)
		adjusted = true
	}

	pa := &PreciseAllocation{
		storage:       storage,
		base:          base,
		cellSize:      size,
		typeID:        id,
		hasValidCell:  true,
		indexInSpace:  len(los.allocations),
		adjustedAlign: adjusted,
	}
	NewHeader(base, id, false)
	los.allocations = append(los.allocations, pa)
	los.sorted = false
	return base
}

// find returns the PreciseAllocation whose payload base equals addr, or
// nil. It keeps the slice sorted by base address so repeated conservative
// scans can use binary search instead of a linear scan.
func (los *LargeObjectSpace) find(addr Address) *PreciseAllocation {
	if !los.sorted {
		sort.Slice(los.allocations, func(i, j int) bool {
			return los.allocations[i].base < los.allocations[j].base
		})
		for i, pa := range los.allocations {
			pa.indexInSpace = i
		}
		los.sorted = true
	}
	all := los.allocations
	i := sort.Search(len(all), func(i int) bool { return all[i].base >= addr })
	if i < len(all) && all[i].base == addr {
		return all[i]
	}
	return nil
}

// Contains reports whether addr is exactly the payload base of a live
// precise allocation.
func (los *LargeObjectSpace) Contains(addr Address) bool {
	return los.find(addr) != nil
}

// Mark marks the precise allocation whose payload starts at addr, if any.
// found reports whether addr named a live allocation at all; newlyMarked
// reports whether this call is what set its mark bit (false if it was
// already marked this cycle, or if found is false).
func (los *LargeObjectSpace) Mark(addr Address) (found, newlyMarked bool) {
	pa := los.find(addr)
	if pa == nil {
		return false, false
	}
	newlyMarked = !pa.isMarked
	pa.isMarked = true
	return true, newlyMarked
}

// Sweep destructs and frees every allocation whose mark bit is unset,
// then resets the remaining marks for the next cycle.
func (los *LargeObjectSpace) Sweep() {
	kept := los.allocations[:0]
	for _, pa := range los.allocations {
		if !pa.isMarked {
			if ti := lookupType(pa.typeID); ti != nil && ti.NeedsDestruction {
				ti.Destruct(pa.base)
			}
			continue
		}
		pa.isMarked = false
		pa.indexInSpace = len(kept)
		kept = append(kept, pa)
	}
	los.allocations = kept
	los.sorted = false
}

// LiveBytes returns the total cell size of every currently live
// allocation, used by the collector's threshold update.
func (los *LargeObjectSpace) LiveBytes() uintptr {
	var n uintptr
	for _, pa := range los.allocations {
		n += pa.cellSize
	}
	return n
}

// Len returns the number of live allocations.
func (los *LargeObjectSpace) Len() int { return len(los.allocations) }
