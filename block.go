// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

// A Block is the metadata for one 32 KiB, block-size-aligned span of the
// small-object arena. The line map, hole count, and allocated/evacuation
// flags live here; the payload itself lives in the arena at Base.
//
// Metadata is kept out of line (a plain Go struct, not embedded in the
// arena bytes the way the specification's native implementation stores
// the block header at the front of the 32 KiB span) because Go gives no
// safe way to carve a typed struct header out of a byte slice and keep
// mutating it in place without `unsafe` games that buy nothing here: the
// `block = addr &^ (BlockSize-1)` invariant only requires that payload
// addresses be block-aligned, which BlockAllocator already guarantees by
// construction, and a metadata registry indexed the same way gets there
// without also having to hand-roll the header's own bump allocation.
type Block struct {
	base Address
	lines granuleBitmap

	allocated           bool
	holeCount           int
	evacuationCandidate bool
	needsDestruction    int

	// next is the intrusive free-list link used by BlockAllocator; prev
	// is only cleared by Reset. The small-object allocators keep their
	// block lists in slices and use neither.
	prev, next *Block
}

func newBlock(base Address) *Block {
	return &Block{
		base:  base,
		lines: newGranuleBitmap(base, BlockSize, LineSize),
	}
}

// Base returns the block's payload start address.
func (b *Block) Base() Address { return b.base }

// blockBase computes the block-aligned base address containing addr.
func blockBase(addr Address) Address {
	return addr.AlignDown(BlockSize)
}

func (b *Block) lineIndex(offset uintptr) int {
	return int(offset / LineSize)
}

func (b *Block) lineMarked(i int) bool {
	return b.lines.Test(b.base.Add(uintptr(i) * LineSize))
}

func (b *Block) markLine(i int) {
	b.lines.Set(b.base.Add(uintptr(i) * LineSize))
}

func (b *Block) clearLine(i int) {
	b.lines.Clear(b.base.Add(uintptr(i) * LineSize))
}

// ObjectToLine returns the line index an object at the given offset into
// the block starts in.
func ObjectToLine(offsetInBlock uintptr) int {
	return int(offsetInBlock / LineSize)
}

// MarkObject marks every line the object spanning [offset, offset+size)
// touches.
func (b *Block) MarkObject(offset, size uintptr) {
	first := b.lineIndex(offset)
	last := b.lineIndex(offset + size - 1)
	for i := first; i <= last; i++ {
		b.markLine(i)
	}
}

// UnmarkObject clears every line the object spanning [offset, offset+size)
// touches. Used only when the caller already knows no other live object
// shares those lines (i.e. during a full block reset).
func (b *Block) UnmarkObject(offset, size uintptr) {
	first := b.lineIndex(offset)
	last := b.lineIndex(offset + size - 1)
	for i := first; i <= last; i++ {
		b.clearLine(i)
	}
}

// ScanHole scans the block for the next hole starting strictly after
// lastHigh (the high byte offset of the previously returned hole, or 0 to
// scan from the start of the block), and returns the lowest and highest
// usable byte offsets of that hole. low is rounded up to Alignment for
// payload use. ok is false if no hole remains.
//
// A hole is a maximal run of unmarked lines preceded by either the start
// of the block or a marked line, per the specification's §4.2 definition.
func (b *Block) ScanHole(lastHigh uint16) (low, high uint16, ok bool) {
	startLine := 0
	if lastHigh != 0 {
		startLine = int(lastHigh)/LineSize + 1
	}
	for lowIdx := startLine; lowIdx < NumLines; lowIdx++ {
		if b.lineMarked(lowIdx) {
			continue
		}
		highIdx := lowIdx
		for highIdx < NumLines && !b.lineMarked(highIdx) {
			highIdx++
		}
		loOff := alignUp(uintptr(lowIdx*LineSize), Alignment)
		hiOff := uintptr(highIdx*LineSize) - 1
		return uint16(loOff), uint16(hiOff), true
	}
	return 0, 0, false
}

// CountHoles recomputes and caches the number of holes in the block. It
// must be called once per sweep before evacuation candidates are chosen
// from hole/marked-line counts.
func (b *Block) CountHoles() int {
	holes := 0
	inHole := false
	for i := 0; i < NumLines; i++ {
		if !b.lineMarked(i) {
			if !inHole {
				holes++
				inHole = true
			}
		} else {
			inHole = false
		}
	}
	b.holeCount = holes
	return holes
}

// HoleCount returns the value CountHoles last computed.
func (b *Block) HoleCount() int { return b.holeCount }

// MarkedLines returns the number of currently marked lines. CountHoles
// must have been called first for HoleCount to be meaningful alongside
// it, matching the specification's pairing of (hole_count, marked_lines)
// used to pick evacuation candidates.
func (b *Block) MarkedLines() int {
	n := 0
	for i := 0; i < NumLines; i++ {
		if b.lineMarked(i) {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no line in the block is marked.
func (b *Block) IsEmpty() bool {
	return b.lines.IsClear()
}

// Reset clears all per-cycle state, returning the block to its pristine,
// unallocated condition. Called when a block is handed back to the block
// allocator's free list.
func (b *Block) Reset() {
	b.lines.ClearAll()
	b.allocated = false
	b.holeCount = 0
	b.evacuationCandidate = false
	b.needsDestruction = 0
	b.prev, b.next = nil, nil
}
