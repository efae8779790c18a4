// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

// A blockTuple pairs a block with the low/high byte offsets of its
// currently-known hole.
type blockTuple struct {
	block *Block
	low   uint16
	high  uint16
}

// An allocator is the shared bump-into-a-hole algorithm every
// small-object allocator implements, differing only in how they react
// when the current block has no usable hole (handleNoHole) and how they
// obtain a fresh block (getNewBlock). Grounded on the Allocator trait of
// the Immix design this heap implements (shared scan-for-hole, differing
// fallback policy per allocator kind).
type allocator interface {
	// getAllBlocks drains every block this allocator currently owns
	// (current, recyclable and unavailable) for a collection.
	getAllBlocks() []*Block

	takeCurrentBlock() (blockTuple, bool)
	putCurrentBlock(blockTuple)
	getNewBlock() (blockTuple, bool)
	handleNoHole(size uintptr) (blockTuple, bool)
	handleFullBlock(b *Block)
}

// allocate runs the shared algorithm described in spec.md §4.4: try the
// current hole, else scan the current block for a bigger one, else ask
// the allocator-specific no-hole handler, else ask for a fresh block.
func allocate(a allocator, size uintptr, needsDestruction bool) Address {
	tp, ok := a.takeCurrentBlock()
	if ok {
		tp, ok = scanForHole(a, size, tp)
	}
	if !ok {
		tp, ok = a.handleNoHole(size)
	}
	if !ok {
		tp, ok = a.getNewBlock()
		if ok {
			tp, ok = scanForHole(a, size, tp)
		}
	}
	if !ok {
		return NullAddress
	}

	obj, rest := allocateFromBlock(size, tp)
	a.putCurrentBlock(rest)
	if needsDestruction {
		rest.block.needsDestruction++
	}
	return obj
}

// scanForHole finds a hole of at least size bytes starting from tp,
// rescanning the block as needed and reporting the block as full to the
// allocator when it runs out of holes.
func scanForHole(a allocator, size uintptr, tp blockTuple) (blockTuple, bool) {
	for {
		if uintptr(tp.high-tp.low) >= size {
			return tp, true
		}
		low, high, ok := tp.block.ScanHole(tp.high)
		if !ok {
			a.handleFullBlock(tp.block)
			return blockTuple{}, false
		}
		tp = blockTuple{block: tp.block, low: low, high: high}
	}
}

// allocateFromBlock carves size bytes off the low end of tp's hole and
// returns the object address plus the block tuple with its hole
// advanced past it. The caller must already know the hole fits size.
func allocateFromBlock(size uintptr, tp blockTuple) (Address, blockTuple) {
	low := uint16(alignUp(uintptr(tp.low), Alignment))
	obj := tp.block.Base().Add(uintptr(low))
	return obj, blockTuple{block: tp.block, low: low + uint16(size), high: tp.high}
}

// freshBlockTuple is the hole a just-obtained, empty block starts with:
// everything past the first line. Line 0 of a fresh block is left unused;
// a recycled block's line 0 can be handed out by ScanHole like any other
// unmarked line.
func freshBlockTuple(b *Block) blockTuple {
	return blockTuple{block: b, low: LineSize, high: BlockSize - 1}
}

// A normalAllocator is used for objects smaller than MediumObject. When
// its current block runs dry it first tries to recycle a block with
// leftover holes before asking the block allocator for a brand new one.
type normalAllocator struct {
	blockAllocator *BlockAllocator
	unavailable    []*Block
	recyclable     []*Block
	current        *blockTuple
}

func newNormalAllocator(ba *BlockAllocator) *normalAllocator {
	return &normalAllocator{blockAllocator: ba}
}

func (a *normalAllocator) Allocate(size uintptr, needsDestruction bool) Address {
	return allocate(a, size, needsDestruction)
}

func (a *normalAllocator) getAllBlocks() []*Block {
	blocks := append([]*Block(nil), a.unavailable...)
	blocks = append(blocks, a.recyclable...)
	if a.current != nil {
		blocks = append(blocks, a.current.block)
	}
	a.unavailable, a.recyclable, a.current = nil, nil, nil
	return blocks
}

func (a *normalAllocator) takeCurrentBlock() (blockTuple, bool) {
	if a.current == nil {
		return blockTuple{}, false
	}
	tp := *a.current
	a.current = nil
	return tp, true
}

func (a *normalAllocator) putCurrentBlock(tp blockTuple) { a.current = &tp }

func (a *normalAllocator) getNewBlock() (blockTuple, bool) {
	b := a.blockAllocator.GetBlock()
	if b == nil {
		return blockTuple{}, false
	}
	return freshBlockTuple(b), true
}

func (a *normalAllocator) handleNoHole(size uintptr) (blockTuple, bool) {
	if size >= MediumObject {
		return blockTuple{}, false
	}
	for len(a.recyclable) > 0 {
		n := len(a.recyclable) - 1
		b := a.recyclable[n]
		a.recyclable = a.recyclable[:n]

		low, high, ok := b.ScanHole(0)
		if !ok {
			a.handleFullBlock(b)
			continue
		}
		tp, ok := scanForHole(a, size, blockTuple{block: b, low: low, high: high})
		if ok {
			return tp, true
		}
	}
	return blockTuple{}, false
}

func (a *normalAllocator) handleFullBlock(b *Block) {
	a.unavailable = append(a.unavailable, b)
}

// setRecyclableBlocks replaces the recycle list after a sweep.
func (a *normalAllocator) setRecyclableBlocks(blocks []*Block) {
	a.recyclable = blocks
}

// An overflowAllocator handles objects in [MediumObject, LargeObject): it
// limits the fragmentation a NormalAllocator would otherwise cause by
// never retrying a recycled block, instead asking for a fresh one
// outright once the current block is exhausted.
type overflowAllocator struct {
	blockAllocator *BlockAllocator
	unavailable    []*Block
	current        *blockTuple
}

func newOverflowAllocator(ba *BlockAllocator) *overflowAllocator {
	return &overflowAllocator{blockAllocator: ba}
}

func (a *overflowAllocator) Allocate(size uintptr, needsDestruction bool) Address {
	return allocate(a, size, needsDestruction)
}

func (a *overflowAllocator) getAllBlocks() []*Block {
	blocks := append([]*Block(nil), a.unavailable...)
	if a.current != nil {
		blocks = append(blocks, a.current.block)
	}
	a.unavailable, a.current = nil, nil
	return blocks
}

func (a *overflowAllocator) takeCurrentBlock() (blockTuple, bool) {
	if a.current == nil {
		return blockTuple{}, false
	}
	tp := *a.current
	a.current = nil
	return tp, true
}

func (a *overflowAllocator) putCurrentBlock(tp blockTuple) { a.current = &tp }

func (a *overflowAllocator) getNewBlock() (blockTuple, bool) {
	b := a.blockAllocator.GetBlock()
	if b == nil {
		return blockTuple{}, false
	}
	return freshBlockTuple(b), true
}

func (a *overflowAllocator) handleNoHole(uintptr) (blockTuple, bool) { return blockTuple{}, false }

func (a *overflowAllocator) handleFullBlock(b *Block) {
	a.unavailable = append(a.unavailable, b)
}

// An evacAllocator is used only while the collector is evacuating. It
// never talks to the block allocator directly; it draws exclusively from
// a headroom list of blocks the previous cycle set aside. Once headroom
// runs out, evacuation of further objects simply fails and they are
// marked in place instead.
type evacAllocator struct {
	unavailable []*Block
	headroom    []*Block
	current     *blockTuple
}

func newEvacAllocator() *evacAllocator { return &evacAllocator{} }

func (a *evacAllocator) Allocate(size uintptr, needsDestruction bool) Address {
	return allocate(a, size, needsDestruction)
}

func (a *evacAllocator) getAllBlocks() []*Block {
	blocks := append([]*Block(nil), a.unavailable...)
	if a.current != nil {
		blocks = append(blocks, a.current.block)
	}
	a.unavailable, a.current = nil, nil
	return blocks
}

func (a *evacAllocator) takeCurrentBlock() (blockTuple, bool) {
	if a.current == nil {
		return blockTuple{}, false
	}
	tp := *a.current
	a.current = nil
	return tp, true
}

func (a *evacAllocator) putCurrentBlock(tp blockTuple) { a.current = &tp }

func (a *evacAllocator) getNewBlock() (blockTuple, bool) {
	n := len(a.headroom)
	if n == 0 {
		return blockTuple{}, false
	}
	b := a.headroom[n-1]
	a.headroom = a.headroom[:n-1]
	b.allocated = true
	return freshBlockTuple(b), true
}

func (a *evacAllocator) handleNoHole(uintptr) (blockTuple, bool) { return blockTuple{}, false }

func (a *evacAllocator) handleFullBlock(b *Block) {
	a.unavailable = append(a.unavailable, b)
}

// extendHeadroom adds blocks to the evacuation headroom list.
func (a *evacAllocator) extendHeadroom(blocks []*Block) {
	a.headroom = append(a.headroom, blocks...)
}

// HeadroomLen returns the number of blocks currently reserved for
// evacuation.
func (a *evacAllocator) HeadroomLen() int { return len(a.headroom) }
