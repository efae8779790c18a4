// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

// A BlockAllocator reserves one contiguous region of the small-object
// arena and hands out and recycles BlockSize-aligned blocks within it.
// All operations are constant time. It is the Go counterpart of the
// teacher's free-list-backed Allocator (cznic/exp/lldb/falloc.go) and its
// FLT slot bookkeeping (flt.go), generalized from disk atoms/handles to
// in-memory, block-sized spans.
type BlockAllocator struct {
	region *Region
	blocks []*Block // index i holds the Block for region.Base()+i*BlockSize

	free      *Block // intrusive singly linked free list, via Block.next
	freeCount int
	total     int
}

// NewBlockAllocator reserves a region of at least size bytes (rounded up
// to BlockSize) and carves it into free blocks.
func NewBlockAllocator(size uintptr) *BlockAllocator {
	region := NewRegion(size, BlockSize)
	n := int(region.Size() / BlockSize)
	ba := &BlockAllocator{
		region: region,
		blocks: make([]*Block, n),
		total:  n,
	}
	for i := n - 1; i >= 0; i-- {
		b := newBlock(region.Base().Add(uintptr(i) * BlockSize))
		ba.blocks[i] = b
		b.next = ba.free
		ba.free = b
	}
	ba.freeCount = n
	return ba
}

// TotalBlocks returns the number of blocks the region was carved into.
func (ba *BlockAllocator) TotalBlocks() int { return ba.total }

// AvailableBlocks returns the number of blocks currently on the free
// list.
func (ba *BlockAllocator) AvailableBlocks() int { return ba.freeCount }

// IsInSpace reports whether addr falls within the reserved region.
func (ba *BlockAllocator) IsInSpace(addr Address) bool {
	return ba.region.Contains(addr)
}

// BlockFor returns the Block metadata covering addr, or nil if addr is
// outside the reserved region.
func (ba *BlockAllocator) BlockFor(addr Address) *Block {
	if !ba.region.Contains(addr) {
		return nil
	}
	idx := addr.OffsetFrom(ba.region.Base()) / BlockSize
	return ba.blocks[idx]
}

// GetBlock pops a block off the free list, marks it allocated, and
// returns it. It returns nil if the free list is empty.
func (ba *BlockAllocator) GetBlock() *Block {
	b := ba.free
	if b == nil {
		return nil
	}
	ba.free = b.next
	ba.freeCount--
	b.next = nil
	b.allocated = true
	return b
}

// ReturnBlocks resets and pushes blocks back onto the free list.
func (ba *BlockAllocator) ReturnBlocks(blocks []*Block) {
	for _, b := range blocks {
		b.Reset()
		b.next = ba.free
		ba.free = b
		ba.freeCount++
	}
}
