// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "testing"

func TestBlockAllocatorGetReturn(t *testing.T) {
	ba := NewBlockAllocator(BlockSize * 4)
	if ba.TotalBlocks() != 4 {
		t.Fatalf("TotalBlocks = %d, want 4", ba.TotalBlocks())
	}
	if ba.AvailableBlocks() != 4 {
		t.Fatalf("AvailableBlocks = %d, want 4", ba.AvailableBlocks())
	}

	var got []*Block
	for i := 0; i < 4; i++ {
		b := ba.GetBlock()
		if b == nil {
			t.Fatalf("GetBlock returned nil on iteration %d", i)
		}
		if !b.allocated {
			t.Fatal("GetBlock must mark the block allocated")
		}
		got = append(got, b)
	}
	if ba.AvailableBlocks() != 0 {
		t.Fatalf("AvailableBlocks = %d, want 0 once exhausted", ba.AvailableBlocks())
	}
	if ba.GetBlock() != nil {
		t.Fatal("GetBlock on an exhausted allocator must return nil")
	}

	ba.ReturnBlocks(got)
	if ba.AvailableBlocks() != 4 {
		t.Fatalf("AvailableBlocks after ReturnBlocks = %d, want 4", ba.AvailableBlocks())
	}
	for _, b := range got {
		if b.allocated {
			t.Fatal("ReturnBlocks must clear allocated")
		}
	}
}

func TestBlockAllocatorBlockFor(t *testing.T) {
	ba := NewBlockAllocator(BlockSize * 2)
	b0 := ba.GetBlock()
	b1 := ba.GetBlock()

	if got := ba.BlockFor(b0.Base()); got != b0 {
		t.Error("BlockFor(b0.Base()) did not return b0")
	}
	if got := ba.BlockFor(b0.Base().Add(100)); got != b0 {
		t.Error("BlockFor of an address inside b0 did not return b0")
	}
	if got := ba.BlockFor(b1.Base()); got != b1 {
		t.Error("BlockFor(b1.Base()) did not return b1")
	}
	if ba.IsInSpace(ba.region.End()) {
		t.Error("IsInSpace must be false for the address just past the region")
	}
	if ba.BlockFor(ba.region.End()) != nil {
		t.Error("BlockFor must return nil outside the region")
	}
}
