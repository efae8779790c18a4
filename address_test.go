// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "testing"

func TestRegionBaseAligned(t *testing.T) {
	r := NewRegion(BlockSize*4, BlockSize)
	if uintptr(r.Base())%BlockSize != 0 {
		t.Fatalf("region base %#x not %d-aligned", r.Base(), BlockSize)
	}
	if r.Size() != BlockSize*4 {
		t.Fatalf("region size = %d, want %d", r.Size(), BlockSize*4)
	}
}

func TestRegionContains(t *testing.T) {
	r := NewRegion(BlockSize, BlockSize)
	if !r.Contains(r.Base()) {
		t.Fatal("region does not contain its own base")
	}
	if !r.Contains(r.End() - 1) {
		t.Fatal("region does not contain its last byte")
	}
	if r.Contains(r.End()) {
		t.Fatal("region contains its end address")
	}
	if r.Contains(r.Base() - 1) {
		t.Fatal("region contains an address before its base")
	}
}

func TestAlignUpDown(t *testing.T) {
	cases := []struct{ v, align, up, down uintptr }{
		{0, 16, 0, 0},
		{1, 16, 16, 0},
		{16, 16, 16, 16},
		{17, 16, 32, 16},
	}
	for _, c := range cases {
		if got := alignUp(c.v, c.align); got != c.up {
			t.Errorf("alignUp(%d, %d) = %d, want %d", c.v, c.align, got, c.up)
		}
		if got := alignDown(c.v, c.align); got != c.down {
			t.Errorf("alignDown(%d, %d) = %d, want %d", c.v, c.align, got, c.down)
		}
	}
}

func TestAddressArithmetic(t *testing.T) {
	a := Address(1000)
	if got := a.Add(24); got != Address(1024) {
		t.Errorf("Add: got %d, want 1024", got)
	}
	if got := a.Sub(1000); got != Address(0) {
		t.Errorf("Sub: got %d, want 0", got)
	}
	if got := Address(1024).OffsetFrom(a); got != 24 {
		t.Errorf("OffsetFrom: got %d, want 24", got)
	}
	if NullAddress.Pointer() != nil {
		t.Error("NullAddress.Pointer() should be nil")
	}
	if !NullAddress.IsNull() {
		t.Error("NullAddress.IsNull() should be true")
	}
}
