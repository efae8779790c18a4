// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "testing"

func TestLargeObjectSpaceAllocHalfAligned(t *testing.T) {
	id := RegisterType(&TypeInfo{Name: "los-test-a"})
	los := NewLargeObjectSpace()

	addr := los.Alloc(LargeObject, id)
	if addr.IsNull() {
		t.Fatal("Alloc returned a null address")
	}
	if uintptr(addr)&HalfAlignMask == 0 {
		t.Fatalf("payload %#x does not satisfy the half-alignment invariant", addr)
	}
	if !los.Contains(addr) {
		t.Error("Contains should report true for a just-allocated address")
	}
	if los.Len() != 1 {
		t.Fatalf("Len = %d, want 1", los.Len())
	}
}

func TestLargeObjectSpaceMarkFoundVsNewlyMarked(t *testing.T) {
	id := RegisterType(&TypeInfo{Name: "los-test-b"})
	los := NewLargeObjectSpace()
	addr := los.Alloc(LargeObject, id)

	if found, _ := los.Mark(NullAddress.Add(0x1000)); found {
		t.Error("Mark of an address never allocated should report found=false")
	}

	found, newly := los.Mark(addr)
	if !found || !newly {
		t.Fatalf("first Mark: found=%v newly=%v, want true,true", found, newly)
	}

	found, newly = los.Mark(addr)
	if !found || newly {
		t.Fatalf("second Mark same cycle: found=%v newly=%v, want true,false", found, newly)
	}
}

func TestLargeObjectSpaceSweepReclaimsUnmarked(t *testing.T) {
	id := RegisterType(&TypeInfo{Name: "los-test-c"})
	los := NewLargeObjectSpace()

	keep := los.Alloc(LargeObject, id)
	drop := los.Alloc(LargeObject, id)

	los.Mark(keep)
	los.Sweep()

	if !los.Contains(keep) {
		t.Error("Sweep dropped an object that was marked")
	}
	if los.Contains(drop) {
		t.Error("Sweep kept an object that was never marked")
	}
	if los.Len() != 1 {
		t.Fatalf("Len after Sweep = %d, want 1", los.Len())
	}

	// The survivor's mark must have been reset for the next cycle.
	found, newly := los.Mark(keep)
	if !found || !newly {
		t.Error("Sweep must clear mark bits on survivors")
	}
}

func TestLargeObjectSpaceLiveBytes(t *testing.T) {
	id := RegisterType(&TypeInfo{Name: "los-test-d"})
	los := NewLargeObjectSpace()
	los.Alloc(LargeObject, id)
	los.Alloc(LargeObject*2, id)

	if got, want := los.LiveBytes(), LargeObject*3; got != want {
		t.Errorf("LiveBytes = %d, want %d", got, want)
	}
}
