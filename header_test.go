// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import (
	"runtime"
	"testing"
	"unsafe"
)

// testHeaderStorage returns a byte slice and the Address of its first
// byte. Callers must runtime.KeepAlive(storage) for as long as obj is in
// use: once obj is a bare uintptr-derived Address, nothing else keeps
// the backing array reachable to Go's own garbage collector.
func testHeaderStorage() (storage []byte, obj Address) {
	storage = make([]byte, 64)
	return storage, AddressOf(unsafe.Pointer(&storage[0]))
}

func TestHeaderTypeIDRoundTrip(t *testing.T) {
	id := RegisterType(&TypeInfo{Name: "header-test-a"})
	storage, obj := testHeaderStorage()
	defer runtime.KeepAlive(storage)
	NewHeader(obj, id, false)

	if got := HeaderTypeID(obj); got != id {
		t.Errorf("HeaderTypeID = %d, want %d", got, id)
	}
	if got := HeaderTypeInfo(obj); got.Name != "header-test-a" {
		t.Errorf("HeaderTypeInfo().Name = %q, want %q", got.Name, "header-test-a")
	}
}

func TestHeaderMarkIdempotent(t *testing.T) {
	id := RegisterType(&TypeInfo{Name: "header-test-b"})
	storage, obj := testHeaderStorage()
	defer runtime.KeepAlive(storage)
	NewHeader(obj, id, false)

	if HeaderIsMarked(obj) {
		t.Fatal("freshly allocated header should not start marked")
	}
	if already := HeaderMark(obj, true); already {
		t.Error("first HeaderMark(true) should report not-already-set")
	}
	if !HeaderIsMarked(obj) {
		t.Fatal("HeaderMark(true) did not set the mark bit")
	}
	if already := HeaderMark(obj, true); !already {
		t.Error("second HeaderMark(true) should report already-set")
	}
	if already := HeaderMark(obj, false); already {
		t.Error("HeaderMark(false) after being marked true should report not-already-set")
	}
	if HeaderIsMarked(obj) {
		t.Fatal("HeaderMark(false) did not clear the mark bit")
	}
}

func TestHeaderPin(t *testing.T) {
	id := RegisterType(&TypeInfo{Name: "header-test-c"})
	storage, obj := testHeaderStorage()
	defer runtime.KeepAlive(storage)
	NewHeader(obj, id, false)

	if HeaderIsPinned(obj) {
		t.Fatal("freshly allocated header should not start pinned")
	}
	HeaderPin(obj)
	if !HeaderIsPinned(obj) {
		t.Fatal("HeaderPin did not set the pin bit")
	}
	HeaderUnpin(obj)
	if HeaderIsPinned(obj) {
		t.Fatal("HeaderUnpin did not clear the pin bit")
	}
}

func TestHeaderForwarding(t *testing.T) {
	id := RegisterType(&TypeInfo{Name: "header-test-d"})
	storage, obj := testHeaderStorage()
	defer runtime.KeepAlive(storage)
	NewHeader(obj, id, true)

	newAddr := Address(0x123456)
	HeaderSetForwarded(obj, newAddr)

	if !HeaderIsForwarded(obj) {
		t.Fatal("HeaderSetForwarded did not set the forwarded bit")
	}
	if got := HeaderForwardingAddress(obj); got != newAddr {
		t.Errorf("HeaderForwardingAddress = %#x, want %#x", got, newAddr)
	}
}

func TestTypeInfoIs(t *testing.T) {
	base := &TypeInfo{Name: "base"}
	derived := &TypeInfo{Name: "derived", Parent: base}

	if !derived.Is(base) {
		t.Error("derived.Is(base) should be true")
	}
	if !derived.Is(derived) {
		t.Error("derived.Is(derived) should be true")
	}
	if base.Is(derived) {
		t.Error("base.Is(derived) should be false")
	}
}
