// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "testing"

// nodeSize is large enough to land in the normal allocator but leaves
// plenty of headroom in a small test heap.
const nodeSize = 64

func refSlotType(name string) *TypeInfo {
	ti := &TypeInfo{Name: name, HeapSize: fixedSize(nodeSize)}
	ti.Trace = func(obj Address, tr Tracer) {
		slot := Payload(obj)
		child := Address(*(*uintptr)(slot.Pointer()))
		if !child.IsNull() {
			addr := child
			tr.Visit(&addr)
			if addr != child {
				*(*uintptr)(slot.Pointer()) = uintptr(addr)
			}
		}
	}
	return ti
}

func setChild(obj, child Address) {
	*(*uintptr)(Payload(obj).Pointer()) = uintptr(child)
}

func TestHeapAllocateReturnsZeroedDistinctAddresses(t *testing.T) {
	h, err := NewHeap(DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	id := RegisterType(&TypeInfo{Name: "heap-test-zeroed", HeapSize: fixedSize(nodeSize)})

	a := h.Allocate(nodeSize, id)
	b := h.Allocate(nodeSize, id)
	if a == b {
		t.Fatal("two live allocations must not alias")
	}
	payload := Payload(a)
	for i := uintptr(0); i < nodeSize-headerSizeForTest(); i++ {
		if *(*byte)(payload.Add(i).Pointer()) != 0 {
			t.Fatalf("payload byte %d not zeroed", i)
		}
	}
}

func headerSizeForTest() uintptr { return headerSize }

func TestHeapReachableSurvivesCollection(t *testing.T) {
	opts := Options{HeapSize: BlockSize * 4, MinThreshold: BlockSize}
	h, err := NewHeap(opts, nil)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	id := RegisterType(refSlotType("heap-test-reachable"))

	root := h.Allocate(nodeSize, id)
	handle := h.NewHandle(root)
	defer handle.Release()

	h.Gc()

	if handle.Get().IsNull() {
		t.Fatal("rooted object must survive a collection")
	}
}

func TestHeapTransitiveReachabilitySurvivesCollection(t *testing.T) {
	opts := Options{HeapSize: BlockSize * 4, MinThreshold: BlockSize}
	h, err := NewHeap(opts, nil)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	id := RegisterType(refSlotType("heap-test-transitive"))

	root := h.Allocate(nodeSize, id)
	child := h.Allocate(nodeSize, id)
	setChild(root, child)

	handle := h.NewHandle(root)
	defer handle.Release()

	h.Gc()

	gotRoot := handle.Get()
	if gotRoot.IsNull() {
		t.Fatal("rooted object must survive a collection")
	}
	gotChild := Address(*(*uintptr)(Payload(gotRoot).Pointer()))
	if gotChild.IsNull() {
		t.Fatal("child reachable only through the rooted object's slot must survive a collection")
	}
}

func TestHeapUnreachableIsReclaimed(t *testing.T) {
	opts := Options{HeapSize: BlockSize * 4, MinThreshold: BlockSize}
	h, err := NewHeap(opts, nil)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	id := RegisterType(refSlotType("heap-test-unreachable"))

	h.Allocate(nodeSize, id) // never rooted
	before := h.HeapUsage()

	h.Gc()

	after := h.HeapUsage()
	if after >= before {
		t.Errorf("HeapUsage after collecting an unreachable object = %d, want < %d", after, before)
	}
}

func TestHeapWeakRefClearedWhenUnreachable(t *testing.T) {
	opts := Options{HeapSize: BlockSize * 4, MinThreshold: BlockSize}
	h, err := NewHeap(opts, nil)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	id := RegisterType(refSlotType("heap-test-weak"))

	obj := h.Allocate(nodeSize, id)
	ref := h.MakeWeak(obj)

	if _, ok := ref.Upgrade(); !ok {
		t.Fatal("weak ref should upgrade before any collection clears it")
	}

	h.Gc()

	if _, ok := ref.Upgrade(); ok {
		t.Fatal("weak ref to an unrooted object must be cleared by a collection")
	}
}

func TestHeapDeferGCSuppressesCollection(t *testing.T) {
	opts := Options{HeapSize: BlockSize * 4, MinThreshold: BlockSize}
	h, err := NewHeap(opts, nil)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	id := RegisterType(refSlotType("heap-test-defer"))

	h.Allocate(nodeSize, id)
	before := h.HeapUsage()

	h.DeferGC()
	h.Gc()
	if got := h.HeapUsage(); got != before {
		t.Errorf("Gc() ran while deferred: HeapUsage = %d, want unchanged %d", got, before)
	}
	h.UndeferGC()
}

func TestHeapUndeferWithoutDeferPanics(t *testing.T) {
	h, err := NewHeap(DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("UndeferGC without a matching DeferGC should panic")
		}
	}()
	h.UndeferGC()
}

func TestHeapAllocatePanicsWithErrOOMWhenExhausted(t *testing.T) {
	opts := Options{HeapSize: BlockSize, MinThreshold: BlockSize}
	h, err := NewHeap(opts, nil)
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}
	id := RegisterType(refSlotType("heap-test-oom"))

	// Root everything we allocate so nothing can ever be reclaimed,
	// forcing the allocator to eventually exhaust the single block.
	var handles []*Handle
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic once the heap is exhausted")
		}
		if _, ok := r.(*ErrOOM); !ok {
			t.Fatalf("panic value = %T, want *ErrOOM", r)
		}
		for i := len(handles) - 1; i >= 0; i-- {
			handles[i].Release()
		}
	}()
	for i := 0; i < 100000; i++ {
		obj := h.Allocate(nodeSize, id)
		handles = append(handles, h.NewHandle(obj))
	}
}
