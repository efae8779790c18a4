// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import (
	"sync"
	"unsafe"
)

// A Tracer is passed to a TypeInfo's Trace callback. Trace must call
// Visit exactly once for every managed reference the object currently
// holds; visiting the same slot twice is safe, missing a slot causes
// use-after-free once the referent is collected.
type Tracer interface {
	// Visit marks (and, during an evacuating collection, potentially
	// relocates) the object at *slot, rewriting *slot in place if the
	// object moved.
	Visit(slot *Address)
}

// A TypeInfo is the static, per-object-class contract the collector uses
// to drive a managed object: its size, how to trace the references it
// owns, and what to do, if anything, when it is about to be reclaimed.
type TypeInfo struct {
	// Name identifies the type for diagnostics.
	Name string

	// HeapSize returns the total allocated size of obj, including the
	// header. It must return the same value throughout the object's
	// lifetime once its constructor has run.
	HeapSize func(obj Address) uintptr

	// Trace calls tracer.Visit once for every managed reference obj
	// holds.
	Trace func(obj Address, tracer Tracer)

	// NeedsDestruction reports whether Destruct must be called before
	// an instance's memory is reclaimed.
	NeedsDestruction bool

	// Destruct runs any non-memory cleanup an instance requires. It
	// must not allocate and must not panic.
	Destruct func(obj Address)

	// Parent, if non-nil, enables the single-inheritance Is test by
	// walking the static type chain.
	Parent *TypeInfo
}

// A TypeID is a stable index into the process-wide type registry. It is
// stored in an object's header instead of a raw *TypeInfo pointer: the
// small-object arena is a plain []byte that Go's garbage collector never
// scans for pointers, so a tagged pointer hidden inside it would be
// invisible to the host GC and its target could be collected out from
// under this heap. Routing through a registry that holds every
// registered TypeInfo alive for the life of the program gets the same
// "static per object class" contract the specification describes without
// that hazard.
type TypeID uint32

var typeRegistry struct {
	mu    sync.Mutex
	types []*TypeInfo
}

// RegisterType registers ti and returns the TypeID to pass to Heap.Allocate
// for instances of it. Registration is permanent: there is no
// UnregisterType, matching the "static, per object class" lifetime the
// specification assumes for type info records.
func RegisterType(ti *TypeInfo) TypeID {
	typeRegistry.mu.Lock()
	defer typeRegistry.mu.Unlock()
	typeRegistry.types = append(typeRegistry.types, ti)
	return TypeID(len(typeRegistry.types) - 1)
}

func lookupType(id TypeID) *TypeInfo {
	typeRegistry.mu.Lock()
	defer typeRegistry.mu.Unlock()
	return typeRegistry.types[id]
}

// Is reports whether ti is t or a descendant of t through the Parent
// chain.
func (ti *TypeInfo) Is(t *TypeInfo) bool {
	for p := ti; p != nil; p = p.Parent {
		if p == t {
			return true
		}
	}
	return false
}

// header bit layout, packed into the single machine word every managed
// object starts with:
//
//	bit 0: forwarded  — the remaining bits are a forwarding Address, not a TypeID
//	bit 1: marked     — set during the mark phase
//	bit 2: pinned     — conservatively discovered; must not be evacuated
//	bits 3+: TypeID (untagged state) or forwarding address (forwarded state)
const (
	headerForwardedBit = 1 << 0
	headerMarkedBit    = 1 << 1
	headerPinnedBit    = 1 << 2
	headerTagBits      = 3
	headerTagMask      = headerForwardedBit | headerMarkedBit | headerPinnedBit
)

func headerWord(obj Address) *uint64 {
	return (*uint64)(unsafe.Pointer(obj))
}

// Payload returns the address of the first byte past obj's header, where
// the object's own fields begin. An object pointer and its header
// pointer are the same address; Payload is what type implementations
// cast to their concrete Go struct type.
func Payload(obj Address) Address {
	return obj.Add(headerSize)
}

// NewHeader initializes the header at obj for a freshly allocated
// instance of the type named by id, with the tag bits clear except for
// the supplied initial mark state.
func NewHeader(obj Address, id TypeID, initialMark bool) {
	w := uint64(id) << headerTagBits
	if initialMark {
		w |= headerMarkedBit
	}
	*headerWord(obj) = w
}

// HeaderTypeInfo returns the TypeInfo an object was allocated with,
// regardless of the current state of its mark, pin or forwarded bits.
// It panics if obj is currently forwarded; callers must follow
// HeaderForwardingAddress first.
func HeaderTypeInfo(obj Address) *TypeInfo {
	w := *headerWord(obj)
	if w&headerForwardedBit != 0 {
		panic("gcheap: TypeInfo of a forwarded header")
	}
	return lookupType(TypeID(w >> headerTagBits))
}

// HeaderTypeID is HeaderTypeInfo without the registry lookup.
func HeaderTypeID(obj Address) TypeID {
	w := *headerWord(obj)
	return TypeID(w >> headerTagBits)
}

// HeaderSize dispatches through the object's TypeInfo.HeapSize.
func HeaderSize(obj Address) uintptr {
	return HeaderTypeInfo(obj).HeapSize(obj)
}

// HeaderMark sets the mark bit to live and reports whether it was
// already at that value — an idempotent test-and-set, so callers can
// tell a fresh mark from a re-visit without a separate read.
func HeaderMark(obj Address, live bool) (alreadyAtValue bool) {
	w := headerWord(obj)
	prev := *w&headerMarkedBit != 0
	if live {
		*w |= headerMarkedBit
	} else {
		*w &^= headerMarkedBit
	}
	return prev == live
}

// HeaderIsMarked reports the current mark bit.
func HeaderIsMarked(obj Address) bool {
	return *headerWord(obj)&headerMarkedBit != 0
}

// HeaderPin sets the pin bit.
func HeaderPin(obj Address) {
	*headerWord(obj) |= headerPinnedBit
}

// HeaderUnpin clears the pin bit.
func HeaderUnpin(obj Address) {
	*headerWord(obj) &^= headerPinnedBit
}

// HeaderIsPinned reports the pin bit.
func HeaderIsPinned(obj Address) bool {
	return *headerWord(obj)&headerPinnedBit != 0
}

// HeaderIsForwarded reports the forwarded bit.
func HeaderIsForwarded(obj Address) bool {
	return *headerWord(obj)&headerForwardedBit != 0
}

// HeaderSetForwarded overwrites obj's header with a forwarding address to
// newAddr and sets the forwarded bit. This must only be called once per
// object, by the collector, during evacuation.
func HeaderSetForwarded(obj, newAddr Address) {
	*headerWord(obj) = uint64(newAddr)<<headerTagBits | headerForwardedBit
}

// HeaderForwardingAddress returns the address obj was evacuated to. The
// caller must have already checked HeaderIsForwarded.
func HeaderForwardingAddress(obj Address) Address {
	return Address(*headerWord(obj) >> headerTagBits)
}
