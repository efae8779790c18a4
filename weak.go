// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

// A weakSlot is a heap-owned cell a WeakRef points at indirectly, so that
// clearing a reference on collection doesn't require finding and
// rewriting every WeakRef that shares it. Slots survive for the life of
// the heap, per spec.md §4.8 ("weak slots themselves survive until the
// heap is dropped"); only their contents are cleared.
type weakSlot struct {
	referent Address // NullAddress once cleared
}

// A WeakRef is a handle to a weakSlot. It does not keep its referent
// alive; Upgrade returns the referent only if the most recent collection
// found it reachable through some other path.
type WeakRef struct {
	slot *weakSlot
}

// Upgrade returns the referent and true, unless the slot was cleared
// during the last collection that reached it (or the WeakRef was created
// null), in which case it returns NullAddress and false.
func (w WeakRef) Upgrade() (Address, bool) {
	if w.slot == nil || w.slot.referent.IsNull() {
		return NullAddress, false
	}
	return w.slot.referent, true
}

// IsNull reports whether w was created by MakeNullWeak.
func (w WeakRef) IsNull() bool {
	return w.slot == nil
}

// weakTable owns every weak slot a Heap has handed out. It is walked once
// per collection, during the weak-processing phase, after transitive
// marking has reached a fixed point.
type weakTable struct {
	slots []*weakSlot
}

func newWeakTable() *weakTable {
	return &weakTable{}
}

func (wt *weakTable) makeWeak(obj Address) WeakRef {
	s := &weakSlot{referent: obj}
	wt.slots = append(wt.slots, s)
	return WeakRef{slot: s}
}

// process runs the weak-processing phase: any slot whose referent was not
// marked reachable this cycle is cleared.
func (wt *weakTable) process(isMarked func(Address) bool) {
	for _, s := range wt.slots {
		if s.referent.IsNull() {
			continue
		}
		if !isMarked(s.referent) {
			s.referent = NullAddress
		}
	}
}

// Len returns the number of weak slots ever created, including cleared
// ones.
func (wt *weakTable) Len() int { return len(wt.slots) }
