// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "go.uber.org/zap"

// A Heap is the single entry point mutator code uses: it owns the
// small-object arena, the large-object space, the shadow stack and weak
// table, and drives the collector. Grounded on dbm.DB (dbm/dbm.go) as the
// teacher's facade style — a struct embedding the lower-level machinery
// behind a small set of exported methods, guarded against reentrant
// access the way dbm guards against concurrent use of its bkl mutex.
//
// A Heap is bound to exactly one goroutine for its entire lifetime; see
// the package doc comment for the concurrency contract. There is no
// internal locking — entering a Heap method while already inside one (for
// example, allocating from within a Trace or Destruct callback) is a
// programming error this heap does not attempt to make safe, only to
// detect.
type Heap struct {
	options Options
	logger  *zap.Logger

	blockAllocator *BlockAllocator
	spaceBitmap    *SpaceBitmap
	normal         *normalAllocator
	overflow       *overflowAllocator
	evac           *evacAllocator
	los            *LargeObjectSpace

	roots *ShadowStack
	weaks *weakTable

	constraints []func(Tracer)

	collector *collector

	threshold     uintptr
	allocated     uintptr
	liveMark      bool
	emergencyFlag bool
	deferCount    int
	busy          bool

	conservativeStack func() (lo, hi Address)
}

// NewHeap creates a Heap per opts. A nil logger defaults to
// zap.NewNop(); pass zap.NewDevelopment() (or similar) for
// human-readable VerboseGC output.
func NewHeap(opts Options, logger *zap.Logger) (*Heap, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ba := NewBlockAllocator(opts.HeapSize)
	h := &Heap{
		options:        opts,
		logger:         logger,
		blockAllocator: ba,
		spaceBitmap:    NewSpaceBitmap(ba.region.Base(), ba.region.Size()),
		normal:         newNormalAllocator(ba),
		overflow:       newOverflowAllocator(ba),
		evac:           newEvacAllocator(),
		los:            NewLargeObjectSpace(),
		roots:          newShadowStack(),
		weaks:          newWeakTable(),
		threshold:      opts.MinThreshold,
	}
	h.collector = newCollector(h)
	return h, nil
}

// enter panics if the heap is already on the call stack (e.g. a Trace or
// Destruct callback allocating), and marks it busy until leave runs.
func (h *Heap) enter() {
	if h.busy {
		panic("gcheap: reentrant Heap access (allocating from a Trace or Destruct callback?)")
	}
	h.busy = true
}

func (h *Heap) leave() { h.busy = false }

// SetConservativeStackRange registers fn as the source of the mutator's
// current stack bounds for conservative scanning. When unset, no
// conservative scan runs and only precise (Handle- and constraint-rooted)
// references survive a collection — appropriate for programs that root
// every live reference explicitly.
func (h *Heap) SetConservativeStackRange(fn func() (lo, hi Address)) {
	h.conservativeStack = fn
}

// AddConstraint registers fn to be invoked with the collector's tracer
// during every root-scanning phase, for ad-hoc root sources (an
// interned-symbol table, a global registry) that aren't reachable from
// the shadow stack.
func (h *Heap) AddConstraint(fn func(Tracer)) {
	h.constraints = append(h.constraints, fn)
}

// Allocate returns a fresh, zero-initialized instance of id's type,
// triggering a collection first if the allocation would cross the
// current threshold. size is the full footprint of the instance,
// header included, the same value id's TypeInfo.HeapSize will report
// back once the object exists. It panics with *ErrOOM if the request
// cannot be satisfied even after an emergency collection.
func (h *Heap) Allocate(size uintptr, id TypeID) Address {
	h.enter()
	defer h.leave()

	h.collectIfNecessary(size)

	addr := h.allocateOnce(size, id)
	if addr.IsNull() && h.deferCount == 0 {
		h.gcLocked(false)
		addr = h.allocateOnce(size, id)
	}
	if addr.IsNull() && h.deferCount == 0 {
		h.emergencyFlag = true
		h.gcLocked(true)
		addr = h.allocateOnce(size, id)
	}
	if addr.IsNull() {
		panic(&ErrOOM{Requested: size, Allocated: h.allocated, Threshold: h.threshold})
	}

	h.allocated += size
	if m := h.options.Metrics; m != nil {
		m.Allocations.Inc()
		m.AllocatedBytes.Add(float64(size))
	}
	return addr
}

func (h *Heap) allocateOnce(size uintptr, id TypeID) Address {
	size = alignUp(size, Alignment)
	needsDestruction := false
	if ti := lookupType(id); ti != nil {
		needsDestruction = ti.NeedsDestruction
	}

	var addr Address
	switch {
	case size >= LargeObject:
		addr = h.los.Alloc(size, id)
		return addr
	case size >= MediumObject:
		addr = h.overflow.Allocate(size, needsDestruction)
	default:
		addr = h.normal.Allocate(size, needsDestruction)
	}
	if addr.IsNull() {
		return NullAddress
	}
	payload := h.blockAllocator.region.Slice(addr, size)
	for i := range payload {
		payload[i] = 0
	}
	NewHeader(addr, id, h.liveMark)
	h.spaceBitmap.Set(addr)
	return addr
}

// CollectIfNecessary runs a collection if bytes allocated since the last
// cycle exceed the threshold. It is called implicitly before every
// Allocate and is exported so mutator code can apply GC pressure
// explicitly at a convenient point (e.g. between requests).
func (h *Heap) CollectIfNecessary() {
	h.enter()
	defer h.leave()
	h.collectIfNecessary(0)
}

func (h *Heap) collectIfNecessary(pending uintptr) {
	if h.deferCount > 0 {
		return
	}
	if h.allocated+pending >= h.threshold {
		h.gcLocked(false)
	}
}

// Gc forces a full collection cycle, ignoring the threshold. It is a
// no-op while DeferGC is outstanding.
func (h *Heap) Gc() {
	h.enter()
	defer h.leave()
	if h.deferCount > 0 {
		return
	}
	h.gcLocked(false)
}

func (h *Heap) gcLocked(emergency bool) {
	h.collector.run(emergency)
}

// DeferGC increments the defer-GC counter; while it is non-zero, Gc and
// the implicit collect-if-necessary check are no-ops. Intended for
// critical sections that must not observe evacuation; allocation still
// proceeds and will panic with *ErrOOM if it exhausts the heap while
// deferred, since no collection can run to reclaim space.
func (h *Heap) DeferGC() { h.deferCount++ }

// UndeferGC decrements the defer-GC counter. It panics if called more
// times than DeferGC.
func (h *Heap) UndeferGC() {
	if h.deferCount == 0 {
		panic("gcheap: UndeferGC without matching DeferGC")
	}
	h.deferCount--
}

// MakeWeak returns a WeakRef to obj. The reference does not keep obj
// alive.
func (h *Heap) MakeWeak(obj Address) WeakRef {
	return h.weaks.makeWeak(obj)
}

// MakeNullWeak returns a WeakRef whose Upgrade always fails, useful as a
// zero value for a field that is sometimes populated with a real weak
// reference later.
func (h *Heap) MakeNullWeak() WeakRef {
	return WeakRef{}
}

// HeapUsage returns the number of bytes currently accounted live: the sum
// of the small-object bytes the last collection marked and the
// large-object space's live bytes after that collection, plus every byte
// allocated since (or since startup, if none has run yet).
func (h *Heap) HeapUsage() uintptr {
	return h.allocated
}

// allBlocks drains every block currently owned by any small-object
// allocator (normal, overflow, and evacuation) so the collector can sweep
// the whole small-object space in one pass. Allocators start the next
// cycle with empty lists, repopulated from the sweep's classification.
func (h *Heap) allBlocks() []*Block {
	blocks := h.normal.getAllBlocks()
	blocks = append(blocks, h.overflow.getAllBlocks()...)
	blocks = append(blocks, h.evac.getAllBlocks()...)
	return blocks
}

// peekAllBlocks returns the same set of blocks allBlocks would drain, but
// leaves every allocator's lists untouched. The collector's prepare phase
// needs to read the prior cycle's hole state to decide whether to
// evacuate without disturbing the lists sweepSmallObjects later drains
// for real.
func (h *Heap) peekAllBlocks() []*Block {
	var blocks []*Block
	blocks = append(blocks, h.normal.unavailable...)
	blocks = append(blocks, h.normal.recyclable...)
	if h.normal.current != nil {
		blocks = append(blocks, h.normal.current.block)
	}
	blocks = append(blocks, h.overflow.unavailable...)
	if h.overflow.current != nil {
		blocks = append(blocks, h.overflow.current.block)
	}
	blocks = append(blocks, h.evac.unavailable...)
	if h.evac.current != nil {
		blocks = append(blocks, h.evac.current.block)
	}
	return blocks
}
