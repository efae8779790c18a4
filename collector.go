// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import (
	"sort"
	"time"

	"github.com/cznic/mathutil"
)

// fragmentationThreshold is the fraction of blocks that are non-empty and
// contain at least one hole at or above which a cycle evacuates. It is one
// of three independent triggers: an emergency flag left by a failed
// allocation, or enough evacuation headroom (minEvacHeadroomBlocks), also
// makes a cycle evacuate on its own.
const fragmentationThreshold = 0.25

// collector orchestrates one entire collection cycle over a Heap's
// allocators, large-object space, shadow stack and weak table. Grounded
// on spec.md §4.6 and original_source/src/heap.rs's collect_internal /
// collect_roots (collection_type selection, the p-8 interior-pointer
// probe, and the 1.75 threshold growth factor); there is no teacher
// analogue since cznic/exp never implements a tracing collector.
type collector struct {
	h *Heap

	liveMark bool // the mark value meaning "reached this cycle"

	evacuate            bool
	evacuationCandidates map[*Block]bool

	// allBlocks caches prepare's non-destructive block survey so run can
	// clear every block's line bitmap before marking rebuilds it, without
	// asking the allocators for their lists a second time.
	allBlocks []*Block
}

func newCollector(h *Heap) *collector {
	return &collector{h: h}
}

// run executes one full cycle: prepare, scan roots, mark to a fixed
// point, process weak slots, sweep, replenish headroom, update the
// threshold. emergency disables evacuation and headroom reservation, for
// the last-resort retry Heap.Allocate makes before panicking with an
// out-of-memory error.
func (c *collector) run(emergency bool) {
	h := c.h
	start := time.Now()

	c.prepare(emergency)

	// Every surviving line mark from the cycle just analyzed has already
	// been accounted for in the evacuation decision above; clear them all
	// now so marking starts from a clean line map and only the lines
	// objects found live this cycle touch end up set. Leaving stale marks
	// from since-dead objects in place would never get cleared (lines
	// have no flip trick the way the header mark bit does) and blocks
	// would accumulate phantom occupancy forever.
	for _, b := range c.allBlocks {
		b.lines.ClearAll()
	}

	c.liveMark = !h.liveMark // flip: this cycle's "reached" value
	h.liveMark = c.liveMark

	worklist := make([]Address, 0, 256)
	worklist = c.scanPreciseRoots(worklist)
	if h.conservativeStack != nil {
		worklist = c.scanConservativeRoots(worklist)
	}
	liveBytes := c.markToFixedPoint(worklist)

	c.processWeakSlots()

	freedBlocks := c.sweepSmallObjects()
	h.los.Sweep()
	liveBytes += h.los.LiveBytes()

	if !emergency {
		c.replenishHeadroom(freedBlocks)
	} else {
		h.blockAllocator.ReturnBlocks(freedBlocks)
	}

	h.threshold = liveBytes * uintptr(growthFactor*1000) / 1000
	if h.threshold < h.options.MinThreshold {
		h.threshold = h.options.MinThreshold
	}
	h.allocated = liveBytes

	if m := h.options.Metrics; m != nil {
		m.Collections.Inc()
		if c.evacuate {
			m.EvacuatingCycles.Inc()
		}
		m.LiveBytes.Set(float64(liveBytes))
		m.Threshold.Set(float64(h.threshold))
		m.CollectionSeconds.Observe(time.Since(start).Seconds())
	}

	if h.options.VerboseGC {
		h.logger.Sugar().Infow("gc: cycle complete",
			"evacuating", c.evacuate,
			"liveBytes", liveBytes,
			"threshold", h.threshold,
			"duration", time.Since(start))
		if h.options.Dumper != nil {
			if err := h.options.Dumper.Dump(h); err != nil {
				h.logger.Sugar().Warnf("gc: dump failed: %v", err)
			}
		}
	}
}

// prepare decides in-place vs evacuating and, if evacuating, picks the
// worst-packed blocks as evacuation candidates up to the available
// headroom, or up to a quarter of the blocks when no headroom is reserved.
func (c *collector) prepare(emergency bool) {
	h := c.h
	c.evacuationCandidates = nil
	c.evacuate = false
	c.allBlocks = h.peekAllBlocks()

	if emergency || len(c.allBlocks) == 0 {
		return
	}

	allBlocks := c.allBlocks
	holey := 0
	for _, b := range allBlocks {
		if b.CountHoles() > 1 || (b.HoleCount() == 1 && !b.IsEmpty()) {
			holey++
		}
	}
	fragmented := float64(holey)/float64(len(allBlocks)) >= fragmentationThreshold
	headroomOK := h.evac.HeadroomLen() >= minEvacHeadroomBlocks

	if !h.emergencyFlag && !fragmented && !headroomOK {
		return
	}

	c.evacuate = true
	sort.Slice(allBlocks, func(i, j int) bool {
		hi, hj := allBlocks[i], allBlocks[j]
		if hi.HoleCount() != hj.HoleCount() {
			return hi.HoleCount() > hj.HoleCount()
		}
		return hi.MarkedLines() < hj.MarkedLines()
	})

	c.evacuationCandidates = make(map[*Block]bool)
	budget := h.evac.HeadroomLen()
	if budget == 0 {
		budget = len(allBlocks) / 4
	}
	for i := 0; i < budget && i < len(allBlocks); i++ {
		allBlocks[i].evacuationCandidate = true
		c.evacuationCandidates[allBlocks[i]] = true
	}
	h.emergencyFlag = false
}

// scanPreciseRoots walks the shadow stack and every registered
// constraint callback, appending every rooted, marked address to the
// worklist.
func (c *collector) scanPreciseRoots(worklist []Address) []Address {
	v := &markVisitor{c: c, worklist: &worklist}
	c.h.roots.Walk(v)
	for _, fn := range c.h.constraints {
		fn(v)
	}
	return worklist
}

// scanConservativeRoots scans the registered conservative stack bounds
// word by word. Every candidate word, and that word minus 8 bytes to
// catch interior pointers, is tested first against the large-object
// space (half-alignment disambiguated) and then against the small-object
// bitmap; matches are marked and pinned.
func (c *collector) scanConservativeRoots(worklist []Address) []Address {
	h := c.h
	lo, hi := h.conservativeStack()
	if lo >= hi {
		return worklist
	}
	for addr := lo.AlignDown(8); addr < hi; addr = addr.Add(8) {
		p := Address(*(*uintptr)(addr.Pointer()))
		worklist = c.tryConservativeRoot(p, worklist)
		worklist = c.tryConservativeRoot(p.Sub(8), worklist)
	}
	return worklist
}

func (c *collector) tryConservativeRoot(p Address, worklist []Address) []Address {
	h := c.h
	if uintptr(p)&HalfAlignMask != 0 {
		if found, newlyMarked := h.los.Mark(p); found {
			HeaderPin(p)
			HeaderMark(p, c.liveMark)
			if newlyMarked {
				worklist = append(worklist, p)
			}
		}
		return worklist
	}
	b := h.blockAllocator.BlockFor(p)
	if b == nil || !b.allocated {
		return worklist
	}
	if !h.spaceBitmap.Test(p) {
		return worklist
	}
	HeaderPin(p)
	if !c.markSmallObjectLive(p, b) {
		worklist = append(worklist, p)
	}
	return worklist
}

// markSmallObjectLive sets obj's mark bit to this cycle's live value and,
// the first time it is set, marks every line of b its size touches so
// the next sweep's hole accounting reflects it. It reports whether obj
// was already live, mirroring HeaderMark's return.
func (c *collector) markSmallObjectLive(obj Address, b *Block) bool {
	alreadyLive := HeaderMark(obj, c.liveMark)
	if !alreadyLive {
		size := HeaderTypeInfo(obj).HeapSize(obj)
		b.MarkObject(obj.OffsetFrom(b.Base()), size)
	}
	return alreadyLive
}

// markToFixedPoint pops objects, already marked when they were pushed,
// from the worklist until it is empty, accounting the size of each small
// object and tracing its children back onto the list via a markVisitor
// (which performs evacuation for evacuation-candidate objects along the
// way). Large objects are traced but not counted here; run adds the large
// object space's live bytes after its sweep.
func (c *collector) markToFixedPoint(worklist []Address) uintptr {
	var liveBytes uintptr
	v := &markVisitor{c: c, worklist: &worklist}

	for len(worklist) > 0 {
		n := len(worklist) - 1
		obj := worklist[n]
		worklist = worklist[:n]

		if HeaderIsForwarded(obj) {
			continue
		}
		ti := HeaderTypeInfo(obj)
		if c.h.blockAllocator.BlockFor(obj) != nil {
			liveBytes += ti.HeapSize(obj)
		}
		if ti.Trace != nil {
			ti.Trace(obj, v)
		}
	}
	*v.worklist = worklist
	return liveBytes
}

// markVisitor implements Tracer for the collector: visiting a slot marks
// its referent (relocating it first if it lives in an evacuation
// candidate block and isn't pinned), pushes newly-marked objects onto the
// worklist, and rewrites the slot if the object moved.
type markVisitor struct {
	c        *collector
	worklist *[]Address
}

func (v *markVisitor) Visit(slot *Address) {
	obj := *slot
	if obj.IsNull() {
		return
	}
	c := v.c

	if HeaderIsForwarded(obj) {
		*slot = HeaderForwardingAddress(obj)
		return
	}

	if c.shouldEvacuate(obj) {
		if newAddr, ok := c.tryEvacuate(obj); ok {
			*slot = newAddr
			*v.worklist = append(*v.worklist, newAddr)
			return
		}
	}

	var alreadyLive bool
	if b := c.h.blockAllocator.BlockFor(obj); b != nil {
		alreadyLive = c.markSmallObjectLive(obj, b)
	} else {
		alreadyLive = c.markLargeObjectLive(obj)
	}
	if !alreadyLive {
		*v.worklist = append(*v.worklist, obj)
	}
}

// markLargeObjectLive marks obj live in both the header (so isLive/weak
// processing agrees with the conservative-scan path) and in the large
// object space's own precise allocation record, which is what Sweep
// actually consults. Marking only the header and never los.Mark would
// leave every Handle- or trace-reached large object looking unmarked to
// Sweep, which frees it on the very next cycle despite being rooted.
func (c *collector) markLargeObjectLive(obj Address) bool {
	alreadyLive := HeaderMark(obj, c.liveMark)
	c.h.los.Mark(obj)
	return alreadyLive
}

func (c *collector) shouldEvacuate(obj Address) bool {
	if !c.evacuate || HeaderIsPinned(obj) {
		return false
	}
	b := c.h.blockAllocator.BlockFor(obj)
	return b != nil && c.evacuationCandidates[b]
}

// tryEvacuate bit-copies obj into the evacuation allocator, sets the
// source header's forwarding pointer, and returns the new address. It
// fails (leaving obj to be marked in place) if the evacuation allocator
// has exhausted its headroom.
func (c *collector) tryEvacuate(obj Address) (Address, bool) {
	ti := HeaderTypeInfo(obj)
	size := ti.HeapSize(obj)
	newAddr := c.h.evac.Allocate(size, ti.NeedsDestruction)
	if newAddr.IsNull() {
		return NullAddress, false
	}
	copy(c.h.blockAllocator.region.Slice(newAddr, size),
		c.h.blockAllocator.region.Slice(obj, size))
	HeaderMark(newAddr, c.liveMark)
	c.h.spaceBitmap.Set(newAddr)
	if b := c.h.blockAllocator.BlockFor(newAddr); b != nil {
		b.MarkObject(newAddr.OffsetFrom(b.Base()), size)
	}
	HeaderSetForwarded(obj, newAddr)
	// obj's header is now a forwarding pointer, not a TypeID: clear its
	// spaceBitmap bit so the source block's sweep never calls
	// HeaderTypeInfo on it (HeaderTypeInfo panics on a forwarded header).
	c.h.spaceBitmap.Clear(obj)
	if m := c.h.options.Metrics; m != nil {
		m.EvacuatedObjects.Inc()
	}
	return newAddr, true
}

// isLive reports whether obj's mark bit equals this cycle's live-mark
// value. The mark bit is a single, sticky bit whose meaning flips every
// cycle (see run); testing it against the literal value true, rather
// than against c.liveMark, would misclassify objects marked live under
// the opposite polarity in some earlier cycle.
func (c *collector) isLive(obj Address) bool {
	return HeaderIsMarked(obj) == c.liveMark
}

// processWeakSlots clears every weak slot whose referent did not get
// marked this cycle.
func (c *collector) processWeakSlots() {
	c.h.weaks.process(c.isLive)
}

// sweepSmallObjects walks every block the small-object allocators drained
// for this cycle, destructing unmarked objects that declared a
// destructor, reclassifying each block as free, recyclable or
// unavailable, and returns the blocks that came back fully free.
func (c *collector) sweepSmallObjects() []*Block {
	h := c.h
	blocks := h.allBlocks()

	var free, recyclable, unavailable []*Block
	for _, b := range blocks {
		b.evacuationCandidate = false
		// Every block is walked regardless of needsDestruction: besides
		// running destructors, this is what clears the space bitmap's
		// per-object bits for anything that died this cycle. Gating it
		// on needsDestruction would leave a dead, non-destructible
		// object's bit set forever, misleading a later conservative scan
		// into treating stale bytes as a live object's header.
		c.destructUnmarked(b)
		b.needsDestruction = 0
		b.CountHoles()
		switch {
		case b.IsEmpty():
			free = append(free, b)
		case b.HoleCount() > 0:
			recyclable = append(recyclable, b)
		default:
			unavailable = append(unavailable, b)
		}
	}

	h.normal.unavailable = unavailable
	h.normal.setRecyclableBlocks(recyclable)
	h.overflow.unavailable = nil

	return free
}

// destructUnmarked walks the objects the space bitmap records in b, runs
// Destruct on every one that is not live this cycle (see isLive) and
// declares a destructor, and clears the space bitmap bit of every such
// dead object. Mark bits are left as they are.
func (c *collector) destructUnmarked(b *Block) {
	end := b.Base().Add(BlockSize)
	h := c.h
	for addr := b.Base(); addr < end; {
		if !h.spaceBitmap.Test(addr) || HeaderIsForwarded(addr) {
			addr = addr.Add(Alignment)
			continue
		}
		ti := HeaderTypeInfo(addr)
		size := ti.HeapSize(addr)
		if !c.isLive(addr) {
			if ti.NeedsDestruction {
				ti.Destruct(addr)
				if m := h.options.Metrics; m != nil {
					m.DestructedObjects.Inc()
				}
			}
			h.spaceBitmap.Clear(addr)
		}
		addr = addr.Add(alignUp(size, Alignment))
	}
}

// replenishHeadroom returns newly freed blocks to the evacuation
// allocator until its headroom reaches evacHeadroomFraction of the total
// block count, and the rest to the block allocator's general free list.
func (c *collector) replenishHeadroom(freed []*Block) {
	h := c.h
	headroomCap := int(float64(h.blockAllocator.TotalBlocks()) * evacHeadroomFraction)
	room := mathutil.Max(0, headroomCap-h.evac.HeadroomLen())
	room = mathutil.Min(room, len(freed))
	h.evac.extendHeadroom(freed[:room])
	h.blockAllocator.ReturnBlocks(freed[room:])
}
