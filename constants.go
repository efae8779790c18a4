// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

// Fixed constants of the Immix layout. These have fixed semantics per the
// specification; they are not tuning parameters.
const (
	// BlockSize is the size and alignment, in bytes, of a small-object
	// block.
	BlockSize = 32 * 1024

	// LineSize is the granularity, in bytes, of a block's line map.
	LineSize = 256

	// NumLines is the number of lines in a block.
	NumLines = BlockSize / LineSize

	// Alignment is the minimum allocation alignment, in bytes.
	Alignment = 16

	// MediumObject is the size, in bytes, at and above which an
	// allocation is handled by the overflow allocator instead of the
	// normal allocator.
	MediumObject = LineSize

	// LargeObject is the size, in bytes, at and above which an
	// allocation bypasses the small-object space entirely and is
	// handled by the large object space.
	LargeObject = 8 * 1024

	// headerSize is the size, in bytes, of the one-word object header
	// every managed object starts with.
	headerSize = 8
)

// growthFactor is applied to live bytes observed after a sweep to compute
// the next collection threshold. The specification gives a range of
// 1.7-1.75; this implementation uses the upper bound, matching the
// original source it was distilled from.
const growthFactor = 1.75

// evacHeadroomFraction caps the evacuation allocator's headroom list, as a
// fraction of the block allocator's total block count, when just-freed
// blocks are handed to it at the end of a cycle.
const evacHeadroomFraction = 0.10

// minEvacHeadroomBlocks is the number of headroom blocks at or above which
// a cycle evacuates even when the heap is not fragmented. It is not a
// precondition: a fragmented heap or an emergency flag also starts an
// evacuating collection with less headroom.
const minEvacHeadroomBlocks = 2
