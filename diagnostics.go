// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// A Dumper writes a compressed, human-readable snapshot of the
// small-object arena's block occupancy: one line per block giving its
// index, allocation state, hole count, and marked-line count. It exists
// purely for VerboseGC diagnostics; nothing in the collector reads a
// dump back in.
//
// The teacher compresses its own disk-block dumps with
// code.google.com/p/snappy-go (lldb's Filer layer); that package is
// defunct, so this uses its maintained successor, github.com/golang/snappy,
// which is API-compatible for the Encode/Decode calls this needs.
type Dumper struct {
	w io.Writer
}

// NewSnappyDumper wraps w so every Dump call writes one buffer in snappy's
// block format (snappy.Encode, not the framing format) to it.
func NewSnappyDumper(w io.Writer) *Dumper {
	return &Dumper{w: w}
}

// Dump renders h's current block occupancy and writes it, snappy
// compressed, to the Dumper's writer.
func (d *Dumper) Dump(h *Heap) error {
	var buf bytes.Buffer
	blocks := h.blockAllocator.blocks
	fmt.Fprintf(&buf, "gcheap dump: %d blocks, %d free\n",
		h.blockAllocator.TotalBlocks(), h.blockAllocator.AvailableBlocks())
	for i, b := range blocks {
		state := "free"
		switch {
		case !b.allocated:
			state = "free"
		case b.evacuationCandidate:
			state = "evac-candidate"
		case b.IsEmpty():
			state = "empty"
		case b.HoleCount() > 0:
			state = "recyclable"
		default:
			state = "unavailable"
		}
		fmt.Fprintf(&buf, "block %5d: %-16s holes=%d marked=%d destructible=%d\n",
			i, state, b.HoleCount(), b.MarkedLines(), b.needsDestruction)
	}
	fmt.Fprintf(&buf, "large objects: %d live, %d bytes\n", h.los.Len(), h.los.LiveBytes())

	compressed := snappy.Encode(nil, buf.Bytes())
	_, err := d.w.Write(compressed)
	return err
}
