// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "fmt"

// Options are passed to NewHeap to amend its default behavior. The
// compatibility promise is the same as struct types in the Go standard
// library: new fields may be added, existing ones never removed or
// repurposed, so client code should always use field names when building
// a literal. Grounded on the teacher's dbm.Options (dbm/options.go),
// including its checked-once validation idiom.
type Options struct {
	// HeapSize is the total size, in bytes, of the small-object arena.
	// Rounded up to a multiple of BlockSize.
	HeapSize uintptr

	// MinThreshold is the floor the collector's allocation threshold
	// never drops below, regardless of how little is live after a
	// cycle.
	MinThreshold uintptr

	// VerboseGC, when set, makes every collection cycle log a summary
	// through the heap's logger and, if Dumper is also set, emit a
	// snapshot through it once the cycle is complete.
	VerboseGC bool

	// Dumper, if non-nil, receives a textual snapshot of the
	// small-object arena at the end of each verbose collection. See
	// NewSnappyDumper.
	Dumper *Dumper

	// Metrics, if non-nil, receives Prometheus observations for every
	// allocation and collection. See NewMetrics.
	Metrics *Metrics

	checked bool
}

// DefaultOptions returns the Options NewHeap uses when none are supplied:
// a 4 MiB arena, a 64 KiB minimum threshold, and verbose logging off.
func DefaultOptions() Options {
	return Options{
		HeapSize:     4 * 1024 * 1024,
		MinThreshold: 64 * 1024,
	}
}

func (o *Options) check() error {
	if o.checked {
		return nil
	}
	if o.HeapSize == 0 {
		o.HeapSize = DefaultOptions().HeapSize
	}
	if o.HeapSize < BlockSize {
		return &ErrINVAL{Msg: "Options.HeapSize smaller than one block", Arg: o.HeapSize}
	}
	if o.MinThreshold == 0 {
		o.MinThreshold = DefaultOptions().MinThreshold
	}
	if o.MinThreshold > o.HeapSize {
		return &ErrINVAL{Msg: "Options.MinThreshold larger than Options.HeapSize", Arg: o.MinThreshold}
	}
	o.checked = true
	return nil
}

func (o *Options) String() string {
	return fmt.Sprintf("gcheap.Options{HeapSize: %d, MinThreshold: %d, VerboseGC: %v}",
		o.HeapSize, o.MinThreshold, o.VerboseGC)
}
