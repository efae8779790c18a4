// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package gcheap implements the memory-management core of a tracing,
Immix-style garbage collected heap: a size-segregated small-object space
backed by fixed-size blocks, a large-object space for allocations above a
cutoff, precise roots via a shadow stack of scoped handles, and a
mark-region collector with optional opportunistic evacuation of
fragmented blocks.

The package is agnostic to object semantics. Callers describe an object
class once, as a TypeInfo, and the collector drives everything through
the three callbacks it exposes: HeapSize, Trace and an optional Destruct.
Consumers allocate through a Heap, retain references across allocations
through Handles rooted on a ShadowStack, and may additionally register
ad-hoc root sources (interned tables, global registries) as marking
constraints.

A Heap is not safe for concurrent use. It is designed for a single
mutator goroutine; the collector runs synchronously on that same
goroutine whenever Allocate, CollectIfNecessary or Gc triggers a
collection.
*/
package gcheap
