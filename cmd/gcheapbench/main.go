// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command gcheapbench drives one or more independent gcheap.Heap
// instances through a synthetic allocation workload, for exercising and
// eyeballing the collector's behavior outside of a test binary.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/go-immix/gcheap"
)

var (
	heaps       = pflag.IntP("heaps", "n", 1, "number of independent heaps to run concurrently")
	allocations = pflag.IntP("allocations", "a", 200000, "allocations performed per heap")
	heapSize    = pflag.Uint64P("heap-size", "s", 4<<20, "bytes reserved per heap's small-object arena")
	verbose     = pflag.BoolP("verbose", "v", false, "enable verbose GC logging")
	seed        = pflag.Int64P("seed", "r", 1, "base RNG seed; heap i uses seed+i")
)

// node is the payload type the benchmark allocates: a small object
// carrying up to four outgoing references, traced and sized statically.
type node struct {
	refs [4]gcheap.Address
	tag  int
}

const nodeSize = 8 + 4*8 + 8 // header + 4 Address slots + tag, rounded by the allocator

var nodeType = gcheap.RegisterType(&gcheap.TypeInfo{
	Name: "node",
	HeapSize: func(gcheap.Address) uintptr {
		return nodeSize
	},
	Trace: func(obj gcheap.Address, t gcheap.Tracer) {
		n := (*node)(gcheap.Payload(obj).Pointer())
		for i := range n.refs {
			t.Visit(&n.refs[i])
		}
	},
})

func main() {
	pflag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, "gcheapbench: building logger:", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()

	g, _ := errgroup.WithContext(context.Background())
	for i := 0; i < *heaps; i++ {
		i := i
		g.Go(func() error {
			return runWorkload(i, logger.Named(fmt.Sprintf("heap-%d", i)))
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "gcheapbench:", err)
		os.Exit(1)
	}
}

// runWorkload allocates a shifting set of live nodes on its own Heap,
// rooting them through a rotating live-set registered as a constraint,
// and letting the rest die, exercising both the mark-and-sweep path and
// evacuation as the arena fragments.
//
// The live set is rooted via AddConstraint rather than one Handle per
// slot: entries are evicted in random order as the workload runs, and
// Handles must be released in the strict LIFO order they were acquired
// in, which a randomly chosen victim cannot guarantee.
func runWorkload(i int, logger *zap.Logger) error {
	opts := gcheap.DefaultOptions()
	opts.HeapSize = uintptr(*heapSize)
	opts.VerboseGC = *verbose

	h, err := gcheap.NewHeap(opts, logger)
	if err != nil {
		return fmt.Errorf("heap %d: %w", i, err)
	}

	rng := rand.New(rand.NewSource(*seed + int64(i)))

	const liveSetSize = 64
	var live []gcheap.Address
	h.AddConstraint(func(t gcheap.Tracer) {
		for i := range live {
			t.Visit(&live[i])
		}
	})

	for n := 0; n < *allocations; n++ {
		addr := h.Allocate(nodeSize, nodeType)
		obj := (*node)(gcheap.Payload(addr).Pointer())
		obj.tag = n

		if len(live) > 0 {
			obj.refs[0] = live[rng.Intn(len(live))]
		}

		if len(live) < liveSetSize {
			live = append(live, addr)
			continue
		}

		live[rng.Intn(liveSetSize)] = addr
	}

	logger.Sugar().Infof("heap %d: done, %d bytes live", i, h.HeapUsage())
	return nil
}
