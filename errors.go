// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcheap

import "fmt"

// A ErrINVAL reports an invalid argument passed by the caller. Arg carries
// the offending value for inspection by tests and diagnostics; it is not
// part of any compatibility guarantee.
type ErrINVAL struct {
	Msg string
	Arg interface{}
}

func (e *ErrINVAL) Error() string {
	return fmt.Sprintf("%s: %v", e.Msg, e.Arg)
}

// A ErrOOM is the fatal error the heap panics with when an allocation
// cannot be satisfied even after an emergency collection. Per the
// specification there is no fallible allocation path: ErrOOM is always
// delivered through panic, never returned.
type ErrOOM struct {
	Requested uintptr
	Allocated uintptr
	Threshold uintptr
}

func (e *ErrOOM) Error() string {
	return fmt.Sprintf("gcheap: out of memory requesting %d bytes (allocated %d, threshold %d)", e.Requested, e.Allocated, e.Threshold)
}
