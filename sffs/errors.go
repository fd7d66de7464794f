// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Error values the filesystem hands to its clients. Errors reported by the
// flash device pass through verbatim; the types below originate in this
// package. Clients distinguish error kinds by type assertion/switch.

package sffs

import (
	"fmt"
)

// ErrINVAL reports invalid data or arguments.
type ErrINVAL struct {
	Src string
	Val int64
}

// Error implements the built in error type.
func (e *ErrINVAL) Error() string {
	return fmt.Sprintf("%s: %d(%#x)", e.Src, e.Val, e.Val)
}

// ErrPERM reports an operation not permitted in the current mode or state,
// for example writing through a handle opened for reading.
type ErrPERM struct {
	Src string
}

// Error implements the built in error type.
func (e *ErrPERM) Error() string {
	return fmt.Sprintf("%s: operation not permitted", e.Src)
}

// ErrNotFound reports a failed lookup: no such file, no such block.
type ErrNotFound struct {
	Src string
	Val int64
}

// Error implements the built in error type.
func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s: %d(%#x) not found", e.Src, e.Val, e.Val)
}

// ErrNoSpace reports that no erased page is available even after sector
// reclamation.
type ErrNoSpace struct {
	Src string
}

// Error implements the built in error type.
func (e *ErrNoSpace) Error() string {
	return fmt.Sprintf("%s: no erased page available", e.Src)
}

// ErrCorrupt reports invalid on-flash data: a magic mismatch or a state
// byte outside of its enumeration. Off is the device address of the
// offending structure.
type ErrCorrupt struct {
	Off  int64
	More string
}

// Error implements the built in error type.
func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("corrupted data at %#x: %s", e.Off, e.More)
}

// IsNotFound reports whether err is an *ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// IsNoSpace reports whether err is an *ErrNoSpace.
func IsNoSpace(err error) bool {
	_, ok := err.(*ErrNoSpace)
	return ok
}
