// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// An abstraction of NOR flash like (persistent) storage.

package flash

import (
	"fmt"
)

// Info describes the geometry of a Flash device. A page is the smallest
// programmable unit, a sector the smallest erasable unit and a block a
// larger erasable unit some chips additionally provide. Capacity, SectorSize
// and BlockSize are whole multiples of PageSize.
type Info struct {
	Capacity   int64 // total device size in bytes
	PageSize   int   // program unit in bytes
	SectorSize int   // erase unit in bytes
	BlockSize  int   // large erase unit in bytes, 0 if the chip has none
}

// A Flash is a model of a raw NOR flash chip. In contrast to a file, writing
// is asymmetric: a program can only clear bits (the device stores
// old&new), and set bits come back only by erasing a whole sector to 0xFF.
// A Flash is not safe for concurrent access; it's designed for consumption
// by a single client from one goroutine only or via a mutex.
//
// Every operation either completes before returning or fails; asynchronous
// programming is not modeled. Implementations backed by hardware which
// signals completion later must block until the device is ready.
type Flash interface {
	// Close releases the device. Close is idempotent.
	Close() error

	// Info returns the device geometry.
	Info() Info

	// PageRead fills b from the bytes currently stored at addr. The read
	// must not cross a page boundary and len(b) must not exceed the page
	// size.
	PageRead(addr int64, b []byte) error

	// PageProgram programs b at addr with AND semantics: every stored
	// byte becomes old&new. A program which would require setting a 0 bit
	// back to 1 fails with *ErrProgram and leaves the page unchanged.
	// The write must not cross a page boundary and len(b) must not exceed
	// the page size.
	PageProgram(addr int64, b []byte) error

	// SectorErase sets every bit of the sector at addr to 1. addr must be
	// sector aligned.
	SectorErase(addr int64) error

	// ChipErase is equivalent to erasing every sector.
	ChipErase() error
}

// ErrINVAL reports invalid data or arguments passed to a Flash operation.
type ErrINVAL struct {
	Src string
	Val int64
}

// Error implements the built in error type.
func (e *ErrINVAL) Error() string {
	return fmt.Sprintf("%s: %d(%#x)", e.Src, e.Val, e.Val)
}

// ErrProgram reports a program operation which attempted to set an already
// cleared bit. Off is the device address of the offending byte.
type ErrProgram struct {
	Off  int64
	Old  byte
	Data byte
}

// Error implements the built in error type.
func (e *ErrProgram) Error() string {
	return fmt.Sprintf("program would set bits at %#x: stored %#02x, data %#02x", e.Off, e.Old, e.Data)
}

// ErrPowerCut reports an operation refused by a CutFlash which has exhausted
// its armed operation budget. The device content is exactly as it was before
// the refused operation.
type ErrPowerCut struct {
	Op string
}

// Error implements the built in error type.
func (e *ErrPowerCut) Error() string {
	return fmt.Sprintf("power cut before %s", e.Op)
}

// checkPageIO validates addr/len against the geometry rules shared by
// PageRead and PageProgram.
func checkPageIO(src string, info Info, addr int64, n int) error {
	if addr < 0 || addr+int64(n) > info.Capacity {
		return &ErrINVAL{src + ": address out of device", addr}
	}

	if n > info.PageSize {
		return &ErrINVAL{src + ": len > page size", int64(n)}
	}

	pg := int64(info.PageSize)
	if addr/pg != (addr+int64(n)-1)/pg && n != 0 {
		return &ErrINVAL{src + ": crosses page boundary", addr}
	}

	return nil
}

// checkSector validates a sector erase address.
func checkSector(src string, info Info, addr int64) error {
	if addr < 0 || addr >= info.Capacity {
		return &ErrINVAL{src + ": address out of device", addr}
	}

	if addr%int64(info.SectorSize) != 0 {
		return &ErrINVAL{src + ": address not sector aligned", addr}
	}

	return nil
}
