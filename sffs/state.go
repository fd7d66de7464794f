// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// On-flash structures and their state machines.

package sffs

import (
	"encoding/binary"
	"fmt"
)

const (
	sectMagic   = 0x87985214 // metadata header magic, little endian on flash
	masterMagic = 0x93827485 // master page magic, little endian on flash

	szHeader = 8 // metadata header bytes
	szItem   = 8 // metadata item bytes
)

// Sector states. The only legal transition order is
// ERASED→USED→FULL→DIRTY (skipping allowed); every step clears bits, so it
// can be programmed in place. Only a sector erase goes back to ERASED.
const (
	sectErased = 0xde
	sectUsed   = 0xd6
	sectFull   = 0x56
	sectDirty  = 0x46
)

// Page states as stored in a metadata item. Under bitwise AND the codes
// form the chain OLD ⊂ RESERVED ⊂ MOVING ⊂ USED ⊂ ERASED: once a state is
// stored, only states further down the chain remain programmable. The
// consequence for the write path is that a page claim cannot be recorded in
// the state byte (USED would then be unreachable); it is recorded by
// programming the item's file id instead, and the state byte goes directly
// ERASED→USED on commit. See the package documentation.
const (
	pageErased   = 0xb7
	pageUsed     = 0xb5
	pageMoving   = 0x35
	pageReserved = 0x34
	pageOld      = 0x24
)

// Legal in-place transitions of both machines. init verifies each of them
// only clears bits; a typo in one of the codes above would panic on program
// start rather than brick a device.
var (
	sectEdges = [][2]byte{
		{sectErased, sectUsed},
		{sectErased, sectFull},
		{sectErased, sectDirty},
		{sectUsed, sectFull},
		{sectFull, sectDirty},
		{sectUsed, sectDirty},
	}
	pageEdges = [][2]byte{
		{pageErased, pageUsed},
		{pageErased, pageReserved},
		{pageErased, pageOld},
		{pageUsed, pageMoving},
		{pageUsed, pageOld},
		{pageMoving, pageReserved},
		{pageMoving, pageOld},
		{pageReserved, pageOld},
	}
)

func init() {
	for _, e := range [][][2]byte{sectEdges, pageEdges} {
		for _, t := range e {
			if t[0]&t[1] != t[1] {
				panic(fmt.Sprintf("state transition %#02x→%#02x sets bits", t[0], t[1]))
			}
		}
	}
}

// header is the metadata header at the start of every sector.
type header struct {
	magic     uint32
	state     byte
	metaPages byte // pages occupied by this header and the item table
	metaItems byte // number of items == number of data pages
}

func (h *header) rd(b []byte) {
	h.magic = binary.LittleEndian.Uint32(b)
	h.state = b[4]
	h.metaPages = b[5]
	h.metaItems = b[6]
}

func (h *header) wr(b []byte) {
	binary.LittleEndian.PutUint32(b, h.magic)
	b[4] = h.state
	b[5] = h.metaPages
	b[6] = h.metaItems
	b[7] = 0xff
}

// blank reports an unwritten header, i.e. a freshly erased sector. Mount
// and the allocator treat such sectors as ERASED.
func blankHeader(b []byte) bool {
	for _, v := range b {
		if v != 0xff {
			return false
		}
	}
	return true
}

func validSectorState(s byte) bool {
	switch s {
	case sectErased, sectUsed, sectFull, sectDirty:
		return true
	}
	return false
}

// erasedState reports a page state byte reading as erased: 0xFF straight
// from a sector erase, or the ERASED code, which is programmable from 0xFF
// and still above every other code in the chain. This implementation never
// programs the code itself but accepts it.
func erasedState(s byte) bool {
	return s == 0xff || s == pageErased
}

func validPageState(s byte) bool {
	switch s {
	case 0xff, pageErased, pageUsed, pageMoving, pageReserved, pageOld:
		return true
	}
	return false
}

const nilID = 0xffff // file id of an unallocated item

// item is a metadata item: one per data page of the same sector.
type item struct {
	fileID uint16
	block  uint16
	state  byte
	size   uint16
}

func (it *item) rd(b []byte) {
	it.fileID = binary.LittleEndian.Uint16(b)
	it.block = binary.LittleEndian.Uint16(b[2:])
	it.state = b[4]
	it.size = binary.LittleEndian.Uint16(b[5:])
}

// free reports an item available for allocation. A programmed file id with
// the state byte still reading as erased is a claim some writer did not
// finish; such items are never free.
func (it *item) free() bool {
	return erasedState(it.state) && it.fileID == nilID
}

// claimed reports an unfinished claim.
func (it *item) claimed() bool {
	return erasedState(it.state) && it.fileID != nilID
}

// live reports an item readers may return.
func (it *item) live() bool {
	return it.state == pageUsed || it.state == pageMoving
}

// census holds per-state item counts of one sector.
type census struct {
	erased, reserved, used, moving, old int
}

func mkCensus(items []item) (c census) {
	for i := range items {
		switch it := &items[i]; {
		case it.free():
			c.erased++
		case it.claimed():
			c.reserved++
		default:
			switch it.state {
			case pageUsed:
				c.used++
			case pageMoving:
				c.moving++
			case pageReserved:
				c.reserved++
			case pageOld:
				c.old++
			}
		}
	}
	return
}

// state derives the sector state the header must reflect.
func (c *census) state(dataPages int) byte {
	switch {
	case c.erased == dataPages:
		return sectErased
	case c.erased > 0:
		return sectUsed
	case c.old > 0:
		return sectDirty
	default:
		return sectFull
	}
}

// dead reports pages holding no current data, i.e. pages a sector erase
// would reclaim.
func (c *census) dead() int { return c.old + c.reserved }

// live reports pages which must be copied out before erasing the sector.
func (c *census) live() int { return c.used + c.moving }
