// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package sffs implements a small log-structured filesystem for raw NOR flash
like devices.

The terms MUST or MUST NOT, if/where used in the documentation of this
package, written in all caps as seen here, are a requirement for any
possible alternative implementations aiming for compatibility with this
one.

# Flash model

The backing device (package flash) programs bits only from 1 to 0 and
clears them back to 1 only by erasing a whole sector. Every persistent
structure of this filesystem is therefore designed so that each legal
update of a stored byte is a bitwise AND with the previous content; any
change which would need a bit set back is realized by writing a fresh copy
to an erased page and erasing the stale sector later.

# Sectors

Every sector starts with a metadata header

	+--------+-------+-----------+-----------+----------+
	| 0...3  |   4   |     5     |     6     |    7     |
	+--------+-------+-----------+-----------+----------+
	| magic  | state | metaPages | metaItems | reserved |
	+--------+-------+-----------+-----------+----------+

with magic == 0x87985214 stored little endian. The header is followed by
metaItems packed metadata items

	+--------+--------+-------+--------+----------+
	| 0...1  | 2...3  |   4   | 5...6  |    7     |
	+--------+--------+-------+--------+----------+
	| fileID | block  | state |  size  | reserved |
	+--------+--------+-------+--------+----------+

(little endian fields), one item per data page. The data pages occupy the
last metaItems*pageSize bytes of the sector, in order. A freshly erased
sector reads as all 0xFF everywhere; a header of all 0xFF is treated as
state ERASED and is written on first use.

Sector states are ERASED (0xDE), USED (0xD6), FULL (0x56) and DIRTY
(0x46); the header state is a pure function of the item states: ERASED
while every item is free, USED while free items remain next to occupied
ones, FULL when no free item remains, DIRTY when additionally at least one
item is OLD. The codes form a bit-clearing chain along that order.

# Pages

Item states are ERASED (0xB7), USED (0xB5), MOVING (0x35), RESERVED (0x34)
and OLD (0x24). Under bitwise AND these codes form the subset chain

	OLD ⊂ RESERVED ⊂ MOVING ⊂ USED ⊂ ERASED

so from any stored state only states further down the chain remain
programmable. USED marks the canonical content of (fileID, block). MOVING
marks content being superseded by a copy elsewhere; it stays readable until
the copy commits. RESERVED and OLD mark dead pages awaiting sector erase.

# Files

A file is the set of items carrying its 16 bit id with state USED or
MOVING, indexed by the logical block number. File ids 1 to 0xFFFE are for
clients; id 0 names the filesystem's own master page and 0xFFFF means
unallocated. There are no directories. Block updates are copy-on-write:

 1. the current item of the block, if any, goes USED→MOVING
 2. a free item is claimed by programming its fileID and block fields;
    its state byte still reads ERASED, which together with the
    programmed id marks the claim in progress
 3. the new data page is programmed
 4. the claim commits: state ERASED→USED and the final size are
    programmed together
 5. the old item goes MOVING→OLD

A crash leaves either the old item readable (before step 4) or both the
new USED and the old MOVING item (before step 5); readers prefer USED over
MOVING, so the committed content wins in both cases. Mount demotes
leftover claims to RESERVED and MOVING items shadowed by a USED sibling to
OLD. No observable state ever requires setting a stored bit.

# Reclamation

When no free page remains, live pages are copied out of a victim sector
using the same copy-on-write steps, the victim is erased and its header
rewritten. A DIRTY victim is preferred over a FULL one and a FULL one over
any other; within the same state the sector with the most dead pages, then
the lowest index, is chosen. Client writes keep one sector's worth of
free pages in reserve so that reclamation can always relocate a victim's
live pages.

# Concurrency

An FS and its Files are not safe for concurrent access; they are designed
for consumption from one goroutine only or via a mutex. No operation
suspends: every call either completes or returns an error synchronously.
*/
package sffs

import (
	"bytes"
	"encoding/binary"

	"github.com/iqyx/sffs/flash"
)

const (
	// MaxLabel is the size of the volume label field of the master page.
	MaxLabel = 32

	masterVersion = 1
	szMaster      = 4 + 1 + MaxLabel + 4 + 4 + 8
)

// FS is a mounted filesystem. Use Mount to obtain one.
type FS struct {
	dev   flash.Flash
	info  flash.Info
	g     geo
	label string
	sects []byte // cached sector header states, rebuilt by Mount
	buf   []byte // page sized scratch of the write path
}

// Format erases the device and writes an empty filesystem with the given
// volume label (at most MaxLabel bytes). Any previous content is lost.
func Format(dev flash.Flash, label string) (err error) {
	if len(label) > MaxLabel {
		return &ErrINVAL{"Format: label too long", int64(len(label))}
	}

	info := dev.Info()
	g, err := mkGeo(info)
	if err != nil {
		return
	}

	if err = dev.ChipErase(); err != nil {
		return
	}

	fs := &FS{dev: dev, info: info, g: g, label: label}
	fs.sects = bytes.Repeat([]byte{sectErased}, g.sectors)
	fs.buf = make([]byte, g.pageSize)
	for s := 0; s < g.sectors; s++ {
		if err = fs.writeHeader(s, sectErased); err != nil {
			return
		}
	}

	return fs.writeMaster()
}

// Mount reads the filesystem from dev and returns it. Mount validates the
// master page, rebuilds the in-RAM sector state cache and repairs the
// leftovers of an interrupted write: claims which never committed are
// demoted to RESERVED, superseded MOVING items and duplicate USED items to
// OLD.
func Mount(dev flash.Flash) (fs *FS, err error) {
	info := dev.Info()
	g, err := mkGeo(info)
	if err != nil {
		return nil, err
	}

	fs = &FS{dev: dev, info: info, g: g}
	fs.sects = make([]byte, g.sectors)
	fs.buf = make([]byte, g.pageSize)
	for s := 0; s < g.sectors; s++ {
		if fs.sects[s], err = fs.readHeaderState(s); err != nil {
			return nil, err
		}
	}

	if err = fs.repair(); err != nil {
		return nil, err
	}

	if err = fs.readMaster(); err != nil {
		return nil, err
	}

	return fs, nil
}

// Close releases the in-RAM state of fs. It does not close the device,
// whose lifetime belongs to the caller. Close is idempotent and fs must
// not be used afterwards.
func (fs *FS) Close() (err error) {
	fs.sects = nil
	fs.buf = nil
	return
}

// Info returns the geometry of the mounted device.
func (fs *FS) Info() flash.Info { return fs.info }

// Label returns the volume label written by Format.
func (fs *FS) Label() string { return fs.label }

// CacheClear drops cached page content. The only cache the current
// implementation keeps is the derived sector state table, which is always
// exact, so there is nothing to drop. CacheClear never fails.
func (fs *FS) CacheClear() {}

// readHeaderState reads and validates the header of a sector, returning
// its state. An all 0xFF header reads as ERASED.
func (fs *FS) readHeaderState(s int) (state byte, err error) {
	var b [szHeader]byte
	if err = fs.dev.PageRead(fs.g.sectorAddr(s), b[:]); err != nil {
		return
	}

	if blankHeader(b[:]) {
		return sectErased, nil
	}

	var h header
	h.rd(b[:])
	switch {
	case h.magic != sectMagic:
		return 0, &ErrCorrupt{Off: fs.g.sectorAddr(s), More: "metadata header magic mismatch"}
	case !validSectorState(h.state):
		return 0, &ErrCorrupt{Off: fs.g.sectorAddr(s) + 4, More: "invalid sector state"}
	case h.metaItems != byte(fs.g.dataPages):
		return 0, &ErrCorrupt{Off: fs.g.sectorAddr(s) + 6, More: "metadata item count mismatch"}
	}
	return h.state, nil
}

// writeHeader programs a complete header into a freshly erased sector and
// records the state in the cache.
func (fs *FS) writeHeader(s int, state byte) (err error) {
	h := header{
		magic:     sectMagic,
		state:     state,
		metaPages: byte(fs.g.metaPages),
		metaItems: byte(fs.g.dataPages),
	}
	var b [szHeader]byte
	h.wr(b[:])
	if err = fs.dev.PageProgram(fs.g.sectorAddr(s), b[:]); err != nil {
		return
	}

	fs.sects[s] = state
	return
}

// setHeaderState programs the header state byte of a sector. The caller
// guarantees the transition clears bits only.
func (fs *FS) setHeaderState(s int, state byte) (err error) {
	if fs.sects[s] == state {
		return
	}

	if err = fs.dev.PageProgram(fs.g.sectorAddr(s)+4, []byte{state}); err != nil {
		return
	}

	fs.sects[s] = state
	return
}

// ensureHeader makes sure a sector the allocator is about to use carries a
// valid header; a freshly erased sector gets one written now.
func (fs *FS) ensureHeader(s int) (err error) {
	var b [szHeader]byte
	if err = fs.dev.PageRead(fs.g.sectorAddr(s), b[:]); err != nil {
		return
	}

	if blankHeader(b[:]) {
		return fs.writeHeader(s, sectErased)
	}

	return
}

// readItems reads the item table of a sector. The returned slice is valid
// until the next call with the same FS.
func (fs *FS) readItems(s int, items []item) ([]item, error) {
	n := szHeader + fs.g.dataPages*szItem
	b := make([]byte, n)
	addr := fs.g.sectorAddr(s)
	for off := 0; off < n; off += fs.g.pageSize {
		end := off + fs.g.pageSize
		if end > n {
			end = n
		}
		if err := fs.dev.PageRead(addr+int64(off), b[off:end]); err != nil {
			return nil, err
		}
	}

	items = items[:0]
	for i := 0; i < fs.g.dataPages; i++ {
		var it item
		it.rd(b[szHeader+i*szItem:])
		if !validPageState(it.state) {
			return nil, &ErrCorrupt{Off: fs.g.itemAddr(s, i) + 4, More: "invalid page state"}
		}

		items = append(items, it)
	}
	return items, nil
}

// setItemState programs the state byte of an item and refreshes the sector
// header from the new census.
func (fs *FS) setItemState(s, i int, state byte) (err error) {
	if err = fs.dev.PageProgram(fs.g.itemAddr(s, i)+4, []byte{state}); err != nil {
		return
	}

	return fs.updateHeader(s)
}

// claimItem programs the fileID and block fields of a free item. The state
// byte is left alone; the programmed id alone marks the claim.
func (fs *FS) claimItem(s, i int, fileID, block uint16) (err error) {
	var b [4]byte
	binary.LittleEndian.PutUint16(b[:], fileID)
	binary.LittleEndian.PutUint16(b[2:], block)
	return fs.dev.PageProgram(fs.g.itemAddr(s, i), b[:])
}

// commitItem programs state USED together with the final size, completing
// a claim in a single program operation.
func (fs *FS) commitItem(s, i int, size uint16) (err error) {
	var b [3]byte
	b[0] = pageUsed
	binary.LittleEndian.PutUint16(b[1:], size)
	if err = fs.dev.PageProgram(fs.g.itemAddr(s, i)+4, b[:]); err != nil {
		return
	}

	return fs.updateHeader(s)
}

// updateHeader re-derives the sector state from the item census and
// programs the header when it lags behind.
func (fs *FS) updateHeader(s int) (err error) {
	items, err := fs.readItems(s, nil)
	if err != nil {
		return
	}

	c := mkCensus(items)
	want := c.state(fs.g.dataPages)
	cur := fs.sects[s]
	if cur == want || cur&want != want {
		// Either up to date or the derivation moved backwards, which
		// happens only transiently while a sector is being reborn.
		return
	}

	return fs.setHeaderState(s, want)
}

// repair fixes the leftovers of an interrupted write so that the single
// canonical copy rule holds again. Scan order (sector ascending, item
// ascending) decides which of two duplicate USED items survives.
func (fs *FS) repair() (err error) {
	type key struct {
		id    uint16
		block uint16
	}
	used := map[key]bool{}
	var moving []loc
	var items []item

	// Sectors whose header reads ERASED are scanned too: a crash may have
	// hit between an item program and the header update which would have
	// taken the sector out of that state.
	for s := 0; s < fs.g.sectors; s++ {
		if items, err = fs.readItems(s, items); err != nil {
			return
		}

		for i := range items {
			it := &items[i]
			switch {
			case it.claimed():
				if err = fs.dev.PageProgram(fs.g.itemAddr(s, i)+4, []byte{pageReserved}); err != nil {
					return
				}
			case it.state == pageUsed:
				k := key{it.fileID, it.block}
				if used[k] {
					if err = fs.dev.PageProgram(fs.g.itemAddr(s, i)+4, []byte{pageOld}); err != nil {
						return
					}

					break
				}

				used[k] = true
			case it.state == pageMoving:
				moving = append(moving, loc{s, i, *it})
			}
		}
		// Re-derive the header even when no item changed; a crash may
		// have hit between an item program and its header update.
		if err = fs.updateHeader(s); err != nil {
			return
		}
	}

	for _, m := range moving {
		if !used[key{m.it.fileID, m.it.block}] {
			continue
		}

		if err = fs.setItemState(m.sector, m.index, pageOld); err != nil {
			return
		}
	}
	return
}

// writeMaster writes the master page as file 0, block 0.
func (fs *FS) writeMaster() (err error) {
	b := make([]byte, szMaster)
	binary.LittleEndian.PutUint32(b, masterMagic)
	b[4] = masterVersion
	copy(b[5:5+MaxLabel], fs.label)
	binary.LittleEndian.PutUint32(b[5+MaxLabel:], uint32(fs.g.pageSize))
	binary.LittleEndian.PutUint32(b[9+MaxLabel:], uint32(fs.g.sectorSize))
	binary.LittleEndian.PutUint64(b[13+MaxLabel:], uint64(fs.info.Capacity))
	_, err = fs.writeAt(0, b, 0)
	return
}

// readMaster reads and validates the master page.
func (fs *FS) readMaster() (err error) {
	b := make([]byte, szMaster)
	n, err := fs.readAt(0, b, 0)
	if err != nil && n != szMaster {
		return &ErrCorrupt{Off: 0, More: "master page unreadable"}
	}

	if binary.LittleEndian.Uint32(b) != masterMagic {
		return &ErrCorrupt{Off: 0, More: "master page magic mismatch"}
	}

	ps := binary.LittleEndian.Uint32(b[5+MaxLabel:])
	ss := binary.LittleEndian.Uint32(b[9+MaxLabel:])
	c := binary.LittleEndian.Uint64(b[13+MaxLabel:])
	if int(ps) != fs.g.pageSize || int(ss) != fs.g.sectorSize || c != uint64(fs.info.Capacity) {
		return &ErrCorrupt{Off: 0, More: "master page geometry mismatch"}
	}

	fs.label = string(bytes.TrimRight(b[5:5+MaxLabel], "\x00"))
	return nil
}
