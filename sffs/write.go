// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The copy-on-write block update path and the positioned read path.

package sffs

import (
	"io"

	"github.com/cznic/mathutil"
)

// maxBlock is the highest addressable logical block of a file; 0xFFFF is
// the value an erased block field reads as.
const maxBlock = 0xfffe

// alloc returns a claimable free item. Client writes (reserve == true)
// must leave one sector's worth of free pages untouched so reclamation can
// always relocate a victim's live pages; reclamation itself allocates with
// reserve == false and its victim in excl.
func (fs *FS) alloc(excl int, reserve bool) (l loc, err error) {
	for {
		free, err := fs.freePages(excl)
		if err != nil {
			return l, err
		}

		lim := 0
		if reserve {
			lim = fs.g.dataPages
		}
		if free > lim {
			var ok bool
			if l, ok, err = fs.findErased(excl); err != nil {
				return l, err
			}

			if ok {
				if err = fs.ensureHeader(l.sector); err != nil {
					return l, err
				}

				return l, nil
			}
		}

		if err = fs.reclaim(excl); err != nil {
			return l, err
		}
	}
}

// writeAt writes b at byte position pos of the file, block by block. Holes
// left below pos stay unallocated and read as zeros.
func (fs *FS) writeAt(fileID uint16, b []byte, pos int64) (n int, err error) {
	if pos < 0 {
		return 0, &ErrINVAL{"write: negative position", pos}
	}

	if len(b) == 0 {
		return
	}

	ps := int64(fs.g.pageSize)
	bStart := pos / ps
	bEnd := (pos + int64(len(b)) - 1) / ps
	if bEnd > maxBlock {
		return 0, &ErrINVAL{"write: file too large", pos + int64(len(b))}
	}

	for blk := bStart; blk <= bEnd; blk++ {
		// The window of b falling into this block.
		lo := mathutil.MaxInt64(blk*ps, pos)
		hi := mathutil.MinInt64((blk+1)*ps, pos+int64(len(b)))
		destOff := int(lo - blk*ps)
		src := b[lo-pos : hi-pos]

		if err = fs.writeBlock(fileID, uint16(blk), destOff, src); err != nil {
			return
		}

		n += len(src)
	}
	return
}

// writeBlock rewrites one logical block through the copy-on-write
// protocol: assemble the post-write page image, claim a free page, program
// the image, commit, demote the superseded page.
func (fs *FS) writeBlock(fileID, block uint16, destOff int, src []byte) (err error) {
	old, oldOK, err := fs.findPage(fileID, block)
	if err != nil {
		return
	}

	page := fs.buf
	for i := range page {
		page[i] = 0
	}
	oldSize := 0
	if oldOK {
		oldSize = int(old.it.size)
		if err = fs.dev.PageRead(fs.g.dataAddr(old.sector, old.index), page[:oldSize]); err != nil {
			return
		}
	}
	copy(page[destOff:], src)
	size := mathutil.Max(oldSize, destOff+len(src))

	nw, err := fs.alloc(-1, true)
	if err != nil {
		return
	}

	// The allocator may have reclaimed the sector the old copy lived in,
	// relocating it.
	if oldOK {
		if old, oldOK, err = fs.findPage(fileID, block); err != nil {
			return
		}
	}

	if oldOK && old.it.state == pageUsed {
		if err = fs.setItemState(old.sector, old.index, pageMoving); err != nil {
			return
		}
	}

	if err = fs.claimItem(nw.sector, nw.index, fileID, block); err != nil {
		return
	}

	if err = fs.dev.PageProgram(fs.g.dataAddr(nw.sector, nw.index), page[:size]); err != nil {
		return
	}

	if err = fs.commitItem(nw.sector, nw.index, uint16(size)); err != nil {
		return
	}

	if oldOK {
		if err = fs.setItemState(old.sector, old.index, pageOld); err != nil {
			return
		}
	}
	return
}

// readAt reads up to len(b) bytes from byte position pos of the file.
// Blocks without a live item read as zeros below the file length, as do
// the bytes of a short block beyond its recorded size. err is io.EOF when
// the request reaches or crosses the end of the file.
func (fs *FS) readAt(fileID uint16, b []byte, pos int64) (n int, err error) {
	if pos < 0 {
		return 0, &ErrINVAL{"read: negative position", pos}
	}

	length, ok, err := fs.extent(fileID)
	if err != nil {
		return
	}

	if !ok {
		return 0, &ErrNotFound{"read", int64(fileID)}
	}

	avail := length - pos
	if avail <= 0 {
		return 0, io.EOF
	}

	rem := len(b)
	if int64(rem) >= avail {
		rem = int(avail)
		err = io.EOF
	}

	ps := int64(fs.g.pageSize)
	for rem > 0 {
		blk := pos / ps
		off := int(pos % ps)
		nc := mathutil.Min(rem, int(ps)-off)

		l, ok, err2 := fs.findPage(fileID, uint16(blk))
		if err2 != nil {
			return n, err2
		}

		// Bytes of a hole, and bytes beyond a short block's recorded
		// size, read as zeros.
		for i := 0; i < nc; i++ {
			b[n+i] = 0
		}
		if ok && off < int(l.it.size) {
			nd := mathutil.Min(nc, int(l.it.size)-off)
			if err2 = fs.dev.PageRead(fs.g.dataAddr(l.sector, l.index)+int64(off), b[n:n+nd]); err2 != nil {
				return n, err2
			}
		}

		pos += int64(nc)
		n += nc
		rem -= nc
	}
	return
}
