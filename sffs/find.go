// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The locator and the erased page allocator. Both are linear scans over
// the metadata tables; the cached sector states only prune sectors which
// cannot hold a match. Scan order is (sector ascending, item ascending) so
// behavior is deterministic.

package sffs

// loc names a metadata item (and its data page) on the device.
type loc struct {
	sector, index int
	it            item
}

// findPage locates the canonical item of (fileID, block). A USED item wins
// over a MOVING one; among equals the first in scan order wins. ok is
// false when the block has no live item.
func (fs *FS) findPage(fileID, block uint16) (l loc, ok bool, err error) {
	var movingL loc
	var movingOK bool
	var items []item

	for s := 0; s < fs.g.sectors; s++ {
		if fs.sects[s] == sectErased {
			continue
		}

		if items, err = fs.readItems(s, items); err != nil {
			return
		}

		for i := range items {
			it := &items[i]
			if it.fileID != fileID || it.block != block {
				continue
			}

			switch it.state {
			case pageUsed:
				return loc{s, i, *it}, true, nil
			case pageMoving:
				if !movingOK {
					movingL, movingOK = loc{s, i, *it}, true
				}
			}
		}
	}
	return movingL, movingOK, nil
}

// findErased returns a free item to claim. Partially used sectors are
// preferred over erased ones so that writes concentrate before touching
// fresh sectors; FULL and DIRTY sectors hold no free items. Sector excl
// (-1 for none) is never used; reclamation passes its victim there. ok is
// false when no free item exists outside excl.
func (fs *FS) findErased(excl int) (l loc, ok bool, err error) {
	for _, want := range [2]byte{sectUsed, sectErased} {
		for s := 0; s < fs.g.sectors; s++ {
			if s == excl || fs.sects[s] != want {
				continue
			}

			if l, ok, err = fs.findErasedIn(s); ok || err != nil {
				return
			}
		}
	}
	return
}

func (fs *FS) findErasedIn(s int) (l loc, ok bool, err error) {
	items, err := fs.readItems(s, nil)
	if err != nil {
		return
	}

	for i := range items {
		if items[i].free() {
			return loc{s, i, items[i]}, true, nil
		}
	}
	return
}

// freePages counts free items outside sector excl (-1 for none).
func (fs *FS) freePages(excl int) (n int, err error) {
	var items []item
	for s := 0; s < fs.g.sectors; s++ {
		if s == excl {
			continue
		}

		switch fs.sects[s] {
		case sectErased:
			n += fs.g.dataPages
			continue
		case sectFull, sectDirty:
			continue
		}

		if items, err = fs.readItems(s, items); err != nil {
			return
		}

		for i := range items {
			if items[i].free() {
				n++
			}
		}
	}
	return
}

// extent returns the byte length of a file: the highest live block's
// offset plus its size. ok is false for a file with no live item.
func (fs *FS) extent(fileID uint16) (size int64, ok bool, err error) {
	var top item
	var items []item

	for s := 0; s < fs.g.sectors; s++ {
		if fs.sects[s] == sectErased {
			continue
		}

		if items, err = fs.readItems(s, items); err != nil {
			return
		}

		for i := range items {
			it := &items[i]
			if it.fileID != fileID || !it.live() {
				continue
			}

			switch {
			case !ok, it.block > top.block:
				top, ok = *it, true
			case it.block == top.block && it.state == pageUsed && top.state == pageMoving:
				// The committed copy decides the size.
				top = *it
			}
		}
	}
	if !ok {
		return 0, false, nil
	}

	return int64(top.block)*int64(fs.g.pageSize) + int64(top.size), true, nil
}
