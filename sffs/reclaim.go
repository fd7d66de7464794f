// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Sector reclamation: relocate the live pages of a victim sector (DIRTY
// before FULL before any other, then the most dead pages), erase it, give
// its pages back to the allocator.

package sffs

// reclaim erases one victim sector, relocating its live pages first. excl
// (-1 for none) is a sector the caller is already reclaiming and which
// must not be chosen again. Fails with *ErrNoSpace when no sector holds a
// dead page or no victim's live pages fit outside of it.
func (fs *FS) reclaim(excl int) (err error) {
	victim, err := fs.chooseVictim(excl)
	if err != nil {
		return
	}

	items, err := fs.readItems(victim, nil)
	if err != nil {
		return
	}

	for i := range items {
		if !items[i].live() {
			continue
		}

		if err = fs.moveItem(victim, i, &items[i]); err != nil {
			return
		}
	}

	if err = fs.dev.SectorErase(fs.g.sectorAddr(victim)); err != nil {
		return
	}

	return fs.writeHeader(victim, sectErased)
}

// chooseVictim picks the sector to erase: DIRTY before FULL before USED,
// then the most dead pages, then the lowest index. A sector qualifies only
// if it has a dead page and its live pages fit into the free pages outside
// of it.
func (fs *FS) chooseVictim(excl int) (victim int, err error) {
	victim = -1
	var best census
	var items []item

	rank := func(state byte) int {
		switch state {
		case sectDirty:
			return 2
		case sectFull:
			return 1
		default:
			return 0
		}
	}

	for s := 0; s < fs.g.sectors; s++ {
		if s == excl || fs.sects[s] == sectErased {
			continue
		}

		if items, err = fs.readItems(s, items); err != nil {
			return
		}

		c := mkCensus(items)
		if c.dead() == 0 {
			continue
		}

		free, err2 := fs.freePages(s)
		if err2 != nil {
			return -1, err2
		}

		if c.live() > free {
			continue
		}

		if victim < 0 {
			victim, best = s, c
			continue
		}

		switch rv, rb := rank(fs.sects[s]), rank(fs.sects[victim]); {
		case rv > rb, rv == rb && c.dead() > best.dead():
			victim, best = s, c
		}
	}
	if victim < 0 {
		return -1, &ErrNoSpace{"reclaim"}
	}

	return victim, nil
}

// moveItem relocates one live page out of the victim through the regular
// copy-on-write steps, so a crash at any point leaves a readable copy.
func (fs *FS) moveItem(victim, i int, it *item) (err error) {
	// Not fs.buf: a client write being served by this reclamation has its
	// assembled page image in there.
	page := make([]byte, it.size)
	if err = fs.dev.PageRead(fs.g.dataAddr(victim, i), page); err != nil {
		return
	}

	nw, err := fs.alloc(victim, false)
	if err != nil {
		return
	}

	if it.state == pageUsed {
		if err = fs.setItemState(victim, i, pageMoving); err != nil {
			return
		}
	}

	if err = fs.claimItem(nw.sector, nw.index, it.fileID, it.block); err != nil {
		return
	}

	if len(page) > 0 {
		if err = fs.dev.PageProgram(fs.g.dataAddr(nw.sector, nw.index), page); err != nil {
			return
		}
	}

	if err = fs.commitItem(nw.sector, nw.index, it.size); err != nil {
		return
	}

	return fs.setItemState(victim, i, pageOld)
}
