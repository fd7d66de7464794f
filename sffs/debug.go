// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Debug dump and file listing.

package sffs

import (
	"fmt"
	"io"
	"sort"

	"github.com/cznic/sortutil"
)

// FileIDs returns the ids of all files on the volume in ascending order.
// The master page (id 0) is not listed.
func (fs *FS) FileIDs() (ids []uint16, err error) {
	seen := map[uint16]bool{}
	var items []item
	for s := 0; s < fs.g.sectors; s++ {
		if fs.sects[s] == sectErased {
			continue
		}

		if items, err = fs.readItems(s, items); err != nil {
			return nil, err
		}

		for i := range items {
			if it := &items[i]; it.live() && it.fileID != 0 {
				seen[it.fileID] = true
			}
		}
	}

	a := make(sortutil.Int64Slice, 0, len(seen))
	for id := range seen {
		a = append(a, int64(id))
	}
	sort.Sort(a)
	ids = make([]uint16, len(a))
	for i, v := range a {
		ids[i] = uint16(v)
	}
	return ids, nil
}

func stateChar(s byte) byte {
	switch s {
	case sectErased, pageErased:
		return '.'
	case sectUsed, pageUsed:
		return 'u'
	case sectFull:
		return 'F'
	case sectDirty:
		return 'D'
	case pageMoving:
		return 'm'
	case pageReserved:
		return 'r'
	case pageOld:
		return 'o'
	}
	return '?'
}

// DebugPrint dumps the volume structure to w: geometry, one line per
// sector with the header state and an item state map, and the live files.
// It is a best effort diagnostic helper and never fails; read errors are
// reported inline in the dump.
func (fs *FS) DebugPrint(w io.Writer) {
	fmt.Fprintf(w, "label %q, %d sectors * %d data pages * %d B, %d B sector\n",
		fs.label, fs.g.sectors, fs.g.dataPages, fs.g.pageSize, fs.g.sectorSize)
	var items []item
	var err error
	for s := 0; s < fs.g.sectors; s++ {
		fmt.Fprintf(w, "%4d %c ", s, stateChar(fs.sects[s]))
		if fs.sects[s] == sectErased {
			fmt.Fprintln(w)
			continue
		}

		if items, err = fs.readItems(s, items); err != nil {
			fmt.Fprintf(w, "<%v>\n", err)
			continue
		}

		for i := range items {
			switch it := &items[i]; {
			case it.free():
				fmt.Fprint(w, ".")
			case it.claimed():
				fmt.Fprint(w, "c")
			default:
				fmt.Fprintf(w, "%c", stateChar(it.state))
			}
		}
		fmt.Fprintln(w)
	}

	ids, err := fs.FileIDs()
	if err != nil {
		fmt.Fprintf(w, "files: <%v>\n", err)
		return
	}

	for _, id := range ids {
		size, _, err := fs.extent(id)
		if err != nil {
			fmt.Fprintf(w, "file %5d <%v>\n", id, err)
			continue
		}

		fmt.Fprintf(w, "file %5d %8d B\n", id, size)
	}
}
