// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sffs

import (
	"bytes"
	"flag"
	"io"
	"testing"

	"github.com/iqyx/sffs/flash"
)

var (
	testIters = flag.Int("iters", 2000, "random workload test iterations")
	testFiles = flag.Int("files", 50, "random workload test file count")
)

const (
	testPage   = 256
	testSector = 4096
	testCap    = 1 << 20
)

func testFlash(t testing.TB) *flash.MemFlash {
	dev, err := flash.NewMemFlash(testCap, testPage, testSector)
	if err != nil {
		t.Fatal(err)
	}

	return dev
}

func testFS(t testing.TB, dev flash.Flash) *FS {
	if err := Format(dev, "test"); err != nil {
		t.Fatal(err)
	}

	return testMount(t, dev)
}

func testMount(t testing.TB, dev flash.Flash) *FS {
	fs, err := Mount(dev)
	if err != nil {
		t.Fatal(err)
	}

	return fs
}

func writeFile(t testing.TB, fs *FS, id uint16, b []byte, pos int64) {
	f, err := fs.OpenID(id, ModeOverwrite)
	if err != nil {
		t.Fatal(err)
	}

	if n, err := f.WriteAt(b, pos); n != len(b) || err != nil {
		t.Fatal(n, err)
	}

	if err = f.Close(); err != nil {
		t.Fatal(err)
	}
}

func readFile(t testing.TB, fs *FS, id uint16) []byte {
	f, err := fs.OpenID(id, ModeRead)
	if err != nil {
		t.Fatal(err)
	}

	defer f.Close()
	var buf bytes.Buffer
	b := make([]byte, 3*testPage+17)
	for {
		n, err := f.Read(b)
		buf.Write(b[:n])
		if err == io.EOF {
			return buf.Bytes()
		}

		if err != nil {
			t.Fatal(err)
		}
	}
}

// checkFS verifies the derived state of every sector header and the single
// canonical copy rule.
func checkFS(t testing.TB, fs *FS) {
	type key struct {
		id    uint16
		block uint16
	}
	used := map[key]int{}
	live := map[key]int{}
	var items []item
	var err error
	for s := 0; s < fs.g.sectors; s++ {
		state, err2 := fs.readHeaderState(s)
		if err2 != nil {
			t.Fatal(err2)
		}

		if g, e := state, fs.sects[s]; g != e {
			t.Fatalf("sector %d: cached state %#02x, stored %#02x", s, e, g)
		}

		if state == sectErased {
			continue
		}

		if items, err = fs.readItems(s, items); err != nil {
			t.Fatal(err)
		}

		c := mkCensus(items)
		if g, e := state, c.state(fs.g.dataPages); g != e {
			t.Fatalf("sector %d: header state %#02x, census wants %#02x (%+v)", s, g, e, c)
		}

		for i := range items {
			it := &items[i]
			if !it.live() {
				continue
			}

			k := key{it.fileID, it.block}
			live[k]++
			if it.state == pageUsed {
				used[k]++
			}
		}
	}
	for k, n := range used {
		if n > 1 {
			t.Fatalf("file %d block %d: %d USED copies", k.id, k.block, n)
		}
	}
	for k, n := range live {
		if n > 2 {
			t.Fatalf("file %d block %d: %d live copies", k.id, k.block, n)
		}
	}
}
