// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sffs

import (
	"bytes"
	"io"
	"testing"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestWriteReadBack(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	b := pattern(1024)
	writeFile(t, fs, 42, b, 0)
	if g := readFile(t, fs, 42); !bytes.Equal(g, b) {
		t.Fatalf("%d bytes, want %d", len(g), len(b))
	}

	size, err := fs.FileSize(42)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := size, int64(1024); g != e {
		t.Fatal(g, e)
	}

	checkFS(t, fs)
}

func TestOverlappingWrites(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	writeFile(t, fs, 42, bytes.Repeat([]byte("A"), 300), 0)
	writeFile(t, fs, 42, bytes.Repeat([]byte("B"), 300), 200)

	e := append(bytes.Repeat([]byte("A"), 200), bytes.Repeat([]byte("B"), 300)...)
	if g := readFile(t, fs, 42); !bytes.Equal(g, e) {
		t.Fatalf("got %d bytes %q..., want %d", len(g), g[:16], len(e))
	}

	if size, err := fs.FileSize(42); size != 500 || err != nil {
		t.Fatal(size, err)
	}

	checkFS(t, fs)
}

func TestRoundTrip(t *testing.T) {
	dev := testFlash(t)
	fs := testFS(t, dev)
	b := pattern(3*testPage + 11)
	writeFile(t, fs, 7, b, 0)
	fs.Close()

	// Remount and read through a fresh handle.
	fs = testMount(t, dev)
	defer fs.Close()
	if g := readFile(t, fs, 7); !bytes.Equal(g, b) {
		t.Fatal("content differs after remount")
	}
}

func TestAppend(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	a := bytes.Repeat([]byte("a"), 333)
	b := bytes.Repeat([]byte("b"), 467)
	writeFile(t, fs, 5, a, 0)

	f, err := fs.OpenID(5, ModeAppend)
	if err != nil {
		t.Fatal(err)
	}

	if pos, err := f.Seek(0, io.SeekCurrent); pos != 333 || err != nil {
		t.Fatal(pos, err)
	}

	if n, err := f.Write(b); n != len(b) || err != nil {
		t.Fatal(n, err)
	}

	f.Close()
	if g := readFile(t, fs, 5); !bytes.Equal(g, append(a[:333:333], b...)) {
		t.Fatal("content differs")
	}
}

func TestRemove(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	writeFile(t, fs, 3, pattern(1000), 0)
	if err := fs.Remove(3); err != nil {
		t.Fatal(err)
	}

	if _, err := fs.FileSize(3); !IsNotFound(err) {
		t.Fatal(err)
	}

	if err := fs.Remove(3); !IsNotFound(err) {
		t.Fatal(err)
	}

	if _, err := fs.OpenID(3, ModeRead); !IsNotFound(err) {
		t.Fatal(err)
	}

	checkFS(t, fs)
}

func TestBoundaries(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	tab := []int{1, testPage - 1, testPage, testPage + 1, 2 * testPage, 2*testPage + 1, 3 * testPage}
	for i, n := range tab {
		id := uint16(100 + i)
		b := pattern(n)
		writeFile(t, fs, id, b, 0)
		if g := readFile(t, fs, id); !bytes.Equal(g, b) {
			t.Fatal(i, n)
		}

		if size, err := fs.FileSize(id); size != int64(n) || err != nil {
			t.Fatal(i, size, err)
		}
	}
	checkFS(t, fs)
}

func TestWriteByteAtATime(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	f, err := fs.OpenID(8, ModeOverwrite)
	if err != nil {
		t.Fatal(err)
	}

	e := pattern(testPage + 7)
	for _, v := range e {
		if n, err := f.Write([]byte{v}); n != 1 || err != nil {
			t.Fatal(n, err)
		}
	}
	f.Close()
	if g := readFile(t, fs, 8); !bytes.Equal(g, e) {
		t.Fatal("content differs")
	}
}

func TestHole(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	tail := []byte("tail")
	writeFile(t, fs, 11, tail, 1000)

	size, err := fs.FileSize(11)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := size, int64(1004); g != e {
		t.Fatal(g, e)
	}

	g := readFile(t, fs, 11)
	if len(g) != 1004 {
		t.Fatal(len(g))
	}

	if !bytes.Equal(g[:1000], make([]byte, 1000)) {
		t.Fatal("hole does not read as zeros")
	}

	if !bytes.Equal(g[1000:], tail) {
		t.Fatal("tail differs")
	}

	checkFS(t, fs)
}

func TestShortBlockReadsZeros(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	writeFile(t, fs, 12, bytes.Repeat([]byte{0xee}, 100), 0)
	writeFile(t, fs, 12, []byte("x"), 500)

	g := readFile(t, fs, 12)
	if len(g) != 501 {
		t.Fatal(len(g))
	}

	if !bytes.Equal(g[100:500], make([]byte, 400)) {
		t.Fatal("unwritten range does not read as zeros")
	}
}

func TestModes(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	if _, err := fs.OpenID(20, ModeRead); !IsNotFound(err) {
		t.Fatal(err)
	}

	writeFile(t, fs, 20, []byte("hello"), 0)
	f, err := fs.OpenID(20, ModeRead)
	if err != nil {
		t.Fatal(err)
	}

	if _, err = f.Write([]byte("x")); err == nil {
		t.Fatal("write through a read-only handle")
	}

	if _, ok := err.(*ErrPERM); !ok {
		t.Fatal(err)
	}

	f.Close()
	if _, err = f.Read(make([]byte, 1)); err == nil {
		t.Fatal("read through a closed handle")
	}
}

func TestInvalidIDs(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	for _, id := range []uint16{0, 0xffff} {
		if _, err := fs.OpenID(id, ModeOverwrite); err == nil {
			t.Fatal(id)
		}

		if _, err := fs.FileSize(id); err == nil {
			t.Fatal(id)
		}

		if err := fs.Remove(id); err == nil {
			t.Fatal(id)
		}
	}
}

func TestSeek(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	writeFile(t, fs, 30, pattern(600), 0)
	f, err := fs.OpenID(30, ModeOverwrite)
	if err != nil {
		t.Fatal(err)
	}

	defer f.Close()
	if pos, err := f.Seek(0, io.SeekEnd); pos != 600 || err != nil {
		t.Fatal(pos, err)
	}

	if pos, err := f.Seek(-100, io.SeekCurrent); pos != 500 || err != nil {
		t.Fatal(pos, err)
	}

	b := make([]byte, 100)
	if n, err := f.Read(b); n != 100 || err != io.EOF {
		t.Fatal(n, err)
	}

	if !bytes.Equal(b, pattern(600)[500:]) {
		t.Fatal("content differs")
	}

	if _, err := f.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("negative position accepted")
	}
}

func TestReadAtWriteAt(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	f, err := fs.OpenID(31, ModeOverwrite)
	if err != nil {
		t.Fatal(err)
	}

	defer f.Close()
	if n, err := f.WriteAt(pattern(300), 0); n != 300 || err != nil {
		t.Fatal(n, err)
	}

	if n, err := f.WriteAt([]byte{0xff, 0xfe}, 100); n != 2 || err != nil {
		t.Fatal(n, err)
	}

	// WriteAt does not move the handle position.
	if pos, err := f.Seek(0, io.SeekCurrent); pos != 0 || err != nil {
		t.Fatal(pos, err)
	}

	b := make([]byte, 4)
	if n, err := f.ReadAt(b, 99); n != 4 || err != nil {
		t.Fatal(n, err)
	}

	if !bytes.Equal(b, []byte{99, 0xff, 0xfe, 102}) {
		t.Fatalf("% x", b)
	}
}

func TestReadPastEOF(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	writeFile(t, fs, 33, []byte("abc"), 0)
	f, err := fs.OpenID(33, ModeRead)
	if err != nil {
		t.Fatal(err)
	}

	defer f.Close()
	b := make([]byte, 10)
	if n, err := f.Read(b); n != 3 || err != io.EOF {
		t.Fatal(n, err)
	}

	if n, err := f.Read(b); n != 0 || err != io.EOF {
		t.Fatal(n, err)
	}

	if n, err := f.ReadAt(b, 100); n != 0 || err != io.EOF {
		t.Fatal(n, err)
	}
}

func TestManyFiles(t *testing.T) {
	fs := testFS(t, testFlash(t))
	defer fs.Close()

	ids := []uint16{1, 2, 17, 256, 4242, MaxFileID}
	for _, id := range ids {
		writeFile(t, fs, id, pattern(int(id)%700+1), 0)
	}
	got, err := fs.FileIDs()
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != len(ids) {
		t.Fatal(got)
	}

	for i, id := range ids {
		if got[i] != id {
			t.Fatal(got)
		}
	}
}
