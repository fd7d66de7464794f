// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newMem(t *testing.T) *MemFlash {
	f, err := NewMemFlash(64<<10, 256, 4096)
	require.NoError(t, err)
	return f
}

func TestMemFlashGeometry(t *testing.T) {
	f := newMem(t)
	info := f.Info()
	require.Equal(t, int64(64<<10), info.Capacity)
	require.Equal(t, 256, info.PageSize)
	require.Equal(t, 4096, info.SectorSize)

	_, err := NewMemFlash(64<<10, 256, 300) // sector not a page multiple
	require.Error(t, err)
	_, err = NewMemFlash(1000, 256, 4096) // capacity not a sector multiple
	require.Error(t, err)
}

func TestMemFlashReadsErased(t *testing.T) {
	f := newMem(t)
	b := make([]byte, 256)
	require.NoError(t, f.PageRead(4096, b))
	require.Equal(t, bytes.Repeat([]byte{0xff}, 256), b)
}

func TestMemFlashANDSemantics(t *testing.T) {
	f := newMem(t)
	require.NoError(t, f.PageProgram(0, []byte{0xf0}))

	// Clearing more bits is fine.
	require.NoError(t, f.PageProgram(0, []byte{0x90}))

	// Setting a cleared bit is not.
	err := f.PageProgram(0, []byte{0xf0})
	require.Error(t, err)
	ep, ok := err.(*ErrProgram)
	require.True(t, ok)
	require.Equal(t, int64(0), ep.Off)

	// The failed program left the page untouched.
	b := make([]byte, 1)
	require.NoError(t, f.PageRead(0, b))
	require.Equal(t, byte(0x90), b[0])
}

func TestMemFlashProgramAtomicity(t *testing.T) {
	f := newMem(t)
	require.NoError(t, f.PageProgram(0, []byte{0x0f, 0x00}))

	// The second byte would set a bit; the first byte, although it could
	// be cleared, must stay untouched too.
	require.Error(t, f.PageProgram(0, []byte{0x00, 0x01}))

	b := make([]byte, 2)
	require.NoError(t, f.PageRead(0, b))
	require.Equal(t, []byte{0x0f, 0x00}, b)
}

func TestMemFlashPageBounds(t *testing.T) {
	f := newMem(t)
	b := make([]byte, 257)
	require.Error(t, f.PageRead(0, b))           // larger than a page
	require.Error(t, f.PageRead(128, b[:256]))   // crosses a page boundary
	require.Error(t, f.PageRead(-1, b[:1]))      // before the device
	require.Error(t, f.PageRead(64<<10, b[:1]))  // past the device
	require.Error(t, f.PageProgram(255, b[:2]))  // crosses a page boundary
	require.NoError(t, f.PageRead(256, b[:256])) // exactly one page
	require.NoError(t, f.PageRead(300, b[:100])) // within one page
}

func TestMemFlashSectorErase(t *testing.T) {
	f := newMem(t)
	require.NoError(t, f.PageProgram(4096, []byte{0x00}))
	require.Error(t, f.SectorErase(4097)) // unaligned

	require.NoError(t, f.SectorErase(4096))
	b := make([]byte, 1)
	require.NoError(t, f.PageRead(4096, b))
	require.Equal(t, byte(0xff), b[0])

	// Erase returned the page to programmable state.
	require.NoError(t, f.PageProgram(4096, []byte{0xab}))
}

func TestMemFlashChipErase(t *testing.T) {
	f := newMem(t)
	require.NoError(t, f.PageProgram(0, []byte{0x00}))
	require.NoError(t, f.PageProgram(8192, []byte{0x00}))
	require.NoError(t, f.ChipErase())

	b := make([]byte, 1)
	for _, addr := range []int64{0, 8192} {
		require.NoError(t, f.PageRead(addr, b))
		require.Equal(t, byte(0xff), b[0])
	}
}

func TestMemFlashWriteToReadFrom(t *testing.T) {
	f := newMem(t)
	require.NoError(t, f.PageProgram(4096, []byte{1, 2, 3}))
	require.NoError(t, f.PageProgram(60<<10, []byte{4, 5, 6}))

	var img bytes.Buffer
	n, err := f.WriteTo(&img)
	require.NoError(t, err)
	require.Equal(t, int64(64<<10), n)

	g := newMem(t)
	_, err = g.ReadFrom(bytes.NewReader(img.Bytes()))
	require.NoError(t, err)

	b := make([]byte, 3)
	require.NoError(t, g.PageRead(4096, b))
	require.Equal(t, []byte{1, 2, 3}, b)
	require.NoError(t, g.PageRead(60<<10, b))
	require.Equal(t, []byte{4, 5, 6}, b)
}
