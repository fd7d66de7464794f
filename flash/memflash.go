// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// A memory-only implementation of Flash.

package flash

import (
	"bytes"
	"io"

	"github.com/cznic/mathutil"
)

var _ Flash = &MemFlash{} // Ensure MemFlash is a Flash.

// MemFlash is a memory backed Flash. Sectors are materialized lazily; a
// sector which was never programmed since its last erase occupies no memory
// and reads as all 0xFF. MemFlash is not automatically persistent, but it
// has ReadFrom and WriteTo methods.
type MemFlash struct {
	info Info
	m    map[int64][]byte // sector index -> sector content, nil == erased
}

// NewMemFlash returns a new MemFlash with the given geometry. Geometry
// values must be positive, pageSize must divide sectorSize and sectorSize
// must divide capacity.
func NewMemFlash(capacity int64, pageSize, sectorSize int) (*MemFlash, error) {
	switch {
	case pageSize <= 0:
		return nil, &ErrINVAL{"NewMemFlash: page size", int64(pageSize)}
	case sectorSize <= 0 || sectorSize%pageSize != 0:
		return nil, &ErrINVAL{"NewMemFlash: sector size", int64(sectorSize)}
	case capacity <= 0 || capacity%int64(sectorSize) != 0:
		return nil, &ErrINVAL{"NewMemFlash: capacity", capacity}
	}

	return &MemFlash{
		info: Info{
			Capacity:   capacity,
			PageSize:   pageSize,
			SectorSize: sectorSize,
			BlockSize:  16 * sectorSize,
		},
		m: map[int64][]byte{},
	}, nil
}

// Close implements Flash.
func (f *MemFlash) Close() (err error) {
	f.m = nil
	return
}

// Info implements Flash.
func (f *MemFlash) Info() Info { return f.info }

// PageRead implements Flash.
func (f *MemFlash) PageRead(addr int64, b []byte) (err error) {
	if err = checkPageIO("MemFlash.PageRead", f.info, addr, len(b)); err != nil {
		return
	}

	sec := f.m[addr/int64(f.info.SectorSize)]
	if sec == nil {
		for i := range b {
			b[i] = 0xff
		}
		return
	}

	copy(b, sec[addr%int64(f.info.SectorSize):])
	return
}

// PageProgram implements Flash.
func (f *MemFlash) PageProgram(addr int64, b []byte) (err error) {
	if err = checkPageIO("MemFlash.PageProgram", f.info, addr, len(b)); err != nil {
		return
	}

	si := addr / int64(f.info.SectorSize)
	sec := f.m[si]
	if sec == nil {
		sec = bytes.Repeat([]byte{0xff}, f.info.SectorSize)
		f.m[si] = sec
	}
	off := int(addr % int64(f.info.SectorSize))
	for i, v := range b {
		old := sec[off+i]
		if old&v != v {
			return &ErrProgram{Off: addr + int64(i), Old: old, Data: v}
		}
	}
	for i, v := range b {
		sec[off+i] &= v
	}
	return
}

// SectorErase implements Flash.
func (f *MemFlash) SectorErase(addr int64) (err error) {
	if err = checkSector("MemFlash.SectorErase", f.info, addr); err != nil {
		return
	}

	delete(f.m, addr/int64(f.info.SectorSize))
	return
}

// ChipErase implements Flash.
func (f *MemFlash) ChipErase() (err error) {
	f.m = map[int64][]byte{}
	return
}

// ReadFrom is a helper to populate MemFlash's content from r. 'n' reports
// the number of bytes read from 'r'. Content beyond what r provides keeps
// reading as erased. Programs performed through ReadFrom are not subject to
// the AND rule; the read image replaces the device content.
func (f *MemFlash) ReadFrom(r io.Reader) (n int64, err error) {
	if err = f.ChipErase(); err != nil {
		return
	}

	ss := int64(f.info.SectorSize)
	buf := make([]byte, f.info.SectorSize)
	for si := int64(0); si < f.info.Capacity/ss; si++ {
		rn, rerr := io.ReadFull(r, buf)
		if rn != 0 {
			sec := bytes.Repeat([]byte{0xff}, f.info.SectorSize)
			copy(sec, buf[:rn])
			if !bytes.Equal(sec, erasedSector(f.info.SectorSize)) {
				f.m[si] = sec
			}
			n += int64(rn)
		}
		if rerr != nil {
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				return n, nil
			}

			return n, rerr
		}
	}
	return
}

// WriteTo is a helper to copy/persist MemFlash's content to w. 'n' reports
// the number of bytes written to 'w'; on success it equals the device
// capacity.
func (f *MemFlash) WriteTo(w io.Writer) (n int64, err error) {
	ss := int64(f.info.SectorSize)
	for si := int64(0); si < f.info.Capacity/ss; si++ {
		sec := f.m[si]
		if sec == nil {
			sec = erasedSector(f.info.SectorSize)
		}
		wn, werr := w.Write(sec)
		n += int64(wn)
		if werr != nil {
			return n, werr
		}
	}
	return
}

var erased []byte

func erasedSector(size int) []byte {
	if len(erased) < size {
		erased = bytes.Repeat([]byte{0xff}, mathutil.Max(size, 1<<16))
	}
	return erased[:size]
}
