// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// A basic os.File backed Flash.

package flash

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
)

var _ Flash = &FileFlash{} // Ensure FileFlash is a Flash.

// FileFlash is an os.File backed Flash image. The file always holds the
// full device content; an erased device is a file of capacity 0xFF bytes.
// FileFlash emulates the NOR program rule in software, so an image
// manipulated only through FileFlash obeys the same constraints as a real
// chip.
type FileFlash struct {
	file *os.File
	info Info
}

// NewFileFlash returns a new FileFlash over f with the given geometry. If f
// is shorter than capacity it is extended with 0xFF (erased) content; a
// zero length f thus becomes a blank chip. Geometry constraints are those
// of NewMemFlash.
func NewFileFlash(f *os.File, capacity int64, pageSize, sectorSize int) (*FileFlash, error) {
	switch {
	case pageSize <= 0:
		return nil, &ErrINVAL{"NewFileFlash: page size", int64(pageSize)}
	case sectorSize <= 0 || sectorSize%pageSize != 0:
		return nil, &ErrINVAL{"NewFileFlash: sector size", int64(sectorSize)}
	case capacity <= 0 || capacity%int64(sectorSize) != 0:
		return nil, &ErrINVAL{"NewFileFlash: capacity", capacity}
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "NewFileFlash: stat")
	}

	r := &FileFlash{
		file: f,
		info: Info{
			Capacity:   capacity,
			PageSize:   pageSize,
			SectorSize: sectorSize,
			BlockSize:  16 * sectorSize,
		},
	}
	if fi.Size() < capacity {
		if err = r.fill(fi.Size(), capacity); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// fill extends the image with erased content in [from, to).
func (f *FileFlash) fill(from, to int64) (err error) {
	b := bytes.Repeat([]byte{0xff}, f.info.SectorSize)
	for off := from; off < to; {
		n := len(b)
		if rem := to - off; rem < int64(n) {
			n = int(rem)
		}
		if _, err = f.file.WriteAt(b[:n], off); err != nil {
			return errors.Wrap(err, "FileFlash: fill")
		}

		off += int64(n)
	}
	return
}

// Close implements Flash.
func (f *FileFlash) Close() (err error) {
	if f.file == nil {
		return
	}

	err = f.file.Close()
	f.file = nil
	return errors.Wrap(err, "FileFlash.Close")
}

// Info implements Flash.
func (f *FileFlash) Info() Info { return f.info }

// Name returns the name of the image file.
func (f *FileFlash) Name() string { return f.file.Name() }

// Sync commits the image to stable storage.
func (f *FileFlash) Sync() error {
	return errors.Wrap(f.file.Sync(), "FileFlash.Sync")
}

// PageRead implements Flash.
func (f *FileFlash) PageRead(addr int64, b []byte) (err error) {
	if err = checkPageIO("FileFlash.PageRead", f.info, addr, len(b)); err != nil {
		return
	}

	_, err = f.file.ReadAt(b, addr)
	return errors.Wrap(err, "FileFlash.PageRead")
}

// PageProgram implements Flash.
func (f *FileFlash) PageProgram(addr int64, b []byte) (err error) {
	if err = checkPageIO("FileFlash.PageProgram", f.info, addr, len(b)); err != nil {
		return
	}

	old := make([]byte, len(b))
	if _, err = f.file.ReadAt(old, addr); err != nil {
		return errors.Wrap(err, "FileFlash.PageProgram: read back")
	}

	for i, v := range b {
		if old[i]&v != v {
			return &ErrProgram{Off: addr + int64(i), Old: old[i], Data: v}
		}
	}
	for i, v := range b {
		old[i] &= v
	}
	_, err = f.file.WriteAt(old, addr)
	return errors.Wrap(err, "FileFlash.PageProgram")
}

// SectorErase implements Flash.
func (f *FileFlash) SectorErase(addr int64) (err error) {
	if err = checkSector("FileFlash.SectorErase", f.info, addr); err != nil {
		return
	}

	return f.fill(addr, addr+int64(f.info.SectorSize))
}

// ChipErase implements Flash.
func (f *FileFlash) ChipErase() (err error) {
	return f.fill(0, f.info.Capacity)
}
