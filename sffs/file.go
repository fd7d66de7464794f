// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// File handles and the by-id file operations.

package sffs

import (
	"fmt"
	"io"
)

// MaxFileID is the highest file id a client may use; 0 names the master
// page and 0xFFFF an unallocated item.
const MaxFileID = 0xfffe

// A Mode selects what an open File may do and where it starts.
type Mode int

const (
	// ModeRead opens an existing file for reading at position 0.
	ModeRead Mode = iota

	// ModeOverwrite opens or creates a file for reading and writing at
	// position 0. Existing content is kept; blocks are replaced as they
	// are written over.
	ModeOverwrite

	// ModeAppend opens or creates a file for reading and writing at the
	// end of the current content.
	ModeAppend
)

// A File is an open handle. It holds only the file id, a byte position and
// the mode; every access resolves the id and block to a physical page
// anew, so handles stay valid across rewrites which relocate pages.
// Multiple handles of one FS may be open at a time, sharing its state.
type File struct {
	fs     *FS
	id     uint16
	pos    int64
	mode   Mode
	closed bool
}

// OpenID opens the file named by id in the given mode. With ModeRead the
// file must exist; the writable modes create it on the first Write.
func (fs *FS) OpenID(id uint16, mode Mode) (f *File, err error) {
	if id < 1 || id > MaxFileID {
		return nil, &ErrINVAL{"OpenID: file id", int64(id)}
	}

	f = &File{fs: fs, id: id, mode: mode}
	switch mode {
	case ModeRead:
		_, ok, err := fs.extent(id)
		if err != nil {
			return nil, err
		}

		if !ok {
			return nil, &ErrNotFound{"OpenID", int64(id)}
		}
	case ModeOverwrite:
		// Position 0, content kept.
	case ModeAppend:
		size, _, err := fs.extent(id)
		if err != nil {
			return nil, err
		}

		f.pos = size
	default:
		return nil, &ErrINVAL{"OpenID: mode", int64(mode)}
	}
	return f, nil
}

// Close invalidates the handle. Close is idempotent.
func (f *File) Close() (err error) {
	f.closed = true
	return
}

// ID returns the file id of the handle.
func (f *File) ID() uint16 { return f.id }

func (f *File) ok(src string, write bool) error {
	if f.closed {
		return &ErrPERM{src + ": closed file"}
	}

	if write && f.mode == ModeRead {
		return &ErrPERM{src + ": read-only file"}
	}

	return nil
}

// Read implements io.Reader. At the end of the file Read returns the
// remaining bytes together with io.EOF; later calls return 0, io.EOF.
func (f *File) Read(b []byte) (n int, err error) {
	if err = f.ok("Read", false); err != nil {
		return
	}

	n, err = f.fs.readAt(f.id, b, f.pos)
	f.pos += int64(n)
	return
}

// ReadAt implements io.ReaderAt, except that at the end of the file it
// returns io.EOF like Read does. The handle position is not used or
// changed.
func (f *File) ReadAt(b []byte, pos int64) (n int, err error) {
	if err = f.ok("ReadAt", false); err != nil {
		return
	}

	return f.fs.readAt(f.id, b, pos)
}

// Write implements io.Writer. Writing past the current end of the file
// leaves a hole which reads as zeros.
func (f *File) Write(b []byte) (n int, err error) {
	if err = f.ok("Write", true); err != nil {
		return
	}

	n, err = f.fs.writeAt(f.id, b, f.pos)
	f.pos += int64(n)
	return
}

// WriteAt implements io.WriterAt. The handle position is not used or
// changed.
func (f *File) WriteAt(b []byte, pos int64) (n int, err error) {
	if err = f.ok("WriteAt", true); err != nil {
		return
	}

	return f.fs.writeAt(f.id, b, pos)
}

// Seek implements io.Seeker. Seeking past the end of the file is allowed;
// a later Write creates a hole.
func (f *File) Seek(offset int64, whence int) (pos int64, err error) {
	if err = f.ok("Seek", false); err != nil {
		return
	}

	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		size, _, err := f.fs.extent(f.id)
		if err != nil {
			return 0, err
		}

		pos = size + offset
	default:
		return 0, &ErrINVAL{"Seek: whence", int64(whence)}
	}
	if pos < 0 {
		return 0, &ErrINVAL{"Seek: position", pos}
	}

	f.pos = pos
	return
}

// FileSize returns the byte length of the file named by id: the offset of
// its highest live block plus the bytes recorded for it.
func (fs *FS) FileSize(id uint16) (size int64, err error) {
	if id < 1 || id > MaxFileID {
		return 0, &ErrINVAL{"FileSize: file id", int64(id)}
	}

	size, ok, err := fs.extent(id)
	if err != nil {
		return 0, err
	}

	if !ok {
		return 0, &ErrNotFound{"FileSize", int64(id)}
	}

	return size, nil
}

// Remove deletes the file named by id by demoting every live item it owns
// to OLD; the pages are recovered by reclamation.
func (fs *FS) Remove(id uint16) (err error) {
	if id < 1 || id > MaxFileID {
		return &ErrINVAL{"Remove: file id", int64(id)}
	}

	removed, err := fs.removeID(id)
	if err != nil {
		return
	}

	if !removed {
		return &ErrNotFound{"Remove", int64(id)}
	}

	return
}

func (fs *FS) removeID(id uint16) (removed bool, err error) {
	var items []item
	for s := 0; s < fs.g.sectors; s++ {
		if fs.sects[s] == sectErased {
			continue
		}

		if items, err = fs.readItems(s, items); err != nil {
			return
		}

		touched := false
		for i := range items {
			if items[i].fileID != id || !items[i].live() {
				continue
			}

			if err = fs.dev.PageProgram(fs.g.itemAddr(s, i)+4, []byte{pageOld}); err != nil {
				return
			}

			removed, touched = true, true
		}
		if touched {
			if err = fs.updateHeader(s); err != nil {
				return
			}
		}
	}
	return
}

// String implements fmt.Stringer for debugging convenience.
func (f *File) String() string {
	return fmt.Sprintf("file %d @%d", f.id, f.pos)
}
