// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// A power loss injecting Flash wrapper.

package flash

var _ Flash = &CutFlash{} // Ensure CutFlash is a Flash.

// CutFlash wraps a Flash and simulates power loss. While armed, each
// mutating operation (PageProgram, SectorErase, ChipErase) consumes one
// unit of the budget given to Arm; the operation which finds the budget
// exhausted fails with *ErrPowerCut and does not touch the device, as do
// all later mutations until Disarm. Reads always pass through, so a client
// can be "rebooted" against the surviving content simply by calling Disarm
// and mounting again.
//
// CutFlash additionally counts mutations, which makes it usable for wear
// accounting even when it is never armed.
type CutFlash struct {
	dev      Flash
	armed    bool
	budget   int
	programs int64
	erases   int64
}

// NewCutFlash returns a new CutFlash wrapping dev, not armed.
func NewCutFlash(dev Flash) *CutFlash { return &CutFlash{dev: dev} }

// Arm makes the n+1-th mutating operation from now fail. Arm(0) cuts the
// power immediately.
func (f *CutFlash) Arm(n int) {
	f.armed = true
	f.budget = n
}

// Disarm restores normal operation.
func (f *CutFlash) Disarm() { f.armed = false }

// Programs returns the number of page programs which reached the device.
func (f *CutFlash) Programs() int64 { return f.programs }

// Erases returns the number of sector erases which reached the device. A
// ChipErase counts as one erase per sector.
func (f *CutFlash) Erases() int64 { return f.erases }

func (f *CutFlash) cut(op string) error {
	if !f.armed {
		return nil
	}

	if f.budget == 0 {
		return &ErrPowerCut{Op: op}
	}

	f.budget--
	return nil
}

// Close implements Flash.
func (f *CutFlash) Close() error { return f.dev.Close() }

// Info implements Flash.
func (f *CutFlash) Info() Info { return f.dev.Info() }

// PageRead implements Flash.
func (f *CutFlash) PageRead(addr int64, b []byte) error { return f.dev.PageRead(addr, b) }

// PageProgram implements Flash.
func (f *CutFlash) PageProgram(addr int64, b []byte) (err error) {
	if err = f.cut("PageProgram"); err != nil {
		return
	}

	f.programs++
	return f.dev.PageProgram(addr, b)
}

// SectorErase implements Flash.
func (f *CutFlash) SectorErase(addr int64) (err error) {
	if err = f.cut("SectorErase"); err != nil {
		return
	}

	f.erases++
	return f.dev.SectorErase(addr)
}

// ChipErase implements Flash.
func (f *CutFlash) ChipErase() (err error) {
	if err = f.cut("ChipErase"); err != nil {
		return
	}

	f.erases += f.dev.Info().Capacity / int64(f.dev.Info().SectorSize)
	return f.dev.ChipErase()
}
