// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Sector layout arithmetic, derived from the device geometry at mount.

package sffs

import (
	"github.com/iqyx/sffs/flash"
)

// geo translates (sector, item index) coordinates to device addresses.
//
// A sector is laid out as
//
//	+--------+------+------+- ... -+------+-- pad --+--------+- ... -+--------+
//	| header | item | item |       | item |         | data 0 |       | data N |
//	+--------+------+------+- ... -+------+---------+--------+- ... -+--------+
//
// with the data pages occupying the last dataPages*pageSize bytes of the
// sector and the metadata occupying the head. Exactly one item describes
// exactly one data page of the same sector.
type geo struct {
	pageSize   int
	sectorSize int
	sectors    int // sector count
	dataPages  int // data pages (and items) per sector
	metaPages  int // pages occupied by header + item table
	firstData  int // page index of the first data page within a sector
}

func mkGeo(info flash.Info) (g geo, err error) {
	switch {
	case info.PageSize <= 0 || info.PageSize%szItem != 0:
		return g, &ErrINVAL{"unusable page size", int64(info.PageSize)}
	case info.SectorSize <= 0 || info.SectorSize%info.PageSize != 0:
		return g, &ErrINVAL{"unusable sector size", int64(info.SectorSize)}
	case info.Capacity <= 0 || info.Capacity%int64(info.SectorSize) != 0:
		return g, &ErrINVAL{"unusable capacity", info.Capacity}
	}

	g.pageSize = info.PageSize
	g.sectorSize = info.SectorSize
	g.sectors = int(info.Capacity / int64(info.SectorSize))
	g.dataPages = (info.SectorSize - szHeader) / (szItem + info.PageSize)
	g.firstData = info.SectorSize/info.PageSize - g.dataPages
	g.metaPages = (szHeader + g.dataPages*szItem + info.PageSize - 1) / info.PageSize

	switch {
	case g.dataPages < 1:
		return g, &ErrINVAL{"sector too small for a data page", int64(info.SectorSize)}
	case g.dataPages > 0xff:
		// metaItems is a single byte on flash.
		return g, &ErrINVAL{"too many data pages per sector", int64(g.dataPages)}
	case g.sectors < 2:
		return g, &ErrINVAL{"too few sectors", int64(g.sectors)}
	}
	return g, nil
}

func (g *geo) sectorAddr(sector int) int64 {
	return int64(sector) * int64(g.sectorSize)
}

func (g *geo) itemAddr(sector, index int) int64 {
	return g.sectorAddr(sector) + szHeader + int64(index)*szItem
}

func (g *geo) dataAddr(sector, index int) int64 {
	return g.sectorAddr(sector) + int64(g.firstData+index)*int64(g.pageSize)
}

// pages reports the total number of data pages on the device.
func (g *geo) pages() int { return g.sectors * g.dataPages }
