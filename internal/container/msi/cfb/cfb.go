// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cfb reads OLE Compound File Binary containers: the storage
// format Windows Installer databases are built on. It exposes only
// what an MSI reader needs -- opening a named stream's bytes -- not a
// general-purpose CFB filesystem.
package cfb

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/crosswin/xwin/internal/xwinerr"
)

const (
	headerSize    = 512
	dirEntrySize  = 128
	sigFATSect    = 0xFFFFFFFD
	sigDIFATSect  = 0xFFFFFFFC
	sigEndOfChain = 0xFFFFFFFE
	sigFreeSect   = 0xFFFFFFFF
	sigNoStream   = 0xFFFFFFFF
)

var signature = [8]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

type dirEntry struct {
	name          string
	objectType    byte
	startSector   uint32
	streamSize    uint64
}

// File is an opened Compound File Binary container.
type File struct {
	data          []byte
	sectorSize    int
	miniSize      int
	miniCutoff    uint32
	fat           []uint32
	miniFAT       []uint32
	entries       []dirEntry
	rootStart     uint32
	rootStreamLen uint64
}

// Open parses data as a Compound File Binary container. Only major
// version 3 (512-byte sectors) is supported -- the format MSI
// installer databases in the wild almost universally use.
func Open(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, xwinerr.New(xwinerr.KindCorruptArchive, "CFB file too small")
	}
	if [8]byte(data[:8]) != signature {
		return nil, xwinerr.New(xwinerr.KindCorruptArchive, "not a CFB file: bad signature")
	}

	major := binary.LittleEndian.Uint16(data[26:28])
	if major != 3 {
		return nil, xwinerr.New(xwinerr.KindUnsupportedArchive, "CFB major version %d not supported (only 512-byte-sector v3)", major)
	}

	sectorShift := binary.LittleEndian.Uint16(data[30:32])
	miniSectorShift := binary.LittleEndian.Uint16(data[32:34])
	numFATSectors := binary.LittleEndian.Uint32(data[44:48])
	firstDirSector := binary.LittleEndian.Uint32(data[48:52])
	miniCutoff := binary.LittleEndian.Uint32(data[56:60])
	firstMiniFATSector := binary.LittleEndian.Uint32(data[60:64])
	numMiniFATSectors := binary.LittleEndian.Uint32(data[64:68])
	firstDIFATSector := binary.LittleEndian.Uint32(data[68:72])
	numDIFATSectors := binary.LittleEndian.Uint32(data[72:76])

	f := &File{
		data:       data,
		sectorSize: 1 << sectorShift,
		miniSize:   1 << miniSectorShift,
		miniCutoff: miniCutoff,
	}

	// Assemble the list of FAT sector locations: the first 109 from
	// the header DIFAT array, then any overflow DIFAT sectors.
	var fatSectorLocs []uint32
	for i := 0; i < 109 && uint32(len(fatSectorLocs)) < numFATSectors; i++ {
		loc := binary.LittleEndian.Uint32(data[76+i*4 : 80+i*4])
		if loc == sigFreeSect {
			break
		}
		fatSectorLocs = append(fatSectorLocs, loc)
	}
	difatSector := firstDIFATSector
	for i := uint32(0); i < numDIFATSectors && difatSector != sigEndOfChain && difatSector != sigFreeSect; i++ {
		sec, err := f.sectorBytes(difatSector)
		if err != nil {
			return nil, err
		}
		entriesPerSector := f.sectorSize/4 - 1
		for j := 0; j < entriesPerSector; j++ {
			loc := binary.LittleEndian.Uint32(sec[j*4 : j*4+4])
			if loc == sigFreeSect {
				break
			}
			fatSectorLocs = append(fatSectorLocs, loc)
		}
		difatSector = binary.LittleEndian.Uint32(sec[entriesPerSector*4:])
	}

	fat, err := f.readFATTable(fatSectorLocs)
	if err != nil {
		return nil, err
	}
	f.fat = fat

	// Directory stream.
	dirData, err := f.readChain(firstDirSector, f.fat, 0, false)
	if err != nil {
		return nil, err
	}
	entries := parseDirEntries(dirData)
	f.entries = entries
	if len(entries) == 0 || entries[0].objectType != 5 {
		return nil, xwinerr.New(xwinerr.KindCorruptArchive, "CFB directory missing root entry")
	}
	f.rootStart = entries[0].startSector
	f.rootStreamLen = entries[0].streamSize

	// MiniFAT (only needed lazily, but small enough to read eagerly).
	if numMiniFATSectors > 0 {
		miniFATData, err := f.readChain(firstMiniFATSector, f.fat, 0, false)
		if err != nil {
			return nil, err
		}
		f.miniFAT = make([]uint32, len(miniFATData)/4)
		for i := range f.miniFAT {
			f.miniFAT[i] = binary.LittleEndian.Uint32(miniFATData[i*4 : i*4+4])
		}
	}

	return f, nil
}

func (f *File) sectorOffset(sector uint32) int {
	return headerSize + int(sector)*f.sectorSize
}

func (f *File) sectorBytes(sector uint32) ([]byte, error) {
	off := f.sectorOffset(sector)
	if off < 0 || off+f.sectorSize > len(f.data) {
		return nil, xwinerr.New(xwinerr.KindCorruptArchive, "CFB sector %d out of range", sector)
	}
	return f.data[off : off+f.sectorSize], nil
}

func (f *File) readFATTable(fatSectorLocs []uint32) ([]uint32, error) {
	var fat []uint32
	for _, loc := range fatSectorLocs {
		sec, err := f.sectorBytes(loc)
		if err != nil {
			return nil, err
		}
		for i := 0; i+4 <= len(sec); i += 4 {
			fat = append(fat, binary.LittleEndian.Uint32(sec[i:i+4]))
		}
	}
	return fat, nil
}

// readChain follows a FAT (or MiniFAT) sector chain starting at
// startSector and concatenates the sector contents. If size is
// nonzero the result is truncated to that many bytes (streamSize can
// be smaller than the sector-rounded chain length).
func (f *File) readChain(startSector uint32, fat []uint32, size uint64, mini bool) ([]byte, error) {
	var out []byte
	sector := startSector
	seen := make(map[uint32]bool)
	for sector != sigEndOfChain && sector != sigFreeSect {
		if seen[sector] {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "CFB sector chain cycle detected")
		}
		seen[sector] = true

		var chunk []byte
		var err error
		if mini {
			chunk, err = f.miniSectorBytes(sector)
		} else {
			chunk, err = f.sectorBytes(sector)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)

		if int(sector) >= len(fat) {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "CFB sector chain references sector %d beyond FAT", sector)
		}
		sector = fat[sector]
	}
	if size > 0 && uint64(len(out)) > size {
		out = out[:size]
	}
	return out, nil
}

func (f *File) miniSectorBytes(sector uint32) ([]byte, error) {
	// The mini stream lives inside the root entry's regular-FAT data.
	rootData, err := f.readChain(f.rootStart, f.fat, f.rootStreamLen, false)
	if err != nil {
		return nil, err
	}
	off := int(sector) * f.miniSize
	if off+f.miniSize > len(rootData) {
		return nil, xwinerr.New(xwinerr.KindCorruptArchive, "CFB mini sector %d out of range", sector)
	}
	return rootData[off : off+f.miniSize], nil
}

func parseDirEntries(data []byte) []dirEntry {
	var entries []dirEntry
	for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
		e := data[off : off+dirEntrySize]
		nameLen := int(binary.LittleEndian.Uint16(e[64:66]))
		objType := e[66]
		if objType == 0 {
			continue // unused slot
		}
		var name string
		if nameLen >= 2 {
			units := make([]uint16, 0, (nameLen-2)/2)
			for i := 0; i < nameLen-2; i += 2 {
				units = append(units, binary.LittleEndian.Uint16(e[i:i+2]))
			}
			name = string(utf16.Decode(units))
		}
		entries = append(entries, dirEntry{
			name:        name,
			objectType:  objType,
			startSector: binary.LittleEndian.Uint32(e[116:120]),
			streamSize:  binary.LittleEndian.Uint64(e[120:128]),
		})
	}
	return entries
}

// Stream returns the decoded bytes of the stream entry named name
// (exact match against the raw, possibly MSI-encoded, CFB entry name).
func (f *File) Stream(name string) ([]byte, error) {
	for _, e := range f.entries {
		if e.objectType != 2 { // not a stream
			continue
		}
		if e.name != name {
			continue
		}
		if e.streamSize < uint64(f.miniCutoff) {
			return f.readChain(e.startSector, f.miniFAT, e.streamSize, true)
		}
		return f.readChain(e.startSector, f.fat, e.streamSize, false)
	}
	return nil, xwinerr.New(xwinerr.KindFilesystem, "CFB stream %q not found", name)
}

// StreamNames lists every stream entry name in the container, in
// directory-sector order.
func (f *File) StreamNames() []string {
	var names []string
	for _, e := range f.entries {
		if e.objectType == 2 {
			names = append(names, e.name)
		}
	}
	return names
}
