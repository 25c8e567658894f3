// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cab decodes Microsoft Cabinet archives: the format MSI
// embeds or references for the actual file bytes a File table row
// promises. Only the MSZIP compression method is implemented -- the
// one Visual Studio's CRT/SDK cabinets use -- LZX and Quantum cabinets
// are reported as unsupported rather than guessed at.
package cab

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/crosswin/xwin/internal/xwinerr"
)

const (
	signature = "MSCF"

	flagPrevCabinet    = 0x0001
	flagNextCabinet    = 0x0002
	flagReservePresent = 0x0004

	compressTypeMask = 0x000F
	compressNone     = 0
	compressMSZIP    = 1

	mszipBlockSignature = "CK"
	windowSize          = 32768
)

type folder struct {
	firstDataOffset uint32
	numDataBlocks   uint16
	compressType    uint16
}

type fileEntry struct {
	uncompressedSize uint32
	folderOffset     uint32
	folderIndex      uint16
	name             string
}

// Archive is a parsed cabinet: enough of its structure to pull any one
// named file's decompressed bytes back out.
type Archive struct {
	data     []byte
	folders  []folder
	files    []fileEntry
	cbCFData int
}

// Open parses the CFHEADER/CFFOLDER/CFFILE structures of a cabinet.
// Actual file bytes are decompressed lazily by Extract.
func Open(data []byte) (*Archive, error) {
	if len(data) < 36 || string(data[0:4]) != signature {
		return nil, xwinerr.New(xwinerr.KindCorruptArchive, "not a cabinet file: bad signature")
	}

	coffFiles := binary.LittleEndian.Uint32(data[16:20])
	flags := binary.LittleEndian.Uint16(data[30:32])
	cFolders := binary.LittleEndian.Uint16(data[26:28])
	cFiles := binary.LittleEndian.Uint16(data[28:30])

	off := 36
	if flags&flagPrevCabinet != 0 {
		off = skipCString(data, off)
		off = skipCString(data, off)
	}
	if flags&flagNextCabinet != 0 {
		off = skipCString(data, off)
		off = skipCString(data, off)
	}

	var cbCFFolder, cbCFData int
	if flags&flagReservePresent != 0 {
		if off+4 > len(data) {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "cabinet reserve header truncated")
		}
		cbCFHeader := int(binary.LittleEndian.Uint16(data[off : off+2]))
		cbCFFolder = int(data[off+2])
		cbCFData = int(data[off+3])
		off += 4 + cbCFHeader
	}

	a := &Archive{data: data, cbCFData: cbCFData}

	for i := 0; i < int(cFolders); i++ {
		if off+8 > len(data) {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "cabinet folder table truncated")
		}
		a.folders = append(a.folders, folder{
			firstDataOffset: binary.LittleEndian.Uint32(data[off : off+4]),
			numDataBlocks:   binary.LittleEndian.Uint16(data[off+4 : off+6]),
			compressType:    binary.LittleEndian.Uint16(data[off+6 : off+8]),
		})
		off += 8 + cbCFFolder
	}

	off = int(coffFiles)
	for i := 0; i < int(cFiles); i++ {
		if off+16 > len(data) {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "cabinet file table truncated")
		}
		name, next := readCString(data, off+16)
		a.files = append(a.files, fileEntry{
			uncompressedSize: binary.LittleEndian.Uint32(data[off : off+4]),
			folderOffset:     binary.LittleEndian.Uint32(data[off+4 : off+8]),
			folderIndex:      binary.LittleEndian.Uint16(data[off+8 : off+10]),
			name:             name,
		})
		off = next
	}

	return a, nil
}

func skipCString(data []byte, off int) int {
	_, next := readCString(data, off)
	return next
}

func readCString(data []byte, off int) (string, int) {
	end := off
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[off:end]), end + 1
}

// Names lists every file entry's name, in on-disk CFFILE order.
func (a *Archive) Names() []string {
	names := make([]string, len(a.files))
	for i, f := range a.files {
		names[i] = f.name
	}
	return names
}

// Extract returns the decompressed bytes of the named file.
func (a *Archive) Extract(name string) ([]byte, error) {
	for _, f := range a.files {
		if f.name != name {
			continue
		}
		if int(f.folderIndex) >= len(a.folders) {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "cabinet file %s references folder %d out of range", name, f.folderIndex)
		}
		folderData, err := a.decodeFolder(a.folders[f.folderIndex])
		if err != nil {
			return nil, err
		}
		start := int(f.folderOffset)
		end := start + int(f.uncompressedSize)
		if end > len(folderData) {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "cabinet file %s extends past its folder's decompressed data", name)
		}
		return folderData[start:end], nil
	}
	return nil, xwinerr.New(xwinerr.KindFilesystem, "cabinet entry %q not found", name)
}

// decodeFolder walks every CFDATA block in fl's chain, decompressing
// each with klauspost/compress/flate. MSZIP blocks other than the
// first in a folder share the previous block's 32KB sliding window as
// a preset dictionary, matching the format's incremental-dictionary
// design; decodeFolder is not memoized, so repeated Extract calls
// against the same folder redo this work.
func (a *Archive) decodeFolder(fl folder) ([]byte, error) {
	var out []byte
	off := int(fl.firstDataOffset)
	var dict []byte

	for i := uint16(0); i < fl.numDataBlocks; i++ {
		if off+8 > len(a.data) {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "cabinet data block truncated")
		}
		cbData := int(binary.LittleEndian.Uint16(a.data[off+4 : off+6]))
		cbUncomp := int(binary.LittleEndian.Uint16(a.data[off+6 : off+8]))
		payloadStart := off + 8 + a.cbCFData
		payload := a.data[payloadStart : payloadStart+cbData]
		off = payloadStart + cbData

		switch fl.compressType & compressTypeMask {
		case compressNone:
			out = append(out, payload...)
			dict = lastWindow(out)
		case compressMSZIP:
			if len(payload) < 2 || string(payload[0:2]) != mszipBlockSignature {
				return nil, xwinerr.New(xwinerr.KindCorruptArchive, "MSZIP block missing CK signature")
			}
			var fr io.ReadCloser
			if len(dict) > 0 {
				fr = flate.NewReaderDict(bytes.NewReader(payload[2:]), dict)
			} else {
				fr = flate.NewReader(bytes.NewReader(payload[2:]))
			}
			block := make([]byte, cbUncomp)
			if _, err := io.ReadFull(fr, block); err != nil {
				fr.Close()
				return nil, xwinerr.Wrap(xwinerr.KindCorruptArchive, err, "decompressing MSZIP cabinet block")
			}
			fr.Close()
			out = append(out, block...)
			dict = lastWindow(out)
		default:
			return nil, xwinerr.New(xwinerr.KindUnsupportedArchive, "cabinet compression type %d not supported (only MSZIP)", fl.compressType&compressTypeMask)
		}
	}
	return out, nil
}

func lastWindow(b []byte) []byte {
	if len(b) <= windowSize {
		return b
	}
	return b[len(b)-windowSize:]
}
