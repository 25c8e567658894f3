// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cfb

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

// buildFixture constructs a minimal, valid major-version-3 CFB
// container with a single stream, entirely avoiding the mini stream
// (miniStreamCutoffSize is set to 0) so the fixture doesn't also need
// a synthetic MiniFAT chain.
func buildFixture(t *testing.T, streamName string, content []byte) []byte {
	t.Helper()

	const sectorSize = 512
	buf := make([]byte, 512+sectorSize*3) // header + FAT + dir + data

	copy(buf[0:8], signature[:])
	binary.LittleEndian.PutUint16(buf[26:28], 3) // major version
	binary.LittleEndian.PutUint16(buf[30:32], 9) // sector shift -> 512
	binary.LittleEndian.PutUint16(buf[32:34], 6) // mini sector shift -> 64
	binary.LittleEndian.PutUint32(buf[44:48], 1) // numFATSectors
	binary.LittleEndian.PutUint32(buf[48:52], 1) // firstDirSector
	binary.LittleEndian.PutUint32(buf[56:60], 0) // miniStreamCutoffSize = 0
	binary.LittleEndian.PutUint32(buf[60:64], sigEndOfChain)
	binary.LittleEndian.PutUint32(buf[64:68], 0) // numMiniFATSectors
	binary.LittleEndian.PutUint32(buf[68:72], sigEndOfChain)
	binary.LittleEndian.PutUint32(buf[72:76], 0) // numDIFATSectors
	binary.LittleEndian.PutUint32(buf[76:80], 0) // DIFAT[0] = sector 0 (the FAT sector)
	for i := 1; i < 109; i++ {
		binary.LittleEndian.PutUint32(buf[76+i*4:80+i*4], sigFreeSect)
	}

	// Sector 0: FAT table. Sector 0 is the FAT sector itself, sector 1
	// is the directory (single sector, end of chain), sector 2 is the
	// data sector (single sector, end of chain).
	fatSector := buf[512 : 512+sectorSize]
	binary.LittleEndian.PutUint32(fatSector[0:4], sigFATSect)
	binary.LittleEndian.PutUint32(fatSector[4:8], sigEndOfChain)
	binary.LittleEndian.PutUint32(fatSector[8:12], sigEndOfChain)

	// Sector 1: directory, entry 0 = root, entry 1 = the stream.
	dirSector := buf[512+sectorSize : 512+2*sectorSize]
	writeDirEntry(dirSector[0:128], "Root Entry", 5, sigEndOfChain, 0)
	writeDirEntry(dirSector[128:256], streamName, 2, 2, uint64(len(content)))

	// Sector 2: stream content.
	dataSector := buf[512+2*sectorSize : 512+3*sectorSize]
	copy(dataSector, content)

	return buf
}

func writeDirEntry(e []byte, name string, objType byte, startSector uint32, size uint64) {
	units := utf16.Encode([]rune(name))
	units = append(units, 0)
	for i, u := range units {
		binary.LittleEndian.PutUint16(e[i*2:i*2+2], u)
	}
	binary.LittleEndian.PutUint16(e[64:66], uint16(len(units)*2))
	e[66] = objType
	binary.LittleEndian.PutUint32(e[116:120], startSector)
	binary.LittleEndian.PutUint64(e[120:128], size)
}

func TestOpenAndReadStream(t *testing.T) {
	content := []byte("hello msi")
	data := buildFixture(t, "TestStream", content)

	f, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got, err := f.Stream("TestStream")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Stream content = %q, want %q", got, content)
	}
}

func TestStreamNotFound(t *testing.T) {
	data := buildFixture(t, "TestStream", []byte("x"))
	f, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.Stream("DoesNotExist"); err == nil {
		t.Fatal("expected an error for a missing stream")
	}
}

func TestOpenRejectsBadSignature(t *testing.T) {
	junk := make([]byte, 512)
	if _, err := Open(junk); err == nil {
		t.Fatal("expected an error for a bad signature")
	}
}

func TestStreamNames(t *testing.T) {
	data := buildFixture(t, "TestStream", []byte("x"))
	f, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	names := f.StreamNames()
	if len(names) != 1 || names[0] != "TestStream" {
		t.Errorf("StreamNames = %v, want [TestStream]", names)
	}
}
