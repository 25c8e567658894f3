// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cab

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/flate"
)

// buildFixture assembles a minimal single-folder, single-file,
// single-data-block cabinet compressing content with MSZIP (raw
// deflate behind a 2-byte "CK" signature, no per-block reserve data).
func buildFixture(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("flate Write: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("flate Close: %v", err)
	}

	block := append([]byte(mszipBlockSignature), compressed.Bytes()...)

	const headerLen = 36
	const folderLen = 8
	const fileHeaderLen = 16

	coffFiles := headerLen + folderLen
	nameBytes := append([]byte(name), 0)
	dataBlockOffset := coffFiles + fileHeaderLen + len(nameBytes)

	buf := make([]byte, dataBlockOffset+8+len(block))
	copy(buf[0:4], signature)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(buf))) // cbCabinet
	binary.LittleEndian.PutUint32(buf[16:20], uint32(coffFiles))
	buf[24] = 3 // versionMinor
	buf[25] = 1 // versionMajor
	binary.LittleEndian.PutUint16(buf[26:28], 1) // cFolders
	binary.LittleEndian.PutUint16(buf[28:30], 1) // cFiles
	binary.LittleEndian.PutUint16(buf[30:32], 0) // flags
	binary.LittleEndian.PutUint16(buf[32:34], 0) // setID
	binary.LittleEndian.PutUint16(buf[34:36], 0) // iCabinet

	folderOff := headerLen
	binary.LittleEndian.PutUint32(buf[folderOff:folderOff+4], uint32(dataBlockOffset))
	binary.LittleEndian.PutUint16(buf[folderOff+4:folderOff+6], 1) // cCFData
	binary.LittleEndian.PutUint16(buf[folderOff+6:folderOff+8], compressMSZIP)

	fileOff := coffFiles
	binary.LittleEndian.PutUint32(buf[fileOff:fileOff+4], uint32(len(content)))
	binary.LittleEndian.PutUint32(buf[fileOff+4:fileOff+8], 0) // uoffFolderStart
	binary.LittleEndian.PutUint16(buf[fileOff+8:fileOff+10], 0) // iFolder
	binary.LittleEndian.PutUint16(buf[fileOff+10:fileOff+12], 0)
	binary.LittleEndian.PutUint16(buf[fileOff+12:fileOff+14], 0)
	binary.LittleEndian.PutUint16(buf[fileOff+14:fileOff+16], 0)
	copy(buf[fileOff+16:], nameBytes)

	binary.LittleEndian.PutUint32(buf[dataBlockOffset:dataBlockOffset+4], 0) // csum, unchecked
	binary.LittleEndian.PutUint16(buf[dataBlockOffset+4:dataBlockOffset+6], uint16(len(block)))
	binary.LittleEndian.PutUint16(buf[dataBlockOffset+6:dataBlockOffset+8], uint16(len(content)))
	copy(buf[dataBlockOffset+8:], block)

	return buf
}

func TestOpenAndExtractMSZIP(t *testing.T) {
	content := bytes.Repeat([]byte("visual studio crt headers\n"), 50)
	data := buildFixture(t, "vcruntime.h", content)

	a, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	names := a.Names()
	if len(names) != 1 || names[0] != "vcruntime.h" {
		t.Fatalf("Names = %v, want [vcruntime.h]", names)
	}

	got, err := a.Extract("vcruntime.h")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("Extract content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

func TestExtractMissingFile(t *testing.T) {
	data := buildFixture(t, "present.txt", []byte("x"))
	a, err := Open(data)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := a.Extract("missing.txt"); err == nil {
		t.Fatal("expected an error extracting a nonexistent entry")
	}
}

func TestOpenRejectsBadSignature(t *testing.T) {
	junk := make([]byte, 64)
	if _, err := Open(junk); err == nil {
		t.Fatal("expected an error for a bad signature")
	}
}
