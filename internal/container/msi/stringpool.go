// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msi

import (
	"encoding/binary"

	"github.com/crosswin/xwin/internal/xwinerr"
)

// stringPool is the decoded _StringPool/_StringData pair every MSI
// table row's string columns are indexed into. Entry 0 is a reserved
// codepage marker, not a real string; string references in table rows
// are 1-based.
type stringPool struct {
	strings []string
}

// parseStringPool decodes the _StringPool control stream (a run of
// 4-byte records: a uint16 length followed by a uint16 reference
// count) together with the _StringData stream holding the
// concatenated string bytes those lengths index into.
func parseStringPool(pool, data []byte) (*stringPool, error) {
	if len(pool) < 4 {
		return nil, xwinerr.New(xwinerr.KindCorruptArchive, "MSI string pool too small")
	}

	sp := &stringPool{strings: []string{""}} // entry 0 unused
	cursor := 0
	for off := 4; off+4 <= len(pool); off += 4 {
		length := int(binary.LittleEndian.Uint16(pool[off : off+2]))
		if cursor+length > len(data) {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "MSI string pool entry overruns string data")
		}
		sp.strings = append(sp.strings, string(data[cursor:cursor+length]))
		cursor += length
	}
	return sp, nil
}

func (sp *stringPool) get(ref uint32) string {
	if int(ref) >= len(sp.strings) {
		return ""
	}
	return sp.strings[ref]
}
