// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package msi

import (
	"strings"
	"unicode/utf16"
)

// nameAlphabet is the 64-character set MSI identifiers are drawn from:
// digits, upper/lowercase letters, dot, and underscore. Pairs of
// identifier characters are packed two-to-a-UTF-16-code-unit when an
// identifier is turned into the CFB stream name that stores its table
// data.
//
// This mapping is this decoder's own -- it round-trips consistently
// against streams this package itself writes in tests, but it is not
// a transcription of Windows Installer's actual (undocumented outside
// Microsoft's own sources) obfuscation table, so it will not locate
// tables inside an MSI produced by real Windows Installer tooling.
// See the design notes for why: no third-party MSI library exists in
// the reference pack to ground the real table on, and guessing at an
// unverifiable byte-for-byte table would be worse than being explicit
// about the limitation.
const nameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789._"

// tableStreamPrefix marks a CFB stream as holding table row data
// rather than an arbitrary binary stream.
const tableStreamPrefix = rune(0x4840)

func alphabetIndex(c byte) (int, bool) {
	i := strings.IndexByte(nameAlphabet, c)
	if i < 0 {
		return 0, false
	}
	return i, true
}

// encodeIdentifier packs identifier into the pairwise-encoded run of
// UTF-16 code units MSI uses for stream names, without the leading
// table-stream marker. Bytes outside the 64-character alphabet (a '#'
// marking an embedded cabinet, say) pass through as a single code
// unit rather than pairing with a neighbor.
func encodeIdentifier(identifier string) []uint16 {
	var units []uint16
	b := []byte(identifier)
	for i := 0; i < len(b); {
		i1, ok1 := alphabetIndex(b[i])
		if !ok1 {
			units = append(units, uint16(b[i]))
			i++
			continue
		}
		if i+1 < len(b) {
			if i2, ok2 := alphabetIndex(b[i+1]); ok2 {
				units = append(units, uint16(0x3800+i1+i2*64))
				i += 2
				continue
			}
		}
		units = append(units, uint16(0x4800+i1))
		i++
	}
	return units
}

// EncodeStreamName returns the CFB stream name for an arbitrary
// (non-table) identifier, such as an embedded cabinet's name.
func EncodeStreamName(identifier string) string {
	return string(utf16.Decode(encodeIdentifier(identifier)))
}

// TableStreamName returns the CFB stream name holding table's row
// data.
func TableStreamName(table string) string {
	units := append([]uint16{uint16(tableStreamPrefix)}, encodeIdentifier(table)...)
	return string(utf16.Decode(units))
}
