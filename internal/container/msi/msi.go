// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package msi reads Windows Installer databases far enough to recover
// the logical files they install: the File, Directory, Component, and
// Media system tables, joined into a flat list of (path, cabinet,
// byte range) records a caller can pull out of the referenced CAB
// streams.
//
// MSI has two binary layers -- the Compound File Binary container
// (see the cfb subpackage) and the table format stored inside it --
// and this package only implements the second as far as the four
// system tables above; it is not a general relational-database reader.
package msi

import (
	"strings"

	"github.com/crosswin/xwin/internal/container/msi/cfb"
	"github.com/crosswin/xwin/internal/xwinerr"
)

// int16Bias and int32Bias are how MSI stores signed integer columns:
// as unsigned values offset so zero sorts in the middle of the range.
const (
	int16Bias = 0x8000
	int32Bias = 0x80000000
)

// Database is an opened MSI installer database.
type Database struct {
	cfbFile *cfb.File
	pool    *stringPool
}

// Open parses an MSI database out of the raw bytes of an .msi file.
func Open(data []byte) (*Database, error) {
	f, err := cfb.Open(data)
	if err != nil {
		return nil, err
	}

	poolStream, err := f.Stream(TableStreamName("_StringPool"))
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindCorruptArchive, err, "reading MSI string pool")
	}
	dataStream, err := f.Stream(TableStreamName("_StringData"))
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindCorruptArchive, err, "reading MSI string data")
	}
	pool, err := parseStringPool(poolStream, dataStream)
	if err != nil {
		return nil, err
	}

	return &Database{cfbFile: f, pool: pool}, nil
}

// column describes one fixed-width column of a system table, in the
// column-major order MSI stores table rows in: every row's value for
// column 1, then every row's value for column 2, and so on.
type column struct {
	width int  // 2 or 4 bytes
	kind  colKind
}

type colKind int

const (
	colString colKind = iota
	colInt
)

// readColumns decodes a column-major table stream into one []uint32
// per column, each sliced to the table's row count.
func readColumns(raw []byte, cols []column) ([][]uint32, int, error) {
	rowWidth := 0
	for _, c := range cols {
		rowWidth += c.width
	}
	if rowWidth == 0 || len(raw)%rowWidth != 0 {
		return nil, 0, xwinerr.New(xwinerr.KindCorruptArchive, "MSI table stream length %d not a multiple of row width %d", len(raw), rowWidth)
	}
	rows := len(raw) / rowWidth

	out := make([][]uint32, len(cols))
	cursor := 0
	for ci, c := range cols {
		vals := make([]uint32, rows)
		for r := 0; r < rows; r++ {
			off := cursor + r*c.width
			if c.width == 2 {
				vals[r] = uint32(raw[off]) | uint32(raw[off+1])<<8
			} else {
				vals[r] = uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16 | uint32(raw[off+3])<<24
			}
		}
		out[ci] = vals
		cursor += rows * c.width
	}
	return out, rows, nil
}

func (db *Database) readTable(name string, cols []column) ([][]uint32, int, error) {
	raw, err := db.cfbFile.Stream(TableStreamName(name))
	if err != nil {
		return nil, 0, xwinerr.Wrap(xwinerr.KindCorruptArchive, err, "MSI table %s not present", name)
	}
	return readColumns(raw, cols)
}

func (db *Database) str(vals [][]uint32, col, row int) string {
	return db.pool.get(vals[col][row])
}

// DirectoryEntry is one row of the Directory table.
type DirectoryEntry struct {
	Directory       string
	DirectoryParent string
	DefaultDir      string
}

// Directories reads the Directory system table.
func (db *Database) Directories() ([]DirectoryEntry, error) {
	cols := []column{{2, colString}, {2, colString}, {2, colString}}
	vals, rows, err := db.readTable("Directory", cols)
	if err != nil {
		return nil, err
	}
	out := make([]DirectoryEntry, rows)
	for r := 0; r < rows; r++ {
		out[r] = DirectoryEntry{
			Directory:       db.str(vals, 0, r),
			DirectoryParent: db.str(vals, 1, r),
			DefaultDir:      db.str(vals, 2, r),
		}
	}
	return out, nil
}

// ComponentEntry is one row of the Component table.
type ComponentEntry struct {
	Component string
	Directory string
}

// Components reads the Component system table.
func (db *Database) Components() ([]ComponentEntry, error) {
	cols := []column{{2, colString}, {2, colString}, {2, colString}, {2, colInt}, {2, colString}, {2, colString}}
	vals, rows, err := db.readTable("Component", cols)
	if err != nil {
		return nil, err
	}
	out := make([]ComponentEntry, rows)
	for r := 0; r < rows; r++ {
		out[r] = ComponentEntry{
			Component: db.str(vals, 0, r),
			Directory: db.str(vals, 2, r),
		}
	}
	return out, nil
}

// FileEntry is one row of the File table.
type FileEntry struct {
	File      string
	Component string
	FileName  string
	FileSize  uint32
	Sequence  int
}

// Files reads the File system table.
func (db *Database) Files() ([]FileEntry, error) {
	cols := []column{
		{2, colString}, // File
		{2, colString}, // Component_
		{2, colString}, // FileName
		{4, colInt},    // FileSize
		{2, colString}, // Version
		{2, colString}, // Language
		{2, colInt},    // Attributes
		{2, colInt},    // Sequence
	}
	vals, rows, err := db.readTable("File", cols)
	if err != nil {
		return nil, err
	}
	out := make([]FileEntry, rows)
	for r := 0; r < rows; r++ {
		out[r] = FileEntry{
			File:      db.str(vals, 0, r),
			Component: db.str(vals, 1, r),
			FileName:  longName(db.str(vals, 2, r)),
			FileSize:  vals[3][r] - int32Bias,
			Sequence:  int(vals[7][r]) - int16Bias,
		}
	}
	return out, nil
}

// MediaEntry is one row of the Media table.
type MediaEntry struct {
	DiskID       int
	LastSequence int
	Cabinet      string // logical name, '#' prefix stripped
	Embedded     bool   // true if Cabinet names a stream inside this MSI
}

// Media reads the Media system table.
func (db *Database) Media() ([]MediaEntry, error) {
	cols := []column{{2, colInt}, {2, colInt}, {2, colString}, {2, colString}, {2, colString}, {2, colString}}
	vals, rows, err := db.readTable("Media", cols)
	if err != nil {
		return nil, err
	}
	out := make([]MediaEntry, rows)
	for r := 0; r < rows; r++ {
		cabinet := db.str(vals, 3, r)
		embedded := strings.HasPrefix(cabinet, "#")
		out[r] = MediaEntry{
			DiskID:       int(vals[0][r]) - int16Bias,
			LastSequence: int(vals[1][r]) - int16Bias,
			Cabinet:      strings.TrimPrefix(cabinet, "#"),
			Embedded:     embedded,
		}
	}
	return out, nil
}

// CabinetResolver supplies the raw bytes of a named cabinet a Media
// table row references. Today's only implementation reads it as a
// stream embedded in the MSI's own CFB container; a CDN-sibling-fetch
// implementation could satisfy the same interface without callers
// changing.
type CabinetResolver interface {
	Cabinet(entry MediaEntry) ([]byte, error)
}

type embeddedCabinetResolver struct{ db *Database }

// EmbeddedCabinets returns a CabinetResolver that reads cabinets
// embedded as streams inside db's own CFB container.
func (db *Database) EmbeddedCabinets() CabinetResolver {
	return embeddedCabinetResolver{db: db}
}

func (r embeddedCabinetResolver) Cabinet(entry MediaEntry) ([]byte, error) {
	if !entry.Embedded {
		return nil, xwinerr.New(xwinerr.KindMissingCabinet, "cabinet %s is not embedded in this MSI", entry.Cabinet)
	}
	data, err := r.db.cfbFile.Stream(EncodeStreamName("#" + entry.Cabinet))
	if err != nil {
		return nil, xwinerr.Wrap(xwinerr.KindMissingCabinet, err, "cabinet %s", entry.Cabinet)
	}
	return data, nil
}

// longName extracts the long half of an MSI "SHORTNAME|LongName"
// filename/directory-name column value, falling back to the whole
// value when there is no short/long split.
func longName(v string) string {
	if i := strings.IndexByte(v, '|'); i >= 0 {
		return v[i+1:]
	}
	return v
}

// ResolvedFile is a File table row joined through Component and
// Directory back to the logical install path it belongs under.
type ResolvedFile struct {
	Path string
	// CabinetEntryName is the File table's own identifier column,
	// which is what the referenced cabinet's CFFILE entries are
	// actually named by -- not Path or FileName.
	CabinetEntryName string
	Cabinet          string
	CabinetEmbedded  bool
	Sequence         int
	Size             uint32
}

// Resolve joins Files, Components, and Directories into the full
// logical path each file installs to, and tags each with the cabinet
// (if any) its bytes live in, via the Media table's sequence ranges.
// Directory-table self-referencing roots (DirectoryParent == "" or ==
// Directory) stop the walk.
func (db *Database) Resolve() ([]ResolvedFile, error) {
	dirs, err := db.Directories()
	if err != nil {
		return nil, err
	}
	comps, err := db.Components()
	if err != nil {
		return nil, err
	}
	files, err := db.Files()
	if err != nil {
		return nil, err
	}
	media, err := db.Media()
	if err != nil {
		return nil, err
	}

	dirByID := make(map[string]DirectoryEntry, len(dirs))
	for _, d := range dirs {
		dirByID[d.Directory] = d
	}
	compDir := make(map[string]string, len(comps))
	for _, c := range comps {
		compDir[c.Component] = c.Directory
	}

	out := make([]ResolvedFile, 0, len(files))
	for _, f := range files {
		dirID := compDir[f.Component]
		path, err := resolveDirPath(dirByID, dirID)
		if err != nil {
			return nil, err
		}
		mediaRow := mediaForSequence(media, f.Sequence)
		out = append(out, ResolvedFile{
			Path:             joinLogical(path, f.FileName),
			CabinetEntryName: f.File,
			Cabinet:          mediaRow.Cabinet,
			CabinetEmbedded:  mediaRow.Embedded,
			Sequence:         f.Sequence,
			Size:             f.FileSize,
		})
	}
	return out, nil
}

func resolveDirPath(dirs map[string]DirectoryEntry, id string) ([]string, error) {
	var parts []string
	seen := make(map[string]bool)
	for id != "" {
		if seen[id] {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "MSI Directory table cycle at %s", id)
		}
		seen[id] = true

		d, ok := dirs[id]
		if !ok {
			return nil, xwinerr.New(xwinerr.KindCorruptArchive, "MSI Directory %s not found", id)
		}
		name := longName(d.DefaultDir)
		if name != "." && name != "" {
			parts = append([]string{name}, parts...)
		}
		if d.DirectoryParent == "" || d.DirectoryParent == id {
			break
		}
		id = d.DirectoryParent
	}
	return parts, nil
}

func joinLogical(dirs []string, file string) string {
	parts := append(append([]string{}, dirs...), file)
	return strings.Join(parts, "/")
}

func mediaForSequence(media []MediaEntry, seq int) MediaEntry {
	for _, m := range media {
		if seq <= m.LastSequence {
			return m
		}
	}
	return MediaEntry{}
}
