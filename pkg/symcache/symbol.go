package symcache

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// SymbolIndex resolves UUIDs to (dSYM-internal path, source-mount
// suffix) pairs (spec.md §4.6).
type SymbolIndex struct {
	Root string
}

// SymbolRecord is the two-line contents of one symbol index file.
type SymbolRecord struct {
	// DSymInternalPath begins with "~" (caller-home-relative), e.g.
	// "~/path_to/program.app.dSYM/Contents/Resources/DWARF/program".
	DSymInternalPath string
	// SourceMount is appended to sourceServerURL to form the mount
	// target for the second line of the symbol file.
	SourceMount string
}

// Lookup reads the symbol file for uuid. A missing file yields
// *ErrMissing; any other I/O error yields *IndexIoError.
func (idx SymbolIndex) Lookup(rawUUID string) (SymbolRecord, error) {
	parsed, err := canonicalUUID(rawUUID)
	if err != nil {
		return SymbolRecord{}, err
	}

	path := filepath.Join(idx.Root, strings.ToUpper(parsed))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SymbolRecord{}, &ErrMissing{UUID: rawUUID}
		}
		return SymbolRecord{}, &IndexIoError{Cause: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return SymbolRecord{}, &IndexIoError{Cause: err}
	}
	if len(lines) < 2 {
		return SymbolRecord{}, &IndexIoError{Cause: os.ErrInvalid}
	}

	rec := SymbolRecord{DSymInternalPath: lines[0], SourceMount: lines[1]}
	if !strings.HasPrefix(rec.DSymInternalPath, "~") {
		return SymbolRecord{}, &IndexIoError{Cause: os.ErrInvalid}
	}
	return rec, nil
}

// Write creates the symbol index entry for uuid. Used by tests and by
// internal/uuidb's supplemented index-population path.
func (idx SymbolIndex) Write(rawUUID string, rec SymbolRecord) error {
	parsed, err := canonicalUUID(rawUUID)
	if err != nil {
		return err
	}
	path := filepath.Join(idx.Root, strings.ToUpper(parsed))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IndexIoError{Cause: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &IndexIoError{Cause: err}
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	bw.WriteString(rec.DSymInternalPath + "\n")
	bw.WriteString(rec.SourceMount + "\n")
	return bw.Flush()
}

// DSymBundleRoot strips the fixed ".../Contents/Resources/DWARF/<leaf>"
// suffix from a dSYM-internal path, returning the bundle root
// (spec.md §4.8 step c: "strip four path components").
func DSymBundleRoot(dsymInternalPath string) string {
	p := dsymInternalPath
	for i := 0; i < 4; i++ {
		p = filepath.Dir(p)
	}
	return p
}
