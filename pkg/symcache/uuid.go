package symcache

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// uuidPath renders a canonical 36-character UUID into its five-level
// index path: the first group is split into two four-character
// segments, then each remaining hyphen-delimited group becomes its own
// segment, all upper-cased, e.g. "C4CB/D2CF/39D5/3185/851E/85C7DD2F8C7F"
// (spec.md §8's UuidPath testable property; §4.6's path construction).
//
// uuid.Parse (github.com/google/uuid) validates and canonicalizes the
// input instead of a hand-rolled length check, per SPEC_FULL.md §11.
func uuidPath(raw string) (string, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", &MalformedUuid{UUID: raw}
	}
	canon := parsed.String() // lowercase, canonical 36-char form

	groups := strings.Split(canon, "-") // [8,4,4,4,12]
	if len(groups) != 5 {
		return "", &MalformedUuid{UUID: raw}
	}

	head := strings.ToUpper(groups[0])
	return filepath.Join(
		strings.ToUpper(head[0:4]),
		strings.ToUpper(head[4:8]),
		strings.ToUpper(groups[1]),
		strings.ToUpper(groups[2]),
		strings.ToUpper(groups[3]),
		strings.ToUpper(groups[4]),
	), nil
}

// canonicalUUID validates raw and returns its canonical 36-character
// lowercase form, which SymbolIndex upper-cases for its filename (spec.md §3's
// SymbolFile, which — unlike UuidFile — is not split into subpaths).
func canonicalUUID(raw string) (string, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", &MalformedUuid{UUID: raw}
	}
	return parsed.String(), nil
}

// UuidIndex resolves UUIDs to binary paths under a filesystem root
// (spec.md §4.6).
type UuidIndex struct {
	Root string
}

// Lookup reads the index file for uuid and returns the relative binary
// path it contains. A missing index file yields *ErrMissing; any other
// I/O error yields *IndexIoError; an invalid uuid yields *MalformedUuid.
func (idx UuidIndex) Lookup(rawUUID string) (string, error) {
	rel, err := uuidPath(rawUUID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(idx.Root, rel)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ErrMissing{UUID: rawUUID}
		}
		return "", &IndexIoError{Cause: err}
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Write creates the index entry for uuid pointing at relativeBinaryPath,
// creating parent directories as needed. Used by internal/uuidb to
// (re)build the index.
func (idx UuidIndex) Write(rawUUID, relativeBinaryPath string) error {
	rel, err := uuidPath(rawUUID)
	if err != nil {
		return err
	}
	path := filepath.Join(idx.Root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IndexIoError{Cause: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return &IndexIoError{Cause: err}
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(relativeBinaryPath + "\n"); err != nil {
		return &IndexIoError{Cause: err}
	}
	return bw.Flush()
}
