package minidump

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
)

// dumpEntryName is the fixed single-entry name every DumpArtifact holds
// (spec.md §3/§6).
const dumpEntryName = "minidump.dmp"

// WriteArtifact packages payload (envelope || core, as produced by
// EncodeEnvelope + CoreWriter) into a single-entry archive at path,
// named per spec.md §3's DumpArtifact.
//
// Grounded on original_source/writer/Minidump.cpp's final ZipFile call;
// uses archive/zip (stdlib) rather than a third-party zip package, the
// same choice the teacher makes for its own ad-hoc zip needs in
// internal/utils/utils.go (see DESIGN.md).
func WriteArtifact(path string, payload []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return &FileFailure{Op: "create artifact", Cause: err}
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entry, err := zw.Create(dumpEntryName)
	if err != nil {
		return &FileFailure{Op: "create zip entry", Cause: err}
	}
	if _, err := entry.Write(payload); err != nil {
		return &FileFailure{Op: "write zip entry", Cause: err}
	}
	if err := zw.Close(); err != nil {
		return &FileFailure{Op: "close zip writer", Cause: err}
	}
	return nil
}

// ReadArtifact extracts the minidump.dmp entry from the archive at path.
func ReadArtifact(path string) ([]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, &FileFailure{Op: "open artifact", Cause: err}
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != dumpEntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, &FileFailure{Op: "open zip entry", Cause: err}
		}
		defer rc.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, rc); err != nil {
			return nil, &FileFailure{Op: "read zip entry", Cause: err}
		}
		return buf.Bytes(), nil
	}
	return nil, &FileFailure{Op: "read artifact", Cause: os.ErrNotExist}
}
