package uuidb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadMagicDistinguishesMachO(t *testing.T) {
	dir := t.TempDir()

	machoFile := filepath.Join(dir, "a.dylib")
	if err := os.WriteFile(machoFile, append(machMagic64[:], 0, 0, 0, 0), 0o644); err != nil {
		t.Fatal(err)
	}
	textFile := filepath.Join(dir, "readme.txt")
	if err := os.WriteFile(textFile, []byte("not a binary"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := readMagic(machoFile)
	if err != nil {
		t.Fatal(err)
	}
	if got != machMagic64 {
		t.Errorf("readMagic(%s) = %v, want mach magic", machoFile, got)
	}

	got, err = readMagic(textFile)
	if err != nil {
		t.Fatal(err)
	}
	if got == machMagic64 || got == fatMagic {
		t.Errorf("readMagic(%s) = %v, want neither mach-o magic", textFile, got)
	}
}

func TestRebuildSkipsNonMachOFilesAndDSYMBundles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	srcDir := filepath.Join(home, "mnt", "fixtures")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "readme.txt"), []byte("not a binary"), 0o644); err != nil {
		t.Fatal(err)
	}

	dsym := filepath.Join(srcDir, "App.app.dSYM", "Contents", "Resources", "DWARF")
	if err := os.MkdirAll(dsym, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dsym, "App"), append(machMagic64[:], 0, 0, 0, 0), 0o644); err != nil {
		t.Fatal(err)
	}

	indexRoot := filepath.Join(home, "uuids")
	if err := Rebuild(indexRoot, []string{"fixtures"}); err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}

	entries, err := os.ReadDir(indexRoot)
	if err == nil && len(entries) != 0 {
		t.Errorf("uuid index root has entries %v, want none: no valid parseable Mach-O was present outside the skipped .dSYM bundle", entries)
	}
}
