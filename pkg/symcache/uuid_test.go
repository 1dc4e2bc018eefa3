package symcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUuidPathExactValue(t *testing.T) {
	got, err := uuidPath("C4CBD2CF-39D5-3185-851E-85C7DD2F8C7F")
	if err != nil {
		t.Fatalf("uuidPath() error: %v", err)
	}
	want := filepath.Join("C4CB", "D2CF", "39D5", "3185", "851E", "85C7DD2F8C7F")
	if got != want {
		t.Errorf("uuidPath() = %q, want %q", got, want)
	}
}

func TestUuidPathMalformed(t *testing.T) {
	if _, err := uuidPath("not-a-uuid"); err == nil {
		t.Fatal("uuidPath() expected error for malformed input")
	}
	if _, err := uuidPath("C4CBD2CF-39D5-3185-851E-85C7DD2F8C7"); err == nil {
		t.Fatal("uuidPath() expected error for 35-character uuid")
	} else if _, ok := err.(*MalformedUuid); !ok {
		t.Errorf("uuidPath() error type = %T, want *MalformedUuid", err)
	}
}

func TestUuidIndexLookupMissing(t *testing.T) {
	idx := UuidIndex{Root: t.TempDir()}
	_, err := idx.Lookup("C4CBD2CF-39D5-3185-851E-85C7DD2F8C7F")
	if _, ok := err.(*ErrMissing); !ok {
		t.Fatalf("Lookup() error = %v (%T), want *ErrMissing", err, err)
	}
}

func TestUuidIndexWriteThenLookup(t *testing.T) {
	root := t.TempDir()
	idx := UuidIndex{Root: root}
	uuid := "C4CBD2CF-39D5-3185-851E-85C7DD2F8C7F"

	if err := idx.Write(uuid, "Applications/Foo.app/Contents/MacOS/Foo"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := idx.Lookup(uuid)
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if got != "Applications/Foo.app/Contents/MacOS/Foo" {
		t.Errorf("Lookup() = %q, want the written path", got)
	}

	rel, _ := uuidPath(uuid)
	if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
		t.Errorf("index file not created at expected path: %v", err)
	}
}
