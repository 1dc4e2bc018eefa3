package symcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBinaryCacheReturnsExistingTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "already-cached")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := NewBinaryCache(8)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Cache(filepath.Join(dir, "does-not-matter"), target)
	if err != nil {
		t.Fatalf("Cache() error: %v", err)
	}
	if got != target {
		t.Errorf("Cache() = %q, want %q", got, target)
	}
}

func TestBinaryCacheMissingSourceReturnsSentinel(t *testing.T) {
	dir := t.TempDir()
	c, err := NewBinaryCache(8)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Cache(filepath.Join(dir, "missing-source"), filepath.Join(dir, "X", "file"))
	if err != nil {
		t.Fatalf("Cache() error: %v", err)
	}
	if got != NotCached {
		t.Errorf("Cache() = %q, want NotCached sentinel", got)
	}
}
