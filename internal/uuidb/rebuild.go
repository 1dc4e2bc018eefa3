package uuidb

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	macho "github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"

	"github.com/think-cell/minidump/pkg/symcache"
)

var (
	machMagic64 = [4]byte{0xcf, 0xfa, 0xed, 0xfe}
	fatMagic    = [4]byte{0xca, 0xfe, 0xba, 0xbe}
)

// Rebuild walks each of binaries (paths relative to $HOME/mnt, matching
// original_source/scripts/RebuildUuidDatabase.py's uuidsources.txt
// entries), indexing every Mach-O it finds under root, a uuid index
// root as spec.md §4.6 describes. Non-Mach-O files and .dSYM bundles
// are skipped; the index stores each binary's path relative to
// $HOME/mnt.
func Rebuild(root string, binaries []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.Wrap(err, "resolve home directory")
	}
	mntRoot := filepath.Join(home, "mnt")
	index := symcache.UuidIndex{Root: root}

	for _, dir := range binaries {
		walkRoot := filepath.Join(mntRoot, dir)
		err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasSuffix(d.Name(), ".dSYM") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}

			uuids, err := machoUUIDs(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("failed to inspect binary")
				return nil
			}
			rel, err := filepath.Rel(mntRoot, path)
			if err != nil {
				return err
			}
			for _, u := range uuids {
				if err := index.Write(u, rel); err != nil {
					log.WithError(err).WithField("path", path).Warn("failed to write uuid index entry")
				} else {
					log.WithField("uuid", u).WithField("path", rel).Info("indexed binary")
				}
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "walk %s", walkRoot)
		}
	}
	return nil
}

// machoUUIDs returns the UUIDs of every architecture slice in the
// Mach-O (or fat Mach-O) at path, skipping i386 slices in fat binaries
// as the original script does. Returns nil, nil for a file whose magic
// doesn't match a Mach-O header at all.
func machoUUIDs(path string) ([]string, error) {
	magic, err := readMagic(path)
	if err != nil {
		return nil, err
	}

	switch magic {
	case machMagic64:
		m, err := macho.Open(path)
		if err != nil {
			return nil, err
		}
		defer m.Close()
		if u := m.UUID(); u != nil {
			return []string{u.ID}, nil
		}
		return nil, nil

	case fatMagic:
		fat, err := macho.OpenFat(path)
		if err != nil {
			return nil, err
		}
		defer fat.Close()
		var uuids []string
		for _, arch := range fat.Arches {
			if arch.CPU == types.CPU386 {
				continue
			}
			if u := arch.UUID(); u != nil {
				uuids = append(uuids, u.ID)
			}
		}
		return uuids, nil

	default:
		return nil, nil
	}
}

func readMagic(path string) ([4]byte, error) {
	var magic [4]byte
	f, err := os.Open(path)
	if err != nil {
		return magic, err
	}
	defer f.Close()
	f.Read(magic[:]) // short/empty file leaves magic zeroed, treated as non-Mach-O below
	return magic, nil
}
