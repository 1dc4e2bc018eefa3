package uuidb

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/think-cell/minidump/internal/utils"
)

// systemSearchDirs are the directories original_source/scripts/
// CopyMacOSSystemLibraries.py walks on the machine being mirrored.
var systemSearchDirs = []string{
	"/System/Library/Frameworks",
	"/System/Library/PrivateFrameworks",
	"/usr/lib",
}

// MirrorSystemLibraries copies every Mach-O binary under the fixed
// system search directories into targetDir, preserving each binary's
// path relative to "/". Symlinks are skipped so only real binaries are
// copied, matching the original script.
func MirrorSystemLibraries(targetDir string) error {
	for _, dir := range systemSearchDirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
				return nil
			}

			magic, err := readMagic(path)
			if err != nil {
				return nil
			}
			if magic != machMagic64 && magic != fatMagic {
				return nil
			}

			rel, err := filepath.Rel("/", path)
			if err != nil {
				return err
			}
			dst := filepath.Join(targetDir, rel)
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			log.WithField("path", path).Info("mirroring system library")
			return utils.CopyTree(path, dst)
		})
		if err != nil {
			return errors.Wrapf(err, "mirror %s", dir)
		}
	}
	return nil
}
