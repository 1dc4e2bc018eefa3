//go:build !darwin

package cmd

import (
	"fmt"

	"github.com/think-cell/minidump/internal/config"
)

// writeDump is unimplemented on non-Darwin platforms: the rendezvous
// and capture primitives are Mach-specific (spec.md's Non-goals exclude
// non-Darwin targets).
func writeDump(cfg *config.Config, artifactPath string) error {
	return fmt.Errorf("dumpwriter is only supported on darwin")
}
