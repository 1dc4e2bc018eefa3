//go:build darwin

package cmd

import (
	"bufio"
	"os"
	"time"

	"github.com/apex/log"

	"github.com/think-cell/minidump/internal/config"
	"github.com/think-cell/minidump/internal/machtask"
	"github.com/think-cell/minidump/pkg/minidump"
)

// writeDump performs the rendezvous over stdin/stdout with the target
// process that spawned this binary, then drives WriteDump.
func writeDump(cfg *config.Config, artifactPath string) error {
	rw := bufio.NewReadWriter(bufio.NewReader(os.Stdin), bufio.NewWriter(os.Stdout))

	if cfg.Rendezvous.Timeout > 0 {
		timer := time.AfterFunc(cfg.Rendezvous.Timeout, func() {
			log.Warn("rendezvous has not completed within the configured timeout")
		})
		defer timer.Stop()
	}

	task, threadID, execPath, bundleVersion, err := machtask.Listen(rw, cfg.Rendezvous.ServiceName)
	if err != nil {
		return err
	}
	defer task.Close()

	session := &minidump.DumpSession{
		Task:           task,
		ThreadID:       threadID,
		ExecutablePath: execPath,
		BundleVersion:  bundleVersion,
		BuildVersion:   BuildVersion,
		BigMode:        cfg.BigMode,
	}
	return session.WriteDump(artifactPath)
}
