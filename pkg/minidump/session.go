//go:build darwin

package minidump

import (
	"bytes"
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/think-cell/minidump/internal/machtask"
)

// DumpSession drives a single WriteDump for one target task, built from
// the task port and identity that Rendezvous transferred (spec.md §2's
// "writer-side constructs a DumpSession from that transfer").
type DumpSession struct {
	Task           *machtask.TaskHandle
	ThreadID       uint64
	ExecutablePath string
	BundleVersion  string
	BuildVersion   string
	BigMode        bool
}

// taskMemorySegmentSource adapts machtask.TaskMemory to CoreWriter's
// SegmentSource, the boundary between the cgo-backed capture primitives
// and the portable Mach-O layout code.
type taskMemorySegmentSource struct {
	mem *machtask.TaskMemory
}

func (s taskMemorySegmentSource) ReadSegment(vmaddr, vmsize uint64) ([]byte, error) {
	data, release, err := s.mem.Remap(vmaddr, vmsize)
	if err != nil {
		return nil, err
	}
	defer release()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteDump performs the full writer pipeline spec.md §2 names:
// ThreadSampler → ImageEnumerator → RegionWalker → RegionPolicy →
// CoreWriter, producing an archived DumpArtifact at artifactPath.
//
// The target is suspended for the entire body and resumed
// unconditionally on every exit path (spec.md §5).
func (s *DumpSession) WriteDump(artifactPath string) error {
	if err := s.Task.Suspend(); err != nil {
		return errors.Wrap(err, "suspend target")
	}
	defer func() {
		if err := s.Task.Resume(); err != nil {
			log.WithError(err).Warn("failed to resume target task")
		}
	}()

	sampler := machtask.NewThreadSampler(s.Task)
	captures, crashedIndex, err := sampler.Sample(s.ThreadID)
	if err != nil {
		return errors.Wrap(err, "sample threads")
	}
	if crashedIndex < 0 {
		return errors.Errorf("no thread matched crashed thread id %d", s.ThreadID)
	}

	threads := make([]ThreadCapture, len(captures))
	for i, c := range captures {
		threads[i] = convertThreadCapture(c)
	}

	images, err := machtask.NewImageEnumerator(s.Task).Enumerate()
	if err != nil {
		return errors.Wrap(err, "enumerate images")
	}
	modules := make([]ModuleRecord, len(images))
	for i, img := range images {
		modules[i] = ModuleRecord{
			Path:          img.Path,
			StartAddress:  img.LoadAddress,
			ModuleVersion: img.Version,
			UUID:          formatUUID(img.UUID),
		}
	}

	meta := DumpMeta{
		BuildVersion:       s.BuildVersion,
		ExecutablePath:     s.ExecutablePath,
		BundleVersion:      s.BundleVersion,
		CrashedThreadIndex: crashedIndex,
		Modules:            modules,
	}
	envelope, err := EncodeEnvelope(meta)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}

	var regions []Region
	walker := machtask.NewRegionWalker(s.Task)
	if err := walker.Walk(func(r machtask.Region) error {
		regions = append(regions, Region{Base: r.Base, Size: r.Size, CurProt: r.CurProt, MaxProt: r.MaxProt, UserTag: r.UserTag})
		return nil
	}); err != nil {
		return errors.Wrap(err, "walk regions")
	}

	policy := RegionPolicy{BigMode: s.BigMode, Threads: threads}
	classified := policy.Classify(regions)

	var core bytes.Buffer
	writer := CoreWriter{Source: taskMemorySegmentSource{mem: machtask.NewTaskMemory(s.Task)}}
	n, err := writer.WriteCore(&core, classified, threads)
	if err != nil {
		return errors.Wrap(err, "write core")
	}
	log.WithField("size", humanize.Bytes(uint64(n))).Debug("wrote mach-o core")

	payload := append(envelope, core.Bytes()...)
	if err := WriteArtifact(artifactPath, payload); err != nil {
		return errors.Wrap(err, "package artifact")
	}

	return nil
}

func convertThreadCapture(c machtask.ThreadCapture) ThreadCapture {
	var out ThreadCapture
	out.ThreadID = c.ThreadID
	putGPR(&out.GPR, c.GPR)
	copy(out.FPU[:], c.FPU.Raw[:])
	putExc(&out.EXC, c.EXC)
	return out
}

func putGPR(dst *[168]byte, gpr machtask.GPRState) {
	words := []uint64{
		gpr.RAX, gpr.RBX, gpr.RCX, gpr.RDX,
		gpr.RDI, gpr.RSI, gpr.RBP, gpr.RSP,
		gpr.R8, gpr.R9, gpr.R10, gpr.R11,
		gpr.R12, gpr.R13, gpr.R14, gpr.R15,
		gpr.RIP, gpr.RFLAGS, gpr.CS, gpr.FS, gpr.GS,
	}
	for i, w := range words {
		off := i * 8
		for b := 0; b < 8; b++ {
			dst[off+b] = byte(w >> (8 * b))
		}
	}
}

func putExc(dst *[16]byte, exc machtask.ExceptionState) {
	for b := 0; b < 4; b++ {
		dst[b] = byte(exc.TrapNo >> (8 * b))
	}
	for b := 0; b < 4; b++ {
		dst[4+b] = byte(exc.ErrNo >> (8 * b))
	}
	for b := 0; b < 8; b++ {
		dst[8+b] = byte(exc.FaultVAddr >> (8 * b))
	}
}

func formatUUID(u [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

// DeleteArtifact removes the ephemeral artifact path, logging rather
// than failing on error (spec.md §3: "DumpArtifact is ephemeral on the
// writer side (delete after delivery)").
func DeleteArtifact(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to delete dump artifact")
	}
}

