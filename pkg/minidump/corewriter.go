package minidump

import (
	"encoding/binary"
	"io"

	"github.com/blacktop/go-macho/types"
)

// Mach-O thread-state flavor/count constants for x86_64, named the way
// <mach/i386/thread_status.h> declares them. Counts are in 32-bit
// natural_t words, the unit thread_get_state itself uses.
const (
	x86ThreadState64       = 4
	x86ThreadState64Count  = 168 / 4
	x86FloatState64        = 5
	x86FloatState64Count   = 512 / 4
	x86ExceptionState64    = 6
	x86ExceptionState64Count = 16 / 4
)

const machHeader64Size = 32
const segmentCommand64Size = 72
const threadCommandFixedSize = 8 + (8 + 168) + (8 + 512) + (8 + 16) // header + 3×(stateHeader+payload)

// SegmentSource supplies the live bytes of a mapped segment. session.go
// (darwin-only) implements this over machtask.TaskMemory.Remap; tests
// implement it with a static map.
type SegmentSource interface {
	ReadSegment(vmaddr, vmsize uint64) ([]byte, error)
}

// roundPage rounds n up to the next 4096-byte boundary, mirroring
// original_source/writer/Minidump.cpp's round_page call.
func roundPage(n uint64) uint64 {
	const pageSize = 4096
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// segmentCommand is a standalone byte-layout for LC_SEGMENT_64, written
// with encoding/binary rather than reused from go-macho's own Segment64
// type: that type serves go-macho's reader/rewriter role, and this
// writer constructs commands from live task state with no existing
// Mach-O to parse (see DESIGN.md).
type segmentCommand struct {
	VMAddr   uint64
	VMSize   uint64
	FileOff  uint64
	FileSize uint64
	MaxProt  int32
	InitProt int32
}

func (s segmentCommand) write(w io.Writer) error {
	buf := make([]byte, segmentCommand64Size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(types.LC_SEGMENT_64))
	binary.LittleEndian.PutUint32(buf[4:8], segmentCommand64Size)
	// buf[8:24] segname left zero (anonymous, as the original leaves it)
	binary.LittleEndian.PutUint64(buf[24:32], s.VMAddr)
	binary.LittleEndian.PutUint64(buf[32:40], s.VMSize)
	binary.LittleEndian.PutUint64(buf[40:48], s.FileOff)
	binary.LittleEndian.PutUint64(buf[48:56], s.FileSize)
	binary.LittleEndian.PutUint32(buf[56:60], uint32(s.MaxProt))
	binary.LittleEndian.PutUint32(buf[60:64], uint32(s.InitProt))
	// buf[64:72] nsects, flags left zero
	_, err := w.Write(buf)
	return err
}

func writeStateHeader(w io.Writer, flavor, count uint32) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], flavor)
	binary.LittleEndian.PutUint32(hdr[4:8], count)
	_, err := w.Write(hdr[:])
	return err
}

func writeThreadCommand(w io.Writer, t ThreadCapture) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(types.LC_THREAD))
	binary.LittleEndian.PutUint32(hdr[4:8], threadCommandFixedSize)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	if err := writeStateHeader(w, x86ThreadState64, x86ThreadState64Count); err != nil {
		return err
	}
	if _, err := w.Write(t.GPR[:]); err != nil {
		return err
	}
	if err := writeStateHeader(w, x86FloatState64, x86FloatState64Count); err != nil {
		return err
	}
	if _, err := w.Write(t.FPU[:]); err != nil {
		return err
	}
	if err := writeStateHeader(w, x86ExceptionState64, x86ExceptionState64Count); err != nil {
		return err
	}
	_, err := w.Write(t.EXC[:])
	return err
}

// CoreWriter assembles the Mach-O MH_CORE layout spec.md §4.5 specifies:
// header, mapped LC_SEGMENT_64s, unmapped LC_SEGMENT_64s, LC_THREADs,
// then page-aligned segment bodies in command order.
//
// Grounded on original_source/writer/Minidump.cpp's header/offset/body
// loop, line for line in arithmetic (round_page, cumulative fileoff).
type CoreWriter struct {
	Source SegmentSource
}

// WriteCore writes the Mach-O core for the classified regions and thread
// captures to w, returning the total bytes written.
func (c CoreWriter) WriteCore(w io.Writer, regions []Region, threads []ThreadCapture) (int64, error) {
	var mapped, unmapped []Region
	for _, r := range regions {
		if r.BodyIncluded {
			mapped = append(mapped, r)
		} else {
			unmapped = append(unmapped, r)
		}
	}

	ncmds := len(mapped) + len(unmapped) + len(threads)
	sizeofCmds := uint32(len(mapped)+len(unmapped))*segmentCommand64Size + uint32(len(threads))*threadCommandFixedSize

	header := make([]byte, machHeader64Size)
	binary.LittleEndian.PutUint32(header[0:4], uint32(types.Magic64))
	binary.LittleEndian.PutUint32(header[4:8], uint32(types.CPUAmd64))
	binary.LittleEndian.PutUint32(header[8:12], uint32(types.CPUSubtypeX8664All))
	binary.LittleEndian.PutUint32(header[12:16], uint32(types.MH_CORE))
	binary.LittleEndian.PutUint32(header[16:20], uint32(ncmds))
	binary.LittleEndian.PutUint32(header[20:24], sizeofCmds)
	// header[24:28] flags, header[28:32] reserved left zero

	cw := &countingWriter{w: w}

	if _, err := cw.Write(header); err != nil {
		return cw.n, &FileFailure{Op: "write mach header", Cause: err}
	}

	fileOff := roundPage(uint64(machHeader64Size) + uint64(sizeofCmds))
	mappedCmds := make([]segmentCommand, len(mapped))
	for i, r := range mapped {
		mappedCmds[i] = segmentCommand{
			VMAddr: r.Base, VMSize: r.Size,
			FileOff: fileOff, FileSize: r.Size,
			MaxProt: r.MaxProt, InitProt: r.CurProt,
		}
		fileOff += r.Size
	}

	for _, sc := range mappedCmds {
		if err := sc.write(cw); err != nil {
			return cw.n, &FileFailure{Op: "write mapped segment command", Cause: err}
		}
	}
	for _, r := range unmapped {
		sc := segmentCommand{VMAddr: r.Base, VMSize: r.Size, MaxProt: r.MaxProt, InitProt: r.CurProt}
		if err := sc.write(cw); err != nil {
			return cw.n, &FileFailure{Op: "write unmapped segment command", Cause: err}
		}
	}
	for _, t := range threads {
		if err := writeThreadCommand(cw, t); err != nil {
			return cw.n, &FileFailure{Op: "write thread command", Cause: err}
		}
	}

	// Pad up to the page-aligned body start.
	if pad := int64(roundPage(uint64(machHeader64Size)+uint64(sizeofCmds))) - cw.n; pad > 0 {
		if _, err := cw.Write(make([]byte, pad)); err != nil {
			return cw.n, &FileFailure{Op: "pad to page boundary", Cause: err}
		}
	}

	for i, r := range mapped {
		body, err := c.Source.ReadSegment(mappedCmds[i].VMAddr, mappedCmds[i].VMSize)
		if err != nil {
			return cw.n, &FileFailure{Op: "read mapped segment body", Cause: err}
		}
		if uint64(len(body)) != r.Size {
			return cw.n, &FileFailure{Op: "mapped segment body size mismatch", Cause: io.ErrShortWrite}
		}
		if _, err := cw.Write(body); err != nil {
			return cw.n, &FileFailure{Op: "write mapped segment body", Cause: err}
		}
	}

	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
