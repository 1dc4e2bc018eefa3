package minidump

// ModuleRecord is one dyld-enumerated image as recorded in the envelope.
// Modules appear in dyld enumeration order; index 0 is always the main
// executable (spec.md §3).
type ModuleRecord struct {
	Path          string
	StartAddress  uint64
	ModuleVersion uint32
	UUID          string // canonical 36-character form, lowercase hex
}

// DumpMeta is the envelope's parsed payload (spec.md §3). Invariant:
// Modules[0].Path ends with ExecutablePath, and CrashedThreadIndex is
// less than the number of threads captured.
type DumpMeta struct {
	BuildVersion        string
	ExecutablePath      string
	BundleVersion       string
	CrashedThreadIndex  int
	Modules             []ModuleRecord
}

// ThreadCapture is one thread's saved register state, ready to be
// written into an LC_THREAD command. The payloads are kept as opaque
// blobs here (sized to match x86_thread_state64_t /
// x86_float_state64_t / x86_exception_state64_t exactly) rather than
// structured fields: CoreWriter never inspects them, only RegionPolicy's
// RBP/RSP extraction does, which reads them out of GPR directly.
type ThreadCapture struct {
	ThreadID uint64
	GPR      [168]byte // x86_thread_state64_t, 21 uint64 fields
	FPU      [512]byte // x86_float_state64_t
	EXC      [16]byte  // x86_exception_state64_t (trapno, err, faultvaddr + padding)
}

// RBP reads the captured frame-pointer register out of GPR. Field
// offsets follow <mach/i386/_structs.h>'s x86_thread_state64_t layout:
// rax,rbx,rcx,rdx,rdi,rsi,rbp,rsp,... — rbp is the 7th uint64, rsp the
// 8th.
func (t ThreadCapture) RBP() uint64 { return gprWord(t.GPR, 6) }

// RSP reads the captured stack-pointer register out of GPR.
func (t ThreadCapture) RSP() uint64 { return gprWord(t.GPR, 7) }

func gprWord(gpr [168]byte, index int) uint64 {
	off := index * 8
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(gpr[off+i]) << (8 * i)
	}
	return v
}

// Region is one RegionWalker-yielded VM region, annotated with the
// RegionPolicy verdict (spec.md §3).
type Region struct {
	Base         uint64
	Size         uint64
	CurProt      int32
	MaxProt      int32
	UserTag      uint32
	BodyIncluded bool
}
