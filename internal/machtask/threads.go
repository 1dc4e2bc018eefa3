//go:build darwin

package machtask

/*
#include <mach/mach.h>
#include <mach/thread_act.h>
#include <mach/thread_status.h>

// x86_thread_state64_t and friends; count constants from
// <mach/i386/thread_status.h> via mach/thread_status.h on amd64 SDKs.
*/
import "C"

import "unsafe"

const (
	x86ThreadState64  = C.x86_THREAD_STATE64
	x86FloatState64   = C.x86_FLOAT_STATE64
	x86ExceptionState64 = C.x86_EXCEPTION_STATE64

	x86ThreadState64Count  = C.x86_THREAD_STATE64_COUNT
	x86FloatState64Count   = C.x86_FLOAT_STATE64_COUNT
	x86ExceptionState64Count = C.x86_EXCEPTION_STATE64_COUNT
)

// GPRState mirrors x86_thread_state64_t: the general-purpose registers
// captured per thread (spec.md §3 ThreadCapture.gpr). Field order and
// widths match the Mach ABI exactly since this struct is written
// byte-for-byte into LC_THREAD commands by CoreWriter.
type GPRState struct {
	RAX, RBX, RCX, RDX     uint64
	RDI, RSI, RBP, RSP     uint64
	R8, R9, R10, R11       uint64
	R12, R13, R14, R15     uint64
	RIP                    uint64
	RFLAGS                 uint64
	CS, FS, GS             uint64
}

// FloatState mirrors x86_float_state64_t, stored opaquely since
// CoreWriter never inspects its contents, only relays the fixed-size
// blob the kernel returned.
type FloatState struct {
	Raw [512]byte
}

// ExceptionState mirrors x86_exception_state64_t.
type ExceptionState struct {
	TrapNo, ErrNo   uint32
	FaultVAddr      uint64
}

// ThreadCapture is one thread's three register flavors, per spec.md §3.
type ThreadCapture struct {
	ThreadID uint64
	GPR      GPRState
	FPU      FloatState
	EXC      ExceptionState
}

// ThreadSampler enumerates a task's threads and captures GPR/FPU/EXC
// state for each.
//
// Grounded on original_source/writer/Minidump.cpp's thread-capture
// lambda: task_threads, thread_info(THREAD_IDENTIFIER_INFO) to recover
// the kernel-wide thread id, then three thread_get_state calls per
// thread, with the thread array and per-thread ports released
// unconditionally afterward (spec.md §4.2).
type ThreadSampler struct {
	task *TaskHandle
}

// NewThreadSampler builds a sampler over task.
func NewThreadSampler(task *TaskHandle) *ThreadSampler {
	return &ThreadSampler{task: task}
}

// Sample captures every thread in the task and reports the index whose
// thread_identifier_info.thread_id equals crashedThreadID. A mismatch
// between a flavor's expected and actual state count is *SamplingFailed.
func (s *ThreadSampler) Sample(crashedThreadID uint64) ([]ThreadCapture, int, error) {
	var threadList C.thread_act_array_t
	var threadCount C.mach_msg_type_number_t

	if kr := C.task_threads(s.task.port, &threadList, &threadCount); kr != C.KERN_SUCCESS {
		return nil, -1, &SamplingFailed{Cause: machFailure("task_threads", int32(kr))}
	}
	defer C.vm_deallocate(C.mach_task_self_, C.vm_address_t(uintptr(unsafe.Pointer(threadList))), C.vm_size_t(uintptr(threadCount)*unsafe.Sizeof(C.thread_act_t(0))))

	threads := unsafe.Slice(threadList, int(threadCount))

	captures := make([]ThreadCapture, threadCount)
	crashedIndex := -1

	for i, port := range threads {
		defer C.mach_port_deallocate(C.mach_task_self_, C.mach_port_t(port))

		var idInfo C.thread_identifier_info_data_t
		idCount := C.mach_msg_type_number_t(C.THREAD_IDENTIFIER_INFO_COUNT)
		if kr := C.thread_info(port, C.THREAD_IDENTIFIER_INFO, (C.thread_info_t)(unsafe.Pointer(&idInfo)), &idCount); kr != C.KERN_SUCCESS {
			return nil, -1, &SamplingFailed{Cause: machFailure("thread_info", int32(kr))}
		}
		threadID := uint64(idInfo.thread_id)
		if threadID == crashedThreadID {
			crashedIndex = i
		}

		cap := ThreadCapture{ThreadID: threadID}

		if err := s.getState(port, x86ThreadState64, x86ThreadState64Count, unsafe.Pointer(&cap.GPR)); err != nil {
			return nil, -1, err
		}
		if err := s.getState(port, x86FloatState64, x86FloatState64Count, unsafe.Pointer(&cap.FPU)); err != nil {
			return nil, -1, err
		}
		if err := s.getState(port, x86ExceptionState64, x86ExceptionState64Count, unsafe.Pointer(&cap.EXC)); err != nil {
			return nil, -1, err
		}

		captures[i] = cap
	}

	return captures, crashedIndex, nil
}

// getState calls thread_get_state for one flavor and asserts the
// returned count matches expectedCount exactly, per spec.md §4.2's "the
// caller's sampled counts must exactly equal each flavor's expected
// count" invariant.
func (s *ThreadSampler) getState(port C.thread_act_t, flavor C.thread_state_flavor_t, expectedCount C.mach_msg_type_number_t, out unsafe.Pointer) error {
	count := expectedCount
	kr := C.thread_get_state(port, flavor, (C.thread_state_t)(out), &count)
	if err := machFailure("thread_get_state", int32(kr)); err != nil {
		return &SamplingFailed{Cause: err}
	}
	if count != expectedCount {
		return &SamplingFailed{Cause: &KernError{Call: "thread_get_state: count mismatch", Code: int32(count)}}
	}
	return nil
}
