//go:build darwin

package machtask

/*
#include <mach/mach.h>
#include <mach/mach_vm.h>
*/
import "C"

import "unsafe"

// TaskMemory reads and remaps slices of a target's address space.
// Grounded on the mach_vm_read/vm_deallocate pair in
// other_examples/monsterxx03-gospy__mem_reader_darwin.go and on
// ReadTaskMemory/the per-image mach_vm_remap call in
// original_source/writer/Minidump.cpp.
type TaskMemory struct {
	task *TaskHandle
}

// NewTaskMemory wraps task for memory access. task must stay valid for
// the lifetime of the returned TaskMemory.
func NewTaskMemory(task *TaskHandle) *TaskMemory {
	return &TaskMemory{task: task}
}

// ReadAt reads exactly len(buf) bytes from addr in the target into buf
// via mach_vm_read_overwrite, the non-remapping read spec.md §4.3 uses
// for the dyld-info subset and image headers.
func (m *TaskMemory) ReadAt(addr uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	var actual C.mach_vm_size_t
	kr := C.mach_vm_read_overwrite(
		m.task.port,
		C.mach_vm_address_t(addr),
		C.mach_vm_size_t(len(buf)),
		C.mach_vm_address_t(uintptr(unsafe.Pointer(&buf[0]))),
		&actual,
	)
	if err := machFailure("mach_vm_read_overwrite", int32(kr)); err != nil {
		return err
	}
	if int(actual) != len(buf) {
		return &KernError{Call: "mach_vm_read_overwrite: short read", Code: int32(actual)}
	}
	return nil
}

// Remap copies size bytes starting at addr in the target into the
// writer's own address space with VM_INHERIT_NONE, returning the mapped
// bytes and a release function that must be called exactly once. This is
// the zero-copy path CoreWriter uses to stream mapped segment bodies
// (spec.md §4.5 step 5) and ImageEnumerator uses to read image path
// strings (spec.md §4.3).
func (m *TaskMemory) Remap(addr uint64, size uint64) ([]byte, func() error, error) {
	var target C.mach_vm_address_t
	var curProt, maxProt C.vm_prot_t

	kr := C.mach_vm_remap(
		C.mach_task_self_,
		&target,
		C.mach_vm_size_t(size),
		0, // mask
		C.VM_FLAGS_ANYWHERE,
		m.task.port,
		C.mach_vm_address_t(addr),
		0, // copy (false: share, matches the original's live remap)
		&curProt,
		&maxProt,
		C.VM_INHERIT_NONE,
	)
	if err := machFailure("mach_vm_remap", int32(kr)); err != nil {
		return nil, nil, err
	}

	base := unsafe.Pointer(uintptr(target))
	data := unsafe.Slice((*byte)(base), int(size))

	release := func() error {
		return machFailure("mach_vm_deallocate", int32(C.mach_vm_deallocate(C.mach_task_self_, target, C.mach_vm_size_t(size))))
	}
	return data, release, nil
}

// ReadCString remaps the page containing addr and reads a NUL-terminated
// string relative to the remap base, releasing the remap before
// returning. Used to materialize dyld_image_info.imageFilePath
// (spec.md §4.3).
func (m *TaskMemory) ReadCString(addr uint64, maxLen int) (string, error) {
	pageSize := uint64(C.vm_page_size)
	pageBase := addr &^ (pageSize - 1)
	offset := addr - pageBase

	// A path can straddle a page boundary; remap two pages to be safe.
	span := 2 * pageSize
	data, release, err := m.Remap(pageBase, span)
	if err != nil {
		return "", err
	}
	defer release()

	rest := data[offset:]
	n := 0
	for n < len(rest) && n < maxLen && rest[n] != 0 {
		n++
	}
	return string(rest[:n]), nil
}
