//go:build darwin

package machtask

/*
#include <mach/mach.h>
#include <mach/mach_vm.h>
#include <mach/vm_region.h>
*/
import "C"

import "unsafe"

// VMMemoryIOKit and VMMemoryStack mirror the <mach/vm_statistics.h> user
// tags spec.md §4.4/§4.4 name explicitly.
const (
	VMMemoryIOKit = 21
	VMMemoryStack = 30
)

// VMProtRead is VM_PROT_READ.
const VMProtRead = 0x1

// Region is one leaf entry yielded by RegionWalker: an (addr, size, prot,
// maxProt, userTag) tuple per spec.md §2.
type Region struct {
	Base     uint64
	Size     uint64
	CurProt  int32
	MaxProt  int32
	UserTag  uint32
}

// RegionWalker iterates a task's VM submaps.
//
// Grounded on the mach_vm_region_recurse loop in
// other_examples/pkujhd-goloader__vmmap_darwin.go, generalized with the
// submap-descent and IOKit/read-permission filter from
// original_source/writer/Minidump.cpp's ForEachMemoryRegion.
type RegionWalker struct {
	task *TaskHandle
}

// NewRegionWalker builds a walker over task.
func NewRegionWalker(task *TaskHandle) *RegionWalker {
	return &RegionWalker{task: task}
}

// Walk calls fn for every readable, non-IOKit leaf region in enumeration
// order, starting at MACH_VM_MIN_ADDRESS. fn returning a non-nil error
// stops the walk and that error is returned unwrapped. A kernel error
// other than KERN_INVALID_ADDRESS is returned as *WalkFailed.
func (w *RegionWalker) Walk(fn func(Region) error) error {
	var addr C.mach_vm_address_t = 1 // MACH_VM_MIN_ADDRESS is 0 on some SDKs but 0 also means "no region found yet"; start above the zero page.
	var depth C.natural_t = 0

	var info C.vm_region_submap_info_data_64_t
	const kernInvalidAddress = 1

	for {
		var regionAddr = addr
		var size C.mach_vm_size_t
		var count C.mach_msg_type_number_t = C.VM_REGION_SUBMAP_INFO_COUNT_64
		depthCopy := depth

		kr := C.mach_vm_region_recurse(
			w.task.port,
			&regionAddr,
			&size,
			&depthCopy,
			C.vm_region_recurse_info_t(unsafe.Pointer(&info)),
			&count,
		)
		if kr == kernInvalidAddress {
			return nil
		}
		if err := machFailure("mach_vm_region_recurse", int32(kr)); err != nil {
			return &WalkFailed{Cause: err}
		}

		if info.is_submap != 0 {
			depth = depthCopy + 1
			addr = regionAddr
			continue
		}
		depth = depthCopy

		userTag := uint32(info.user_tag)
		curProt := int32(info.protection)
		if userTag != VMMemoryIOKit && curProt&VMProtRead != 0 {
			r := Region{
				Base:    uint64(regionAddr),
				Size:    uint64(size),
				CurProt: curProt,
				MaxProt: int32(info.max_protection),
				UserTag: userTag,
			}
			if err := fn(r); err != nil {
				return err
			}
		}
		addr = regionAddr + C.mach_vm_address_t(size)
	}
}
