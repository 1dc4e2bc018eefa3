//go:build darwin

package machtask

/*
#include <mach/mach.h>
#include <mach-o/dyld_images.h>
#include <mach-o/loader.h>
*/
import "C"

import (
	"encoding/binary"
	"unsafe"
)

// ImageInfo is one dyld-enumerated module before path/UUID/version
// extraction is folded into a pkg/minidump.ModuleRecord.
type ImageInfo struct {
	LoadAddress uint64
	Path        string
	Version     uint32 // LC_ID_DYLIB current_version, 0 if absent
	UUID        [16]byte
	HasUUID     bool
}

// ImageEnumerator reads a task's dyld image list.
//
// Grounded on original_source/writer/Minidump.cpp's dyld_all_image_infos
// handling: read TASK_DYLD_INFO to find all_image_info_addr, read only
// the {version, infoArrayCount, infoArray} subset (spec.md §4.3), bulk
// read the infoArray, then per image remap the path pointer and scan the
// Mach header for LC_ID_DYLIB/LC_UUID.
type ImageEnumerator struct {
	task *TaskHandle
	mem  *TaskMemory
}

// NewImageEnumerator builds an enumerator over task.
func NewImageEnumerator(task *TaskHandle) *ImageEnumerator {
	return &ImageEnumerator{task: task, mem: NewTaskMemory(task)}
}

// dyldAllImageInfosSubset mirrors the subset struct
// original_source/writer/Minidump.cpp declares locally, since the full
// dyld_all_image_infos grows across macOS releases and only these three
// fields are needed.
type dyldAllImageInfosSubset struct {
	Version        uint32
	InfoArrayCount uint32
	InfoArray      uint64 // pointer, read as an address in target space
}

// dyldImageInfoRaw mirrors dyld_image_info's three pointer/version
// fields as they lay out in the target's 64-bit address space.
type dyldImageInfoRaw struct {
	ImageLoadAddress uint64
	ImageFilePath    uint64
	ImageFileModDate uint64
}

// Enumerate returns every image dyld has loaded into the task, in dyld
// enumeration order (spec.md §4.3 invariant: modules[0] is the
// executable).
func (e *ImageEnumerator) Enumerate() ([]ImageInfo, error) {
	var dyldInfo C.task_dyld_info_data_t
	count := C.mach_msg_type_number_t(C.TASK_DYLD_INFO_COUNT)
	if kr := C.task_info(e.task.port, C.TASK_DYLD_INFO, (C.task_info_t)(unsafe.Pointer(&dyldInfo)), &count); kr != C.KERN_SUCCESS {
		return nil, machFailure("task_info(TASK_DYLD_INFO)", int32(kr))
	}

	const subsetSize = 16 // 2*uint32 + 1*uint64, packed
	if uint64(dyldInfo.all_image_info_size) < subsetSize {
		return nil, &KernError{Call: "task_dyld_info: all_image_info_size too small", Code: int32(dyldInfo.all_image_info_size)}
	}

	buf := make([]byte, subsetSize)
	if err := e.mem.ReadAt(uint64(dyldInfo.all_image_info_addr), buf); err != nil {
		return nil, err
	}
	subset := dyldAllImageInfosSubset{
		Version:        binary.LittleEndian.Uint32(buf[0:4]),
		InfoArrayCount: binary.LittleEndian.Uint32(buf[4:8]),
		InfoArray:      binary.LittleEndian.Uint64(buf[8:16]),
	}

	rawEntrySize := uint64(24) // three uint64 fields, packed
	raw := make([]byte, uint64(subset.InfoArrayCount)*rawEntrySize)
	if len(raw) > 0 {
		if err := e.mem.ReadAt(subset.InfoArray, raw); err != nil {
			return nil, err
		}
	}

	images := make([]ImageInfo, 0, subset.InfoArrayCount)
	for i := uint32(0); i < subset.InfoArrayCount; i++ {
		off := uint64(i) * rawEntrySize
		entry := dyldImageInfoRaw{
			ImageLoadAddress: binary.LittleEndian.Uint64(raw[off : off+8]),
			ImageFilePath:    binary.LittleEndian.Uint64(raw[off+8 : off+16]),
			ImageFileModDate: binary.LittleEndian.Uint64(raw[off+16 : off+24]),
		}

		// spec.md §9 open question (c): a malformed entry is skipped
		// rather than aborting the whole enumeration.
		if entry.ImageLoadAddress == 0 {
			continue
		}

		img := ImageInfo{LoadAddress: entry.ImageLoadAddress}

		if entry.ImageFilePath != 0 {
			path, err := e.mem.ReadCString(entry.ImageFilePath, 4096)
			if err == nil {
				img.Path = path
			}
		}

		version, uuid, hasUUID, err := e.readIdentity(entry.ImageLoadAddress)
		if err != nil {
			continue // malformed Mach header at this load address; skip
		}
		img.Version = version
		img.UUID = uuid
		img.HasUUID = hasUUID

		images = append(images, img)
	}

	return images, nil
}

// readIdentity reads the 64-bit Mach header at loadAddr, then its load
// commands, looking for LC_ID_DYLIB (current_version) and LC_UUID (the
// 16-byte identity). Both loops stop at the first match (spec.md §4.3).
func (e *ImageEnumerator) readIdentity(loadAddr uint64) (version uint32, uuid [16]byte, hasUUID bool, err error) {
	headerBuf := make([]byte, 32) // sizeof(mach_header_64)
	if err = e.mem.ReadAt(loadAddr, headerBuf); err != nil {
		return
	}
	magic := binary.LittleEndian.Uint32(headerBuf[0:4])
	if magic != C.MH_MAGIC_64 {
		err = &KernError{Call: "readIdentity: bad Mach magic", Code: int32(magic)}
		return
	}
	sizeofCmds := binary.LittleEndian.Uint32(headerBuf[20:24])
	ncmds := binary.LittleEndian.Uint32(headerBuf[16:20])

	cmdBuf := make([]byte, sizeofCmds)
	if err = e.mem.ReadAt(loadAddr+32, cmdBuf); err != nil {
		return
	}

	foundVersion, foundUUID := false, false
	off := uint32(0)
	for i := uint32(0); i < ncmds && off+8 <= sizeofCmds; i++ {
		cmd := binary.LittleEndian.Uint32(cmdBuf[off : off+4])
		cmdSize := binary.LittleEndian.Uint32(cmdBuf[off+4 : off+8])
		if cmdSize < 8 || off+cmdSize > sizeofCmds {
			break
		}

		switch cmd {
		case C.LC_ID_DYLIB:
			if !foundVersion && off+20+4 <= sizeofCmds {
				// dylib_command{cmd,cmdsize,dylib{name_offset,timestamp,current_version,compat_version}}
				version = binary.LittleEndian.Uint32(cmdBuf[off+16 : off+20])
				foundVersion = true
			}
		case C.LC_UUID:
			if !foundUUID && off+8+16 <= sizeofCmds {
				copy(uuid[:], cmdBuf[off+8:off+24])
				hasUUID = true
				foundUUID = true
			}
		}

		if foundVersion && foundUUID {
			break
		}
		off += cmdSize
	}

	return version, uuid, hasUUID, nil
}
