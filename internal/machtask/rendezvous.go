//go:build darwin

package machtask

/*
#include <mach/mach.h>
#include <servers/bootstrap.h>
#include <string.h>
#include <stdlib.h>

typedef struct {
	mach_msg_header_t header;
	mach_msg_body_t body;
	mach_msg_port_descriptor_t port;
} port_send_msg_t;

typedef struct {
	mach_msg_header_t header;
	mach_msg_body_t body;
	mach_msg_port_descriptor_t port;
	mach_msg_trailer_t trailer;
} port_recv_msg_t;

static kern_return_t send_port_message(mach_port_t dest, mach_port_t portToSend) {
	port_send_msg_t msg;
	memset(&msg, 0, sizeof(msg));
	msg.header.msgh_bits = MACH_MSGH_BITS_COMPLEX | MACH_MSGH_BITS(MACH_MSG_TYPE_COPY_SEND, 0);
	msg.header.msgh_size = sizeof(msg);
	msg.header.msgh_remote_port = dest;
	msg.header.msgh_local_port = MACH_PORT_NULL;
	msg.body.msgh_descriptor_count = 1;
	msg.port.name = portToSend;
	msg.port.disposition = MACH_MSG_TYPE_COPY_SEND;
	msg.port.type = MACH_MSG_PORT_DESCRIPTOR;
	return mach_msg(&msg.header, MACH_SEND_MSG, sizeof(msg), 0, MACH_PORT_NULL, MACH_MSG_TIMEOUT_NONE, MACH_PORT_NULL);
}

static kern_return_t recv_port_message(mach_port_t local, mach_port_t *outPort) {
	port_recv_msg_t msg;
	memset(&msg, 0, sizeof(msg));
	kern_return_t kr = mach_msg(&msg.header, MACH_RCV_MSG, 0, sizeof(msg), local, MACH_MSG_TIMEOUT_NONE, MACH_PORT_NULL);
	if (kr == KERN_SUCCESS) {
		*outPort = msg.port.name;
	}
	return kr;
}
*/
import "C"

import (
	"bufio"
	"encoding/binary"
	"io"
	"unicode/utf16"
	"unsafe"
)

// writeFrame writes a size-prefixed byte string: a uint32 length
// followed by the raw bytes, matching the framed channel spec.md §4.1
// describes between the target and its coordinating peer.
func writeFrame(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one writeFrame-encoded byte string.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// TargetMarshal is the target-resident half of Rendezvous: it describes
// itself to the coordinating peer over rw and transfers its task port.
//
// Grounded on original_source/writer/DumpInfo.h's SDumpInfo::Marshal:
// write (threadId, execPath, bundleVersion) framed, flush, read back a
// service name, bootstrap_look_up it, and send a single complex Mach
// message carrying mach_task_self() as a COPY_SEND port descriptor.
func TargetMarshal(rw *bufio.ReadWriter, threadID uint64, execPath string, bundleVersion string) error {
	var idBuf [8]byte
	binary.LittleEndian.PutUint64(idBuf[:], threadID)
	if _, err := rw.Write(idBuf[:]); err != nil {
		return &RendezvousFailed{Cause: err}
	}
	if err := writeFrame(rw, []byte(execPath)); err != nil {
		return &RendezvousFailed{Cause: err}
	}

	u16 := utf16.Encode([]rune(bundleVersion))
	u16Bytes := make([]byte, len(u16)*2)
	for i, u := range u16 {
		binary.LittleEndian.PutUint16(u16Bytes[i*2:], u)
	}
	if err := writeFrame(rw, u16Bytes); err != nil {
		return &RendezvousFailed{Cause: err}
	}
	if err := rw.Flush(); err != nil {
		return &RendezvousFailed{Cause: err}
	}

	serviceNameBytes, err := readFrame(rw)
	if err != nil {
		return &RendezvousFailed{Cause: err}
	}
	serviceName := C.CString(string(serviceNameBytes))
	defer C.free(unsafe.Pointer(serviceName))

	var bootstrapPort C.mach_port_t
	if kr := C.task_get_bootstrap_port(C.mach_task_self_, &bootstrapPort); kr != C.KERN_SUCCESS {
		return &RendezvousFailed{Cause: machFailure("task_get_bootstrap_port", int32(kr))}
	}

	var servicePort C.mach_port_t
	if kr := C.bootstrap_look_up(bootstrapPort, serviceName, &servicePort); kr != C.KERN_SUCCESS {
		return &RendezvousFailed{Cause: machFailure("bootstrap_look_up", int32(kr))}
	}

	if kr := C.send_port_message(servicePort, C.mach_task_self_); kr != C.KERN_SUCCESS {
		return &RendezvousFailed{Cause: machFailure("mach_msg(send)", int32(kr))}
	}

	return nil
}

// Listen is the writer/coordinating-peer half of Rendezvous: it checks
// in a bootstrap service under serviceName, announces it to the target
// over rw, and blocks for the target's task port.
//
// Grounded on original_source/writer/DumpInfo.h's SDumpInfo constructor:
// bootstrap_check_in under a (here, caller-supplied, never hardcoded —
// see SPEC_FULL.md Open Question (a)) service name, write the service
// name back over rw, then mach_msg(MACH_RCV_MSG) for the transferred
// port.
func Listen(rw *bufio.ReadWriter, serviceName string) (task *TaskHandle, threadID uint64, execPath, bundleVersion string, err error) {
	var idBuf [8]byte
	if _, ferr := io.ReadFull(rw, idBuf[:]); ferr != nil {
		return nil, 0, "", "", &RendezvousFailed{Cause: ferr}
	}
	threadID = binary.LittleEndian.Uint64(idBuf[:])

	execPathBytes, ferr := readFrame(rw)
	if ferr != nil {
		return nil, 0, "", "", &RendezvousFailed{Cause: ferr}
	}
	execPath = string(execPathBytes)

	bundleVersionBytes, ferr := readFrame(rw)
	if ferr != nil {
		return nil, 0, "", "", &RendezvousFailed{Cause: ferr}
	}
	u16 := make([]uint16, len(bundleVersionBytes)/2)
	for i := range u16 {
		u16[i] = binary.LittleEndian.Uint16(bundleVersionBytes[i*2:])
	}
	bundleVersion = string(utf16.Decode(u16))

	cName := C.CString(serviceName)
	defer C.free(unsafe.Pointer(cName))

	var bootstrapPort C.mach_port_t
	if kr := C.task_get_bootstrap_port(C.mach_task_self_, &bootstrapPort); kr != C.KERN_SUCCESS {
		return nil, 0, "", "", &RendezvousFailed{Cause: machFailure("task_get_bootstrap_port", int32(kr))}
	}

	var servicePort C.mach_port_t
	if kr := C.bootstrap_check_in(bootstrapPort, cName, &servicePort); kr != C.KERN_SUCCESS {
		return nil, 0, "", "", &RendezvousFailed{Cause: machFailure("bootstrap_check_in", int32(kr))}
	}

	if werr := writeFrame(rw, []byte(serviceName)); werr != nil {
		return nil, 0, "", "", &RendezvousFailed{Cause: werr}
	}
	if werr := rw.Flush(); werr != nil {
		return nil, 0, "", "", &RendezvousFailed{Cause: werr}
	}

	var receivedPort C.mach_port_t
	if kr := C.recv_port_message(servicePort, &receivedPort); kr != C.KERN_SUCCESS {
		return nil, 0, "", "", &RendezvousFailed{Cause: machFailure("mach_msg(recv)", int32(kr))}
	}

	return newTaskHandle(receivedPort), threadID, execPath, bundleVersion, nil
}
