package minidump

import (
	"bytes"
	"encoding/binary"
	"testing"
)

type fakeSegmentSource struct {
	data map[uint64][]byte
}

func (f fakeSegmentSource) ReadSegment(vmaddr, vmsize uint64) ([]byte, error) {
	body, ok := f.data[vmaddr]
	if !ok || uint64(len(body)) != vmsize {
		body = make([]byte, vmsize)
	}
	return body, nil
}

func TestWriteCoreHeaderInvariants(t *testing.T) {
	mappedBody := bytes.Repeat([]byte{0xAB}, 0x2000)
	regions := []Region{
		{Base: 0x1000, Size: 0x2000, CurProt: 1, MaxProt: 3, BodyIncluded: true},
		{Base: 0x5000, Size: 0x1000, CurProt: 1, MaxProt: 3, BodyIncluded: false},
	}
	threads := []ThreadCapture{{ThreadID: 1}}

	src := fakeSegmentSource{data: map[uint64][]byte{0x1000: mappedBody}}
	w := CoreWriter{Source: src}

	var buf bytes.Buffer
	n, err := w.WriteCore(&buf, regions, threads)
	if err != nil {
		t.Fatalf("WriteCore() error: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("reported length %d != actual buffer length %d", n, buf.Len())
	}

	out := buf.Bytes()
	magic := binary.LittleEndian.Uint32(out[0:4])
	if magic != 0xfeedfacf {
		t.Errorf("magic = %#x, want MH_MAGIC_64 (0xfeedfacf)", magic)
	}
	ncmds := binary.LittleEndian.Uint32(out[16:20])
	if ncmds != 3 { // 1 mapped + 1 unmapped + 1 thread
		t.Errorf("ncmds = %d, want 3", ncmds)
	}
	sizeofCmds := binary.LittleEndian.Uint32(out[20:24])
	wantSizeofCmds := uint32(2*segmentCommand64Size + threadCommandFixedSize)
	if sizeofCmds != wantSizeofCmds {
		t.Errorf("sizeofcmds = %d, want %d", sizeofCmds, wantSizeofCmds)
	}

	// First mapped segment command's fileoff must equal
	// round_page(header + sizeofcmds).
	mappedCmdOff := machHeader64Size
	fileOff := binary.LittleEndian.Uint64(out[mappedCmdOff+40 : mappedCmdOff+48])
	wantFileOff := roundPage(uint64(machHeader64Size) + uint64(sizeofCmds))
	if fileOff != wantFileOff {
		t.Errorf("mapped segment fileoff = %d, want %d", fileOff, wantFileOff)
	}

	// The unmapped segment's filesize must be zero with vmsize > 0.
	unmappedCmdOff := machHeader64Size + segmentCommand64Size
	unmappedFileSize := binary.LittleEndian.Uint64(out[unmappedCmdOff+48 : unmappedCmdOff+56])
	unmappedVMSize := binary.LittleEndian.Uint64(out[unmappedCmdOff+32 : unmappedCmdOff+40])
	if unmappedFileSize != 0 {
		t.Errorf("unmapped segment filesize = %d, want 0", unmappedFileSize)
	}
	if unmappedVMSize == 0 {
		t.Error("unmapped segment vmsize must be > 0")
	}
}

func TestWriteCoreBodyBytesMatchSource(t *testing.T) {
	body := bytes.Repeat([]byte{0x42}, 0x1000)
	regions := []Region{{Base: 0x9000, Size: 0x1000, BodyIncluded: true}}
	src := fakeSegmentSource{data: map[uint64][]byte{0x9000: body}}
	w := CoreWriter{Source: src}

	var buf bytes.Buffer
	if _, err := w.WriteCore(&buf, regions, nil); err != nil {
		t.Fatalf("WriteCore() error: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), body) {
		t.Error("output does not contain the mapped segment's body bytes")
	}
}
