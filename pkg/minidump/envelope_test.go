package minidump

import (
	"bytes"
	"strings"
	"testing"
)

func sampleMeta() DumpMeta {
	return DumpMeta{
		BuildVersion:       "42",
		ExecutablePath:     "/Applications/Foo.app/Contents/MacOS/Foo",
		BundleVersion:      "1.2.3",
		CrashedThreadIndex: 1,
		Modules: []ModuleRecord{
			{Path: "/Applications/Foo.app/Contents/MacOS/Foo", StartAddress: 0x100000000, ModuleVersion: 1, UUID: "c4cbd2cf-39d5-3185-851e-85c7dd2f8c7f"},
			{Path: "/usr/lib/libFoo.dylib", StartAddress: 0x7fff00000000, ModuleVersion: 2, UUID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"},
		},
	}
}

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	meta := sampleMeta()
	envelope, err := EncodeEnvelope(meta)
	if err != nil {
		t.Fatalf("EncodeEnvelope() error: %v", err)
	}

	if got := strings.Count(string(envelope), "</root>"); got != 1 {
		t.Fatalf("envelope has %d occurrences of </root>, want exactly 1", got)
	}

	got, err := DecodeEnvelope(envelope)
	if err != nil {
		t.Fatalf("DecodeEnvelope() error: %v", err)
	}
	if got.ExecutablePath != meta.ExecutablePath {
		t.Errorf("ExecutablePath = %q, want %q", got.ExecutablePath, meta.ExecutablePath)
	}
	if len(got.Modules) != len(meta.Modules) {
		t.Fatalf("got %d modules, want %d", len(got.Modules), len(meta.Modules))
	}
	if got.Modules[0].UUID != meta.Modules[0].UUID {
		t.Errorf("Modules[0].UUID = %q, want %q", got.Modules[0].UUID, meta.Modules[0].UUID)
	}
}

func TestSplitEnvelopeBoundary(t *testing.T) {
	meta := sampleMeta()
	envelope, err := EncodeEnvelope(meta)
	if err != nil {
		t.Fatalf("EncodeEnvelope() error: %v", err)
	}
	core := []byte{0xcf, 0xfa, 0xed, 0xfe, 'x', 'y', 'z'}
	payload := append(append([]byte{}, envelope...), core...)

	gotEnvelope, gotCore, err := SplitEnvelope(payload)
	if err != nil {
		t.Fatalf("SplitEnvelope() error: %v", err)
	}
	if !bytes.Equal(gotEnvelope, envelope) {
		t.Errorf("SplitEnvelope envelope mismatch")
	}
	if !bytes.Equal(gotCore, core) {
		t.Errorf("SplitEnvelope core mismatch")
	}
}

func TestSplitEnvelopeMissingTerminator(t *testing.T) {
	if _, _, err := SplitEnvelope([]byte("no root tag here")); err == nil {
		t.Fatal("SplitEnvelope() expected error for missing terminator")
	}
}
