package minidump

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// envelopeTerminator is the literal byte sequence the writer emits right
// before the Mach header and the reader scans for. spec.md §9 Open
// Question (b): the writer inserts zero padding after it.
const envelopeTerminator = "</root>"

// xmlModule mirrors one <elem> in <m_vecmodule> (spec.md §6).
type xmlModule struct {
	XMLName      xml.Name `xml:"elem"`
	StartAddress struct {
		Val uint64 `xml:"val,attr"`
	} `xml:"m_pvStartAddress"`
	Path string `xml:"m_strPath"`
	Version struct {
		Val uint32 `xml:"val,attr"`
	} `xml:"m_modver"`
	UUID struct {
		Val string `xml:"val,attr"`
	} `xml:"m_uuid"`
}

// xmlModuleList mirrors <m_vecmodule length="K">.
type xmlModuleList struct {
	XMLName xml.Name    `xml:"m_vecmodule"`
	Length  int         `xml:"length,attr"`
	Elems   []xmlModule `xml:"elem"`
}

// xmlPersistentType mirrors <PersistentType>.
type xmlPersistentType struct {
	XMLName        xml.Name      `xml:"PersistentType"`
	Executable     string        `xml:"m_strExecutable"`
	BundleVersion  string        `xml:"m_strBundleVersion"`
	ThreadIndex    struct {
		Val int `xml:"val,attr"`
	} `xml:"m_nThread"`
	Modules xmlModuleList `xml:"m_vecmodule"`
}

// xmlRoot mirrors the whole <root> document spec.md §6 specifies
// verbatim.
type xmlRoot struct {
	XMLName xml.Name `xml:"root"`
	Version struct {
		Val string `xml:"val,attr"`
	} `xml:"version"`
	PersistentType xmlPersistentType `xml:"PersistentType"`
}

// EncodeEnvelope renders meta as the exact XML envelope spec.md §6
// names: a fixed XML prolog followed by <root>...</root>, with no
// trailing bytes after "</root>" (callers append the Mach-O core
// immediately after the returned bytes).
func EncodeEnvelope(meta DumpMeta) ([]byte, error) {
	root := xmlRoot{}
	root.Version.Val = meta.BuildVersion
	root.PersistentType.Executable = meta.ExecutablePath
	root.PersistentType.BundleVersion = meta.BundleVersion
	root.PersistentType.ThreadIndex.Val = meta.CrashedThreadIndex
	root.PersistentType.Modules.Length = len(meta.Modules)
	root.PersistentType.Modules.Elems = make([]xmlModule, len(meta.Modules))
	for i, m := range meta.Modules {
		var e xmlModule
		e.StartAddress.Val = m.StartAddress
		e.Path = m.Path
		e.Version.Val = m.ModuleVersion
		e.UUID.Val = m.UUID
		root.PersistentType.Modules.Elems[i] = e
	}

	body, err := xml.Marshal(root)
	if err != nil {
		return nil, &FileFailure{Op: "encode envelope", Cause: err}
	}

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	buf.Write(body)

	out := buf.Bytes()
	if bytes.Count(out, []byte(envelopeTerminator)) != 1 {
		return nil, &EnvelopeMalformed{Reason: "encoded envelope does not contain exactly one </root>"}
	}
	return out, nil
}

// SplitEnvelope locates the envelope terminator in data and returns the
// envelope bytes (including the terminator) and the remaining bytes
// (the Mach-O core), per spec.md §4.5's invariant that the core begins
// immediately after "</root>".
func SplitEnvelope(data []byte) (envelope, core []byte, err error) {
	idx := bytes.Index(data, []byte(envelopeTerminator))
	if idx < 0 {
		return nil, nil, &EnvelopeMalformed{Reason: "no </root> terminator found"}
	}
	split := idx + len(envelopeTerminator)
	return data[:split], data[split:], nil
}

// DecodeEnvelope parses the XML envelope (as returned by SplitEnvelope)
// into a DumpMeta.
func DecodeEnvelope(envelope []byte) (DumpMeta, error) {
	var root xmlRoot
	if err := xml.Unmarshal(envelope, &root); err != nil {
		return DumpMeta{}, &EnvelopeMalformed{Reason: fmt.Sprintf("xml parse: %v", err)}
	}

	meta := DumpMeta{
		BuildVersion:       root.Version.Val,
		ExecutablePath:     root.PersistentType.Executable,
		BundleVersion:      root.PersistentType.BundleVersion,
		CrashedThreadIndex: root.PersistentType.ThreadIndex.Val,
	}
	meta.Modules = make([]ModuleRecord, len(root.PersistentType.Modules.Elems))
	for i, e := range root.PersistentType.Modules.Elems {
		meta.Modules[i] = ModuleRecord{
			Path:          e.Path,
			StartAddress:  e.StartAddress.Val,
			ModuleVersion: e.Version.Val,
			UUID:          e.UUID.Val,
		}
	}
	return meta, nil
}
