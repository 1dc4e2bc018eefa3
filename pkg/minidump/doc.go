// Package minidump implements the writer-side data model, XML envelope
// codec, region-selection policy, and Mach-O MH_CORE emission described
// in spec.md §3-§4.5: DumpMeta/ModuleRecord, the envelope that prefixes
// every dump archive, RegionPolicy, CoreWriter, and the single-entry
// DumpArtifact container.
package minidump
