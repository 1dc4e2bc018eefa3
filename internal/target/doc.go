// Package target implements the reader-side TargetAssembler (spec.md
// §4.8): it unpacks a DumpArtifact, resolves every referenced module
// through pkg/symcache, and drives an injected debugger Engine to
// reconstruct a running target at the recorded load addresses.
//
// The debugger engine itself is explicitly out of scope (spec.md §1):
// it is modeled here purely as the Engine interface, with no concrete
// production implementation bundled.
package target
