// Package machtask binds the Mach primitives the writer half of a dump
// session needs: acquiring a task port over a bootstrap rendezvous,
// reading and remapping target memory, walking VM submaps, sampling
// thread register state, and enumerating dyld images.
//
// Every file here except the error types is darwin-only and cgo-backed; there is no portable
// equivalent for task ports, mach_vm_region_recurse, or bootstrap
// rendezvous in the standard library or golang.org/x/sys/unix.
package machtask
