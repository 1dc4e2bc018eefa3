package target

import "fmt"

// LoadFailed reports a fatal failure of TargetAssembler.Load: the dump
// cannot be turned into a running target at all (spec.md §7).
type LoadFailed struct {
	Reason string
	Cause  error
}

func (e *LoadFailed) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("target: load failed: %s: %v", e.Reason, e.Cause)
	}
	return "target: load failed: " + e.Reason
}

func (e *LoadFailed) Unwrap() error { return e.Cause }

// LoadFailedIgnorable describes a per-module resolution failure that does
// not abort the whole Load. Load itself never returns it: a malformed or
// unresolvable module UUID is logged and the module is skipped (grounded
// on original_source/reader/LoadDump.cpp's log-and-continue on an empty
// binary path), and every fatal failure is reported as *LoadFailed.
type LoadFailedIgnorable struct {
	ModulePath string
	Reason     string
	Cause      error
}

func (e *LoadFailedIgnorable) Error() string {
	return fmt.Sprintf("target: module %q not resolved: %s", e.ModulePath, e.Reason)
}

func (e *LoadFailedIgnorable) Unwrap() error { return e.Cause }
