package machtask

import "fmt"

// KernError wraps a non-KERN_SUCCESS kern_return_t. spec.md §7 requires
// every such failure to surface as MachFailure.
type KernError struct {
	Call string
	Code int32
}

func (e *KernError) Error() string {
	return fmt.Sprintf("machtask: %s: kern_return_t=%d", e.Call, e.Code)
}

// machFailure reports err (non-nil) wrapped as a *KernError if call failed
// with a kern_return_t other than KERN_SUCCESS (0).
func machFailure(call string, kr int32) error {
	if kr == 0 {
		return nil
	}
	return &KernError{Call: call, Code: kr}
}

// WalkFailed is returned by RegionWalker for any kernel error other than
// KERN_INVALID_ADDRESS, which terminates a walk normally (spec.md §4.4).
type WalkFailed struct {
	Cause error
}

func (e *WalkFailed) Error() string { return fmt.Sprintf("machtask: region walk failed: %v", e.Cause) }
func (e *WalkFailed) Unwrap() error { return e.Cause }

// SamplingFailed is returned by ThreadSampler when a register flavor's
// returned count doesn't match its expected count (spec.md §4.2).
type SamplingFailed struct {
	Cause error
}

func (e *SamplingFailed) Error() string {
	return fmt.Sprintf("machtask: thread sampling failed: %v", e.Cause)
}
func (e *SamplingFailed) Unwrap() error { return e.Cause }

// RendezvousFailed is returned by the Rendezvous handshake on a framed
// channel read/write failure, a bootstrap check-in/lookup failure, or a
// Mach send/receive failure. The handshake applies no timeout of its own:
// its channel reads and mach_msg calls block until they complete.
type RendezvousFailed struct {
	Cause error
}

func (e *RendezvousFailed) Error() string {
	return fmt.Sprintf("machtask: rendezvous failed: %v", e.Cause)
}
func (e *RendezvousFailed) Unwrap() error { return e.Cause }
