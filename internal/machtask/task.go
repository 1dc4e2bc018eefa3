//go:build darwin

package machtask

/*
#include <mach/mach.h>
*/
import "C"

import "sync"

// TaskHandle owns a send right on a target's Mach task port, received
// over Rendezvous rather than task_for_pid. It exclusively owns the
// right until Close; all other machtask operations hold a *TaskHandle
// and never deallocate the underlying port themselves.
//
// Grounded on the cgo-wrapped task_t idiom in
// other_examples/monsterxx03-gospy__mem_reader_darwin.go.
type TaskHandle struct {
	port C.mach_port_t

	mu     sync.Mutex
	closed bool
}

// newTaskHandle wraps an already-acquired send right. Ownership passes to
// the returned TaskHandle.
func newTaskHandle(port C.mach_port_t) *TaskHandle {
	return &TaskHandle{port: port}
}

// Suspend freezes every thread in the task. WriteDump calls this once,
// around the entire capture, and Resume unconditionally on every exit
// path (spec.md §5).
func (t *TaskHandle) Suspend() error {
	return machFailure("task_suspend", int32(C.task_suspend(t.port)))
}

// Resume reverses Suspend.
func (t *TaskHandle) Resume() error {
	return machFailure("task_resume", int32(C.task_resume(t.port)))
}

// Close deallocates the send right. Safe to call more than once.
func (t *TaskHandle) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return machFailure("mach_port_deallocate", int32(C.mach_port_deallocate(C.mach_task_self_, t.port)))
}

// SelfHandle returns a TaskHandle over the writer's own task, used by
// tests and by callers that want to exercise RegionWalker/ThreadSampler
// against the current process rather than a received port.
func SelfHandle() *TaskHandle {
	return newTaskHandle(C.mach_task_self_)
}
