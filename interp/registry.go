// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"fmt"
	"sync/atomic"
	"syscall"
)

// DefaultCapacity is the number of processes a single interpreter process can
// have outstanding at once: the two legs of a pipe. Nested subshells run in
// interpreter processes of their own, each with its own registry.
const DefaultCapacity = 2

// Registry tracks the child processes an interpreter is currently waiting
// for, so that an interrupt received by the interpreter can be forwarded to
// them.
//
// A registry grows by appending and shrinks from the end, mirroring how
// processes are started and reaped. Register and Unregister must only be
// called by the goroutine running the interpreter, while Broadcast may run
// concurrently with them; every mutation is a single atomic store of either a
// slot or the length, so Broadcast never sees a half-written entry.
type Registry struct {
	pids []atomic.Int64 // fixed length; only pids[:n] are live
	n    atomic.Int32

	kill func(pid int, sig syscall.Signal) error
}

// NewRegistry creates a registry which can hold up to capacity processes.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		panic("interp.NewRegistry: capacity must be positive")
	}
	return &Registry{
		pids: make([]atomic.Int64, capacity),
		kill: killProcess,
	}
}

// Register records a newly started process. Going over the registry's
// capacity, or registering a pid that is already tracked, is a programming
// error and panics.
func (r *Registry) Register(pid int) {
	n := int(r.n.Load())
	if n == len(r.pids) {
		panic(fmt.Sprintf("interp: registry full, cannot register pid %d", pid))
	}
	for i := range n {
		if r.pids[i].Load() == int64(pid) {
			panic(fmt.Sprintf("interp: pid %d registered twice", pid))
		}
	}
	r.pids[n].Store(int64(pid))
	r.n.Store(int32(n + 1))
}

// Unregister removes the most recently registered process, which must be pid.
// It is called exactly once per Register, right after the process is reaped.
func (r *Registry) Unregister(pid int) {
	n := int(r.n.Load())
	if n == 0 {
		panic(fmt.Sprintf("interp: unregister of pid %d from an empty registry", pid))
	}
	if top := r.pids[n-1].Load(); top != int64(pid) {
		panic(fmt.Sprintf("interp: unregister of pid %d, but the last registered pid is %d", pid, top))
	}
	r.n.Store(int32(n - 1))
}

// Broadcast sends sig to every tracked process. Delivery is best-effort:
// errors, such as a process which exited but was not reaped yet, are ignored.
// It does not allocate nor block.
func (r *Registry) Broadcast(sig syscall.Signal) {
	n := int(r.n.Load())
	for i := range n {
		_ = r.kill(int(r.pids[i].Load()), sig)
	}
}

// Len returns the number of tracked processes.
func (r *Registry) Len() int { return int(r.n.Load()) }

// Pids returns a copy of the tracked pids, oldest first.
func (r *Registry) Pids() []int {
	n := int(r.n.Load())
	pids := make([]int, n)
	for i := range pids {
		pids[i] = int(r.pids[i].Load())
	}
	return pids
}
