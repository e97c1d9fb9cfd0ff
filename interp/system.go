// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"errors"
	"io/fs"
	"os/exec"
	"syscall"

	"mvdan.cc/vush/tree"
)

// System performs the operating system effects needed by a [Runner].
// [OSSystem] is the implementation used by default.
//
// Descriptor tables passed to the start methods are indexed by the
// descriptor number in the new process; each entry holds the interpreter's
// descriptor to install there, or [ClosedFD].
type System interface {
	// StartProcess looks up program in $PATH like execvp does, and starts
	// it with the given argument vector. Failing to launch the program is
	// reported as an error, and no process is left behind.
	StartProcess(program string, argv []string, files []int) (pid int, err error)

	// StartSubtree starts a new interpreter process which evaluates node and
	// then exits. A detached process is placed in a process group of its own.
	StartSubtree(node tree.Node, files []int, detach bool) (pid int, err error)

	// Wait blocks until the process exits and returns its status: the exit
	// code, or 128 plus the signal number if a signal terminated it.
	Wait(pid int) (status int, err error)

	// Reap arranges for the process to be waited for in the background,
	// dropping its status.
	Reap(pid int)

	// Pipe returns a new pipe's read and write ends, both close-on-exec.
	Pipe() (r, w int, err error)

	// Dup returns a close-on-exec duplicate of fd, numbered 10 or higher.
	Dup(fd int) (int, error)

	// Dup2 makes to refer to the same file as from.
	Dup2(from, to int) error

	// Open opens a close-on-exec descriptor. Relative paths are resolved
	// against the current directory.
	Open(path string, flag int, perm uint32) (int, error)

	Close(fd int) error

	// Chdir changes the interpreter's current directory.
	Chdir(dir string) error
}

// ClosedFD marks a descriptor which should not be open in a new process.
const ClosedFD = -1

// launchStatus turns an error from starting a program into the exit status
// a forked child would have reported after a failed exec: the error number.
func launchStatus(err error) int {
	var errno syscall.Errno
	switch {
	case errors.As(err, &errno):
		return int(errno) & 0xff
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return int(syscall.ENOENT)
	case errors.Is(err, fs.ErrPermission):
		return int(syscall.EACCES)
	}
	return 1
}
