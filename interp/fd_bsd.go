// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package interp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func pipeCloexec() (r, w int, err error) {
	var p [2]int
	// Hold the fork lock so that no process started in between inherits
	// the pipe before it is marked close-on-exec.
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()
	if err := unix.Pipe(p[:]); err != nil {
		return -1, -1, err
	}
	unix.CloseOnExec(p[0])
	unix.CloseOnExec(p[1])
	return p[0], p[1], nil
}

func dup2(from, to int) error { return unix.Dup2(from, to) }
