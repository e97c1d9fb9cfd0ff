// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import "golang.org/x/sys/unix"

func pipeCloexec() (r, w int, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return p[0], p[1], nil
}

// dup2 uses dup3, as some architectures like arm64 lack the dup2 syscall.
func dup2(from, to int) error { return unix.Dup3(from, to, 0) }
