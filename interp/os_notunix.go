// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package interp

import (
	"errors"
	"fmt"
	"runtime"
	"syscall"

	"mvdan.cc/vush/tree"
)

var errUnsupported = fmt.Errorf("process control is not supported on %s: %w",
	runtime.GOOS, errors.ErrUnsupported)

// OSSystem is the [System] backed by the real operating system.
// On this platform, every method fails.
type OSSystem struct {
	Executable string
}

func (s *OSSystem) StartProcess(string, []string, []int) (int, error) {
	return 0, errUnsupported
}

func (s *OSSystem) StartSubtree(tree.Node, []int, bool) (int, error) {
	return 0, errUnsupported
}

func (s *OSSystem) Wait(int) (int, error) { return 0, errUnsupported }
func (s *OSSystem) Reap(int) {}
func (s *OSSystem) Pipe() (int, int, error) { return -1, -1, errUnsupported }
func (s *OSSystem) Dup(int) (int, error) { return -1, errUnsupported }
func (s *OSSystem) Dup2(int, int) error { return errUnsupported }
func (s *OSSystem) Open(string, int, uint32) (int, error) { return -1, errUnsupported }
func (s *OSSystem) Close(int) error { return errUnsupported }
func (s *OSSystem) Chdir(string) error { return errUnsupported }

func closeOnExec(int) {}

func killProcess(int, syscall.Signal) error { return errUnsupported }
