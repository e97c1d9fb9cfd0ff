// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package interp

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"mvdan.cc/vush/tree"
	"mvdan.cc/vush/tree/typedjson"
)

// OSSystem is the [System] backed by the real operating system.
type OSSystem struct {
	// Executable is the interpreter binary started by StartSubtree.
	// If empty, [os.Executable] is used. The binary must call [Init] first
	// thing in its main function.
	Executable string
}

var _ System = (*OSSystem)(nil)

func (s *OSSystem) StartProcess(program string, argv []string, files []int) (int, error) {
	path, err := exec.LookPath(program)
	if errors.Is(err, exec.ErrDot) {
		// execvp runs programs found via relative $PATH entries too.
		err = nil
	}
	if err != nil {
		var eerr *exec.Error
		if errors.As(err, &eerr) {
			return 0, eerr.Err
		}
		return 0, err
	}
	return forkExec(path, argv, os.Environ(), files, false)
}

func (s *OSSystem) StartSubtree(node tree.Node, files []int, detach bool) (int, error) {
	exe := s.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return 0, err
		}
	}
	var sb strings.Builder
	if err := typedjson.Encode(&sb, node); err != nil {
		return 0, err
	}
	env := subtreeEnviron(os.Environ(), strings.TrimSuffix(sb.String(), "\n"), files)
	return forkExec(exe, []string{"vush"}, env, files, detach)
}

func forkExec(path string, argv, env []string, files []int, detach bool) (int, error) {
	fds := make([]uintptr, len(files))
	for i, fd := range files {
		// ClosedFD wraps around to the value ForkExec treats as "close".
		fds[i] = uintptr(fd)
	}
	return syscall.ForkExec(path, argv, &syscall.ProcAttr{
		Env:   env,
		Files: fds,
		Sys:   &syscall.SysProcAttr{Setpgid: detach},
	})
}

func (s *OSSystem) Wait(pid int) (int, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue // interrupted by a signal; keep waiting
		}
		if err != nil {
			return 0, err
		}
		break
	}
	switch {
	case ws.Exited():
		return ws.ExitStatus(), nil
	case ws.Signaled():
		return 128 + int(ws.Signal()), nil
	}
	return 1, nil
}

func (s *OSSystem) Reap(pid int) {
	go s.Wait(pid)
}

func (s *OSSystem) Pipe() (r, w int, err error) { return pipeCloexec() }

func (s *OSSystem) Dup(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 10)
}

func (s *OSSystem) Dup2(from, to int) error {
	if from == to {
		// Still fail like dup2 does if the descriptor is not open.
		_, err := unix.FcntlInt(uintptr(from), unix.F_GETFD, 0)
		return err
	}
	return dup2(from, to)
}

func (s *OSSystem) Open(path string, flag int, perm uint32) (int, error) {
	fd, err := unix.Open(path, flag|unix.O_CLOEXEC, perm)
	if err != nil {
		return -1, &os.PathError{Op: "open", Path: path, Err: err}
	}
	return fd, nil
}

func (s *OSSystem) Close(fd int) error { return unix.Close(fd) }

// Chdir goes through the os package, so that it stays in sync with the
// process's working directory.
func (s *OSSystem) Chdir(dir string) error { return os.Chdir(dir) }

func closeOnExec(fd int) { unix.CloseOnExec(fd) }

func killProcess(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}
