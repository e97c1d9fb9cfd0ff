// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"mvdan.cc/vush/tree"
)

func (r *Runner) stop(ctx context.Context) bool {
	return r.exiting || ctx.Err() != nil
}

func (r *Runner) node(ctx context.Context, node tree.Node) {
	if r.stop(ctx) {
		return
	}
	switch node := node.(type) {
	case *tree.Command:
		r.command(ctx, node)
	case *tree.Sequence:
		r.node(ctx, node.First)
		r.node(ctx, node.Second)
	case *tree.Pipe:
		r.pipe(ctx, node)
	case *tree.Redirect:
		r.redirect(ctx, node)
	case *tree.Subshell:
		r.subshell(ctx, node)
	case *tree.Detach:
		r.detach(node)
	default:
		panic(fmt.Sprintf("unhandled node: %T", node))
	}
}

func (r *Runner) command(ctx context.Context, cm *tree.Command) {
	if isBuiltin(cm.Program) {
		r.builtin(cm)
		return
	}
	pid, err := r.sys.StartProcess(cm.Program, cm.Argv, r.files())
	if err != nil {
		r.launchFailed(cm.Program, err)
		return
	}
	r.log.Debug("started", "pid", pid, "cmd", cm.String())
	r.reg.Register(pid)
	r.lastStatus = r.wait(ctx, pid)
	r.reg.Unregister(pid)
}

func (r *Runner) launchFailed(program string, err error) {
	r.errf("vush: %s: %v\n", program, err)
	r.lastStatus = launchStatus(err)
}

// wait reaps pid. If ctx is done while waiting, the registered processes
// are interrupted.
func (r *Runner) wait(ctx context.Context, pid int) int {
	stop := context.AfterFunc(ctx, func() {
		r.reg.Broadcast(syscall.SIGINT)
	})
	defer stop()
	status, err := r.sys.Wait(pid)
	if err != nil {
		r.errf("vush: wait for pid %d: %v\n", pid, err)
		return 1
	}
	r.log.Debug("reaped", "pid", pid, "status", status)
	return status
}

// files returns the descriptor table for a new process: the standard
// descriptors, plus any higher ones set up by open Redirect scopes.
func (r *Runner) files() []int {
	n := 3
	for fd := range r.virtual {
		n = max(n, fd+1)
	}
	files := make([]int, n)
	for i := range files {
		files[i] = ClosedFD
	}
	files[0], files[1], files[2] = 0, 1, 2
	for fd, vfd := range r.virtual {
		files[fd] = vfd
	}
	return files
}

func (r *Runner) pipe(ctx context.Context, p *tree.Pipe) {
	rfd, wfd, err := r.sys.Pipe()
	if err != nil {
		r.errf("vush: pipe: %v\n", err)
		r.lastStatus = 1
		return
	}
	left := r.files()
	left[1] = wfd
	lpid, lerr := r.startLeg(p.Left, left)
	if lerr == nil {
		r.reg.Register(lpid)
	}
	right := r.files()
	right[0] = rfd
	rpid, rerr := r.startLeg(p.Right, right)
	if rerr == nil {
		r.reg.Register(rpid)
	}

	// Only the legs may hold the pipe open, so that the reader sees EOF
	// once the writer is done.
	r.sys.Close(rfd)
	r.sys.Close(wfd)

	// Reap in reverse order of registration, so that the registry never
	// holds a pid which was already reaped.
	if rerr == nil {
		r.lastStatus = r.wait(ctx, rpid)
		r.reg.Unregister(rpid)
	} else {
		r.launchFailed(p.Right.Program, rerr)
	}
	if lerr == nil {
		r.wait(ctx, lpid)
		r.reg.Unregister(lpid)
	} else {
		status := r.lastStatus
		r.launchFailed(p.Left.Program, lerr)
		r.lastStatus = status // the right leg decides a pipe's status
	}
}

// startLeg starts one side of a pipe. Built-ins need an interpreter process
// of their own, so that cd and exit only affect the leg.
func (r *Runner) startLeg(cm *tree.Command, files []int) (int, error) {
	var pid int
	var err error
	if isBuiltin(cm.Program) {
		pid, err = r.sys.StartSubtree(cm, files, false)
	} else {
		pid, err = r.sys.StartProcess(cm.Program, cm.Argv, files)
	}
	if err == nil {
		r.log.Debug("started", "pid", pid, "cmd", cm.String(), "stdin", files[0], "stdout", files[1])
	}
	return pid, err
}

var redirFlags = [...]int{
	tree.ReadWrite: os.O_RDWR,
	tree.Truncate:  os.O_RDWR | os.O_CREATE | os.O_TRUNC,
	tree.Append:    os.O_RDWR | os.O_APPEND,
}

func (r *Runner) redirect(ctx context.Context, rd *tree.Redirect) {
	if rd.Fd > 2 {
		r.redirectVirtual(ctx, rd)
		return
	}
	saved, err := r.sys.Dup(rd.Fd)
	switch {
	case errors.Is(err, syscall.EBADF):
		saved = ClosedFD // nothing to restore; close it afterwards
	case err != nil:
		r.errf("vush: %d: %v\n", rd.Fd, err)
		r.lastStatus = 1
		return
	}
	if err := r.install(rd); err != nil {
		r.errf("vush: %v\n", err)
		r.lastStatus = 1
		r.release(saved)
		return
	}
	r.log.Debug("redirected", "fd", rd.Fd, "mode", rd.Mode, "saved", saved)
	defer r.restore(rd.Fd, saved)
	r.node(ctx, rd.Child)
}

// redirectVirtual handles descriptors above 2 without touching the
// interpreter's own: the destination is opened wherever the kernel puts it,
// and only new processes see it under rd.Fd.
func (r *Runner) redirectVirtual(ctx context.Context, rd *tree.Redirect) {
	fd, err := r.open(rd)
	if err != nil {
		r.errf("vush: %v\n", err)
		r.lastStatus = 1
		return
	}
	prev, shadowed := r.virtual[rd.Fd]
	r.virtual[rd.Fd] = fd
	r.log.Debug("redirected", "fd", rd.Fd, "mode", rd.Mode, "as", fd)
	defer func() {
		r.sys.Close(fd)
		if shadowed {
			r.virtual[rd.Fd] = prev
		} else {
			delete(r.virtual, rd.Fd)
		}
	}()
	r.node(ctx, rd.Child)
}

// open returns a new descriptor for the destination of rd, never one of the
// standard descriptors.
func (r *Runner) open(rd *tree.Redirect) (int, error) {
	if rd.Mode == tree.Duplicate {
		src, err := r.source(rd.Source)
		if err != nil {
			return ClosedFD, err
		}
		fd, err := r.sys.Dup(src)
		if err != nil {
			return ClosedFD, fmt.Errorf("%d: %w", rd.Source, err)
		}
		return fd, nil
	}
	fd, err := r.sys.Open(rd.Path, redirFlags[rd.Mode], 0o600)
	if err != nil || fd > 2 {
		return fd, err
	}
	// A standard descriptor was closed, and open reused its number.
	nfd, err := r.sys.Dup(fd)
	r.sys.Close(fd)
	return nfd, err
}

// source returns the interpreter descriptor which a Duplicate redirect
// copies from. Descriptors above 2 only exist if a Redirect scope set them up.
func (r *Runner) source(fd int) (int, error) {
	if fd <= 2 {
		return fd, nil
	}
	if vfd, ok := r.virtual[fd]; ok {
		return vfd, nil
	}
	return ClosedFD, fmt.Errorf("%d: %w", fd, syscall.EBADF)
}

// install makes one of the standard descriptors refer to the redirect's
// destination.
func (r *Runner) install(rd *tree.Redirect) error {
	if rd.Mode == tree.Duplicate {
		src, err := r.source(rd.Source)
		if err != nil {
			return err
		}
		if err := r.sys.Dup2(src, rd.Fd); err != nil {
			return fmt.Errorf("%d: %w", rd.Source, err)
		}
		return nil
	}
	fd, err := r.sys.Open(rd.Path, redirFlags[rd.Mode], 0o600)
	if err != nil {
		return err
	}
	if fd == rd.Fd {
		// The descriptor was closed, and open reused its number.
		return nil
	}
	err = r.sys.Dup2(fd, rd.Fd)
	r.sys.Close(fd)
	return err
}

func (r *Runner) restore(fd, saved int) {
	if saved == ClosedFD {
		r.sys.Close(fd)
		return
	}
	if err := r.sys.Dup2(saved, fd); err != nil {
		r.errf("vush: restoring %d: %v\n", fd, err)
	}
	r.release(saved)
}

func (r *Runner) release(saved int) {
	if saved != ClosedFD {
		r.sys.Close(saved)
	}
}

func (r *Runner) subshell(ctx context.Context, s *tree.Subshell) {
	pid, err := r.sys.StartSubtree(s.Child, r.files(), false)
	if err != nil {
		r.errf("vush: subshell: %v\n", err)
		r.lastStatus = 1
		return
	}
	r.log.Debug("started subshell", "pid", pid)
	r.reg.Register(pid)
	r.lastStatus = r.wait(ctx, pid)
	r.reg.Unregister(pid)
}

// detach starts a background interpreter which is never waited for nor
// registered; it runs in its own process group, so interrupts meant for the
// foreground do not reach it either.
func (r *Runner) detach(d *tree.Detach) {
	pid, err := r.sys.StartSubtree(d.Child, r.files(), true)
	if err != nil {
		r.errf("vush: detach: %v\n", err)
		r.lastStatus = 1
		return
	}
	r.log.Debug("detached", "pid", pid)
	r.sys.Reap(pid)
	r.lastStatus = 0
}
