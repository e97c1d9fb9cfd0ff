// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package interp implements the execution core of the vush interactive
// shell. It evaluates [tree.Node] command trees by starting real processes,
// connecting them with pipes, and temporarily replacing the interpreter's own
// standard descriptors for redirections. Redirections of any higher
// descriptor are only applied to the processes the interpreter starts.
//
// Subshells, detached commands and built-in commands in pipe legs need a
// process of their own which keeps evaluating a subtree. Since Go programs
// cannot fork without exec, such processes re-execute the interpreter binary,
// which must call [Init] first thing in its main function.
package interp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"mvdan.cc/vush/tree"
)

// A Runner evaluates command trees. It can be reused across many calls to
// [Runner.Run], but it is not safe for concurrent use, as it manipulates the
// file descriptors of the whole process. Use [New] to build a new Runner.
type Runner struct {
	sys System
	reg *Registry
	log *slog.Logger

	// stderr receives diagnostics such as launch and cd errors.
	stderr io.Writer

	// getenv is used by cd to find $HOME.
	getenv func(string) string

	// virtual maps descriptors 3 and above, as seen by new processes, to
	// the interpreter descriptors that open Redirect scopes opened for them.
	// Those numbers may belong to the Go runtime, so they are never replaced
	// in the interpreter itself.
	virtual map[int]int

	exiting  bool  // an exit built-in ran
	exitCode uint8 // its status

	lastStatus int
}

// New creates a new Runner, applying a number of options. If applying any of
// the options results in an error, it is returned.
//
// Any unset options fall back to their defaults: the real operating system,
// a registry with [DefaultCapacity], diagnostics to [os.Stderr], and no
// logging.
func New(opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		getenv:  os.Getenv,
		virtual: make(map[int]int),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.sys == nil {
		r.sys = &OSSystem{}
	}
	if r.reg == nil {
		r.reg = NewRegistry(DefaultCapacity)
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.stderr == nil {
		r.stderr = os.Stderr
	}
	return r, nil
}

// RunnerOption can be passed to [New] to alter a [Runner]'s behaviour.
type RunnerOption func(*Runner) error

// WithSystem sets the operating system layer used to start processes and
// manipulate descriptors.
func WithSystem(sys System) RunnerOption {
	return func(r *Runner) error {
		if sys == nil {
			return fmt.Errorf("interp.WithSystem: nil System")
		}
		r.sys = sys
		return nil
	}
}

// WithRegistry sets the registry of outstanding child processes. Share it
// with [ForwardSignals] to forward interrupts to those processes.
func WithRegistry(reg *Registry) RunnerOption {
	return func(r *Runner) error {
		if reg == nil {
			return fmt.Errorf("interp.WithRegistry: nil Registry")
		}
		r.reg = reg
		return nil
	}
}

// Stderr sets where the interpreter writes its own diagnostics.
// Child processes always use the interpreter's descriptor 2.
func Stderr(w io.Writer) RunnerOption {
	return func(r *Runner) error {
		r.stderr = w
		return nil
	}
}

// Logger sets a logger for debugging the interpreter's process handling.
func Logger(log *slog.Logger) RunnerOption {
	return func(r *Runner) error {
		r.log = log
		return nil
	}
}

// Getenv sets the function used to look up environment variables such as
// $HOME. It defaults to [os.Getenv].
func Getenv(fn func(string) string) RunnerOption {
	return func(r *Runner) error {
		r.getenv = fn
		return nil
	}
}

// ExitStatus is the status code requested by the exit built-in.
type ExitStatus uint8

func (s ExitStatus) Error() string { return fmt.Sprintf("exit status %d", s) }

// Run evaluates a command tree to completion.
//
// Failures inside the tree, such as a program which cannot be found, are
// reported to the Runner's stderr and reflected by [Runner.LastStatus];
// they are not returned. Run only returns an error if the tree is malformed,
// if ctx is done, or as an [ExitStatus] if the exit built-in was used, in
// which case the caller is expected to terminate with that status.
func (r *Runner) Run(ctx context.Context, node tree.Node) error {
	if err := tree.Validate(node); err != nil {
		return err
	}
	r.exiting = false
	r.node(ctx, node)
	if r.exiting {
		return ExitStatus(r.exitCode)
	}
	return ctx.Err()
}

// Exited reports whether the last Run call ran the exit built-in.
func (r *Runner) Exited() bool { return r.exiting }

// LastStatus returns the status of the last foreground command: its exit
// code, 128 plus the signal number if it was killed, or the error number if
// it could not be launched.
func (r *Runner) LastStatus() int { return r.lastStatus }

// Registry returns the registry of outstanding child processes.
func (r *Runner) Registry() *Registry { return r.reg }

func (r *Runner) errf(format string, a ...any) {
	fmt.Fprintf(r.stderr, format, a...)
}
