// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"mvdan.cc/vush/tree/typedjson"
)

// subtreeEnv carries the typed JSON encoding of the command tree a re-executed
// interpreter process must evaluate.
const subtreeEnv = "VUSH_SUBTREE"

// inheritedEnv lists, separated by commas, the descriptors above 2 which a
// re-executed interpreter process was started with.
const inheritedEnv = "VUSH_FDS"

// Init must be called at the very start of the main function of any program
// which runs a [Runner] with the default [OSSystem], before flags are parsed
// or any file is opened.
//
// When the current process was started to evaluate a subshell, a detached
// command, or a built-in in a pipe leg, Init evaluates that command tree and
// exits, never returning. Otherwise it does nothing.
func Init() {
	enc, ok := os.LookupEnv(subtreeEnv)
	if !ok {
		return
	}
	inherited := os.Getenv(inheritedEnv)
	// Grandchildren must not inherit the subtree.
	os.Unsetenv(subtreeEnv)
	os.Unsetenv(inheritedEnv)
	os.Exit(runSubtree(enc, inherited))
}

func runSubtree(enc, inherited string) int {
	node, err := typedjson.Decode(strings.NewReader(enc))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vush: %v\n", err)
		return 1
	}
	fds, err := parseInherited(inherited)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vush: %s: %v\n", inheritedEnv, err)
		return 1
	}
	r, err := New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vush: %v\n", err)
		return 1
	}
	for _, fd := range fds {
		// Processes started by the subtree get them through files,
		// like in the parent interpreter.
		closeOnExec(fd)
		r.virtual[fd] = fd
	}
	stop := ForwardSignals(r.Registry(), syscall.SIGINT)
	defer stop()

	err = r.Run(context.Background(), node)
	var status ExitStatus
	if errors.As(err, &status) {
		return int(status)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vush: %v\n", err)
	}
	// A subtree's own failures do not affect its status.
	return 0
}

// subtreeEnviron returns env with the subtree variable set to enc and the
// inherited descriptors listed, replacing any previous values.
func subtreeEnviron(env []string, enc string, files []int) []string {
	var inherited []string
	for fd, f := range files {
		if fd > 2 && f != ClosedFD {
			inherited = append(inherited, strconv.Itoa(fd))
		}
	}
	out := make([]string, 0, len(env)+2)
	for _, kv := range env {
		if !strings.HasPrefix(kv, subtreeEnv+"=") && !strings.HasPrefix(kv, inheritedEnv+"=") {
			out = append(out, kv)
		}
	}
	out = append(out, subtreeEnv+"="+enc)
	if len(inherited) > 0 {
		out = append(out, inheritedEnv+"="+strings.Join(inherited, ","))
	}
	return out
}

func parseInherited(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var fds []int
	for _, field := range strings.Split(s, ",") {
		fd, err := strconv.Atoi(field)
		if err != nil || fd < 3 {
			return nil, fmt.Errorf("invalid descriptor %q", field)
		}
		fds = append(fds, fd)
	}
	return fds, nil
}
