// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"errors"
	"io/fs"

	"mvdan.cc/vush/tree"
)

// isBuiltin reports whether the program must run inside the interpreter
// process, since it changes the interpreter's own state.
func isBuiltin(name string) bool {
	switch name {
	case "cd", "exit":
		return true
	}
	return false
}

func (r *Runner) builtin(cm *tree.Command) {
	args := cm.Argv[1:]
	switch cm.Program {
	case "exit":
		r.exitCode = 0
		if len(args) > 0 {
			r.exitCode = uint8(atoi(args[0]))
		}
		r.exiting = true
		r.lastStatus = int(r.exitCode)
	case "cd":
		var path string
		if len(args) > 0 {
			path = args[0]
		} else {
			path = r.getenv("HOME")
		}
		r.lastStatus = r.changeDir(path)
	default:
		panic("unhandled builtin: " + cm.Program)
	}
}

func (r *Runner) changeDir(path string) int {
	if err := r.sys.Chdir(path); err != nil {
		var perr *fs.PathError
		if errors.As(err, &perr) {
			err = perr.Err
		}
		r.errf("vush: cd: %s: %v\n", path, err)
		return 1
	}
	r.log.Debug("changed directory", "dir", path)
	return 0
}

// atoi parses an optional sign followed by decimal digits, stopping at the
// first other character. Input without any digits yields zero. The result
// wraps around instead of overflowing.
func atoi(s string) int {
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n := 0
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}
