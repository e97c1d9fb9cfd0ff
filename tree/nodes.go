// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package tree defines the command trees evaluated by the interpreter.
//
// A tree is built once per input, is never modified afterwards, and owns all
// of its nodes; no node is shared between two parents.
package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is one of [*Command], [*Sequence], [*Pipe], [*Redirect], [*Subshell]
// or [*Detach].
type Node interface {
	fmt.Stringer
	nodeKind()
}

func (*Command) nodeKind()  {}
func (*Sequence) nodeKind() {}
func (*Pipe) nodeKind()     {}
func (*Redirect) nodeKind() {}
func (*Subshell) nodeKind() {}
func (*Detach) nodeKind()   {}

// Command runs a single program. Argv[0] is conventionally the program name.
type Command struct {
	Program string
	Argv    []string
}

// Cmd is a shortcut to build a [*Command] whose argv starts with the program.
func Cmd(program string, args ...string) *Command {
	return &Command{Program: program, Argv: append([]string{program}, args...)}
}

// Sequence runs First to completion and then Second, regardless of how First
// finished.
type Sequence struct {
	First, Second Node
}

// Pipe connects the standard output of Left to the standard input of Right.
type Pipe struct {
	Left, Right *Command
}

// RedirMode selects how a [Redirect] obtains its new descriptor.
type RedirMode uint8

const (
	Duplicate RedirMode = iota // Fd becomes an alias of Source
	ReadWrite                  // open Path for reading and writing; it must exist
	Truncate                   // open or create Path, truncating it
	Append                     // open Path for reading and writing, appending
)

var redirModeNames = [...]string{
	Duplicate: "Duplicate",
	ReadWrite: "ReadWrite",
	Truncate:  "Truncate",
	Append:    "Append",
}

func (m RedirMode) String() string {
	if int(m) < len(redirModeNames) {
		return redirModeNames[m]
	}
	return "RedirMode(" + strconv.Itoa(int(m)) + ")"
}

// UsesPath reports whether the mode opens a file by path.
func (m RedirMode) UsesPath() bool { return m != Duplicate }

// Redirect replaces descriptor Fd while Child is evaluated, restoring it
// afterwards.
type Redirect struct {
	Child Node
	Fd    int
	Mode  RedirMode

	Source int    // only for Duplicate
	Path   string // only for ReadWrite, Truncate and Append
}

// Subshell evaluates Child in a separate interpreter process.
type Subshell struct {
	Child Node
}

// Detach evaluates Child in a separate interpreter process without waiting
// for it.
type Detach struct {
	Child Node
}

// Seq folds nodes into left-nested sequences, so that Seq(a, b, c) is
// Sequence{Sequence{a, b}, c}. Nil nodes are skipped, and nil is returned if
// no nodes remain.
func Seq(nodes ...Node) Node {
	var acc Node
	for _, n := range nodes {
		switch {
		case n == nil:
		case acc == nil:
			acc = n
		default:
			acc = &Sequence{First: acc, Second: n}
		}
	}
	return acc
}

func (c *Command) String() string {
	var sb strings.Builder
	if len(c.Argv) == 0 {
		sb.WriteString(quote(c.Program))
	}
	for i, arg := range c.Argv {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if i == 0 && arg != c.Program {
			// argv[0] differs from the program; show both.
			sb.WriteString(quote(c.Program))
			sb.WriteString("[")
			sb.WriteString(quote(arg))
			sb.WriteString("]")
			continue
		}
		sb.WriteString(quote(arg))
	}
	return sb.String()
}

func (s *Sequence) String() string {
	if _, ok := s.First.(*Detach); ok {
		// "&" already separates the two commands.
		return s.First.String() + " " + s.Second.String()
	}
	return s.First.String() + "; " + s.Second.String()
}

func (p *Pipe) String() string {
	return p.Left.String() + " | " + p.Right.String()
}

func (r *Redirect) String() string {
	var sb strings.Builder
	sb.WriteString(r.Child.String())
	sb.WriteByte(' ')
	switch r.Mode {
	case Duplicate:
		if r.Fd != 1 {
			sb.WriteString(strconv.Itoa(r.Fd))
		}
		sb.WriteString(">&")
		sb.WriteString(strconv.Itoa(r.Source))
		return sb.String()
	case ReadWrite:
		if r.Fd != 0 {
			sb.WriteString(strconv.Itoa(r.Fd))
		}
		sb.WriteString("<>")
	case Truncate:
		if r.Fd != 1 {
			sb.WriteString(strconv.Itoa(r.Fd))
		}
		sb.WriteString(">")
	case Append:
		if r.Fd != 1 {
			sb.WriteString(strconv.Itoa(r.Fd))
		}
		sb.WriteString(">>")
	default:
		sb.WriteString(r.Mode.String())
	}
	sb.WriteString(quote(r.Path))
	return sb.String()
}

func (s *Subshell) String() string { return "(" + s.Child.String() + ")" }

func (d *Detach) String() string { return d.Child.String() + " &" }

// quote returns s unchanged if it only contains characters that need no
// quoting in a shell word, and a single-quoted version otherwise.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	plain := true
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		case strings.ContainsRune("%+,-./:=@_^", r):
		default:
			plain = false
		}
	}
	if plain {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
