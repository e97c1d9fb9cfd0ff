// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package tree

import (
	"errors"
	"fmt"
)

// Walk traverses a tree in depth-first order. It starts by calling f(node);
// if it returns true, Walk is called for each of the node's children, and
// finally f(nil) is called.
func Walk(node Node, f func(Node) bool) {
	if !f(node) {
		return
	}
	switch node := node.(type) {
	case *Command:
	case *Sequence:
		Walk(node.First, f)
		Walk(node.Second, f)
	case *Pipe:
		Walk(node.Left, f)
		Walk(node.Right, f)
	case *Redirect:
		Walk(node.Child, f)
	case *Subshell:
		Walk(node.Child, f)
	case *Detach:
		Walk(node.Child, f)
	default:
		panic(fmt.Sprintf("tree.Walk: unexpected node type %T", node))
	}
	f(nil)
}

// ErrInvalid is wrapped by every error returned by [Validate].
var ErrInvalid = errors.New("invalid command tree")

// Validate checks that a tree is well formed: every child is present, every
// command has a program and a non-empty argument vector, and every
// redirect has a sensible descriptor and destination.
func Validate(node Node) error {
	if node == nil {
		return fmt.Errorf("%w: nil node", ErrInvalid)
	}
	var err error
	Walk(node, func(n Node) bool {
		if err != nil || n == nil {
			return false
		}
		err = validateNode(n)
		return err == nil
	})
	return err
}

// isNilPointer reports whether node holds a nil pointer, which a plain
// comparison with nil does not catch.
func isNilPointer(node Node) bool {
	switch node := node.(type) {
	case *Command:
		return node == nil
	case *Sequence:
		return node == nil
	case *Pipe:
		return node == nil
	case *Redirect:
		return node == nil
	case *Subshell:
		return node == nil
	case *Detach:
		return node == nil
	}
	return false
}

func validateNode(node Node) error {
	if isNilPointer(node) {
		return fmt.Errorf("%w: nil %T", ErrInvalid, node)
	}
	switch node := node.(type) {
	case *Command:
		return validateCommand(node)
	case *Sequence:
		if node.First == nil || node.Second == nil {
			return fmt.Errorf("%w: sequence with a missing side", ErrInvalid)
		}
	case *Pipe:
		if node.Left == nil || node.Right == nil {
			return fmt.Errorf("%w: pipe with a missing leg", ErrInvalid)
		}
	case *Redirect:
		if node.Child == nil {
			return fmt.Errorf("%w: redirect without a command", ErrInvalid)
		}
		if node.Fd < 0 {
			return fmt.Errorf("%w: redirect of negative descriptor %d", ErrInvalid, node.Fd)
		}
		switch {
		case node.Mode > Append:
			return fmt.Errorf("%w: unknown redirect mode %v", ErrInvalid, node.Mode)
		case node.Mode.UsesPath() && node.Path == "":
			return fmt.Errorf("%w: %v redirect without a path", ErrInvalid, node.Mode)
		case node.Mode == Duplicate && node.Source < 0:
			return fmt.Errorf("%w: duplicate of negative descriptor %d", ErrInvalid, node.Source)
		}
	case *Subshell:
		if node.Child == nil {
			return fmt.Errorf("%w: empty subshell", ErrInvalid)
		}
	case *Detach:
		if node.Child == nil {
			return fmt.Errorf("%w: empty detached command", ErrInvalid)
		}
	}
	return nil
}

func validateCommand(c *Command) error {
	switch {
	case c.Program == "":
		return fmt.Errorf("%w: command without a program", ErrInvalid)
	case len(c.Argv) == 0:
		return fmt.Errorf("%w: %s: empty argument vector", ErrInvalid, c.Program)
	}
	return nil
}
