// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package parse turns shell source into command trees for the interpreter.
//
// Parsing is done by [mvdan.cc/sh/v3/syntax]; this package lowers the
// resulting syntax tree to a [tree.Node], rejecting the many shell features
// which the interpreter does not implement, such as expansions, control flow,
// or pipelines of more than two commands.
package parse

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"mvdan.cc/vush/tree"
)

// UnsupportedError is returned when the input is valid shell, but uses a
// feature which has no command tree equivalent.
type UnsupportedError struct {
	Filename string
	Pos      syntax.Pos
	Feature  string
}

func (e UnsupportedError) Error() string {
	var sb strings.Builder
	if e.Filename != "" {
		sb.WriteString(e.Filename + ":")
	}
	fmt.Fprintf(&sb, "%s: %s are not supported", e.Pos, e.Feature)
	return sb.String()
}

// Parse reads shell source from r and returns its command tree.
// An input without any commands results in a nil node.
//
// Errors are either a [syntax.ParseError], which can be checked with
// [IsIncomplete], or an [UnsupportedError].
func Parse(r io.Reader, name string) (tree.Node, error) {
	f, err := syntax.NewParser().Parse(r, name)
	if err != nil {
		return nil, err
	}
	return Lower(f)
}

// IsIncomplete reports whether a parse error could have been avoided with
// more input, such as an unclosed quote or parenthesis.
func IsIncomplete(err error) bool {
	return syntax.IsIncomplete(err)
}

// Lower converts a parsed shell file to a command tree.
func Lower(f *syntax.File) (tree.Node, error) {
	l := lowerer{name: f.Name}
	return l.stmts(f.Stmts)
}

type lowerer struct {
	name string
}

func (l *lowerer) unsupported(pos syntax.Pos, feature string) error {
	return UnsupportedError{Filename: l.name, Pos: pos, Feature: feature}
}

func (l *lowerer) stmts(stmts []*syntax.Stmt) (tree.Node, error) {
	nodes := make([]tree.Node, 0, len(stmts))
	for _, stmt := range stmts {
		node, err := l.stmt(stmt)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return tree.Seq(nodes...), nil
}

func (l *lowerer) stmt(s *syntax.Stmt) (tree.Node, error) {
	switch {
	case s.Negated:
		return nil, l.unsupported(s.Pos(), "negated commands")
	case s.Coprocess:
		return nil, l.unsupported(s.Pos(), "coprocesses")
	case s.Cmd == nil:
		return nil, l.unsupported(s.Pos(), "redirects without a command")
	}
	node, err := l.command(s.Cmd)
	if err != nil {
		return nil, err
	}
	if node == nil {
		// e.g. an empty block
		return nil, l.unsupported(s.Pos(), "empty command groups")
	}
	// The first redirect is applied first, so it must be the outermost.
	for i := len(s.Redirs) - 1; i >= 0; i-- {
		if node, err = l.redirect(s.Redirs[i], node); err != nil {
			return nil, err
		}
	}
	if s.Background {
		node = &tree.Detach{Child: node}
	}
	return node, nil
}

func (l *lowerer) command(cmd syntax.Command) (tree.Node, error) {
	switch cmd := cmd.(type) {
	case *syntax.CallExpr:
		return l.call(cmd)
	case *syntax.BinaryCmd:
		switch cmd.Op {
		case syntax.Pipe:
		case syntax.PipeAll:
			return nil, l.unsupported(cmd.OpPos, "|& pipes")
		default:
			return nil, l.unsupported(cmd.OpPos, cmd.Op.String()+" lists")
		}
		left, err := l.pipeLeg(cmd.X)
		if err != nil {
			return nil, err
		}
		right, err := l.pipeLeg(cmd.Y)
		if err != nil {
			return nil, err
		}
		return &tree.Pipe{Left: left, Right: right}, nil
	case *syntax.Subshell:
		child, err := l.stmts(cmd.Stmts)
		if err != nil || child == nil {
			return nil, err
		}
		return &tree.Subshell{Child: child}, nil
	case *syntax.Block:
		return l.stmts(cmd.Stmts)
	case *syntax.IfClause:
		return nil, l.unsupported(cmd.Pos(), "if clauses")
	case *syntax.WhileClause:
		return nil, l.unsupported(cmd.Pos(), "loops")
	case *syntax.ForClause:
		return nil, l.unsupported(cmd.Pos(), "loops")
	case *syntax.CaseClause:
		return nil, l.unsupported(cmd.Pos(), "case clauses")
	case *syntax.FuncDecl:
		return nil, l.unsupported(cmd.Pos(), "functions")
	case *syntax.ArithmCmd, *syntax.LetClause:
		return nil, l.unsupported(cmd.Pos(), "arithmetic commands")
	case *syntax.TestClause:
		return nil, l.unsupported(cmd.Pos(), "test clauses")
	case *syntax.DeclClause:
		return nil, l.unsupported(cmd.Pos(), "declarations")
	case *syntax.TimeClause:
		return nil, l.unsupported(cmd.Pos(), "time clauses")
	case *syntax.CoprocClause:
		return nil, l.unsupported(cmd.Pos(), "coprocesses")
	}
	return nil, l.unsupported(cmd.Pos(), fmt.Sprintf("%T commands", cmd))
}

func (l *lowerer) call(ce *syntax.CallExpr) (*tree.Command, error) {
	if len(ce.Assigns) > 0 {
		return nil, l.unsupported(ce.Assigns[0].Pos(), "variable assignments")
	}
	args := make([]string, len(ce.Args))
	for i, word := range ce.Args {
		lit, err := l.literal(word)
		if err != nil {
			return nil, err
		}
		args[i] = lit
	}
	if len(args) == 0 || args[0] == "" {
		return nil, l.unsupported(ce.Pos(), "empty program names")
	}
	return &tree.Command{Program: args[0], Argv: args}, nil
}

// pipeLeg lowers one side of a pipe, which must be a plain command.
func (l *lowerer) pipeLeg(s *syntax.Stmt) (*tree.Command, error) {
	switch {
	case s.Negated:
		return nil, l.unsupported(s.Pos(), "negated commands")
	case len(s.Redirs) > 0:
		return nil, l.unsupported(s.Redirs[0].Pos(), "redirects on pipe commands")
	}
	switch cmd := s.Cmd.(type) {
	case *syntax.CallExpr:
		return l.call(cmd)
	case *syntax.BinaryCmd:
		if cmd.Op == syntax.Pipe || cmd.Op == syntax.PipeAll {
			return nil, l.unsupported(cmd.OpPos, "pipelines of more than two commands")
		}
	}
	return nil, l.unsupported(s.Pos(), "compound commands in pipes")
}

func (l *lowerer) redirect(rd *syntax.Redirect, child tree.Node) (tree.Node, error) {
	node := &tree.Redirect{Child: child, Fd: 1}
	switch rd.Op {
	case syntax.RdrOut, syntax.ClbOut:
		node.Mode = tree.Truncate
	case syntax.AppOut:
		node.Mode = tree.Append
	case syntax.RdrIn, syntax.RdrInOut:
		node.Mode = tree.ReadWrite
		node.Fd = 0
	case syntax.DplOut:
		node.Mode = tree.Duplicate
	case syntax.DplIn:
		node.Mode = tree.Duplicate
		node.Fd = 0
	case syntax.Hdoc, syntax.DashHdoc, syntax.WordHdoc:
		return nil, l.unsupported(rd.Pos(), "heredocs")
	default:
		return nil, l.unsupported(rd.Pos(), rd.Op.String()+" redirects")
	}
	if rd.N != nil {
		fd, err := strconv.Atoi(rd.N.Value)
		if err != nil {
			return nil, l.unsupported(rd.N.Pos(), "named descriptors")
		}
		node.Fd = fd
	}
	word, err := l.literal(rd.Word)
	if err != nil {
		return nil, err
	}
	if node.Mode != tree.Duplicate {
		node.Path = word
		return node, nil
	}
	if word == "-" {
		return nil, l.unsupported(rd.Pos(), "descriptor closing redirects")
	}
	source, err := strconv.Atoi(word)
	if err != nil || source < 0 {
		return nil, l.unsupported(rd.Word.Pos(), "duplicate redirects to files")
	}
	node.Source = source
	return node, nil
}

var errExpansion = errors.New("expansion")

// literal returns the value of a word made up only of literal text, which
// may be quoted.
func (l *lowerer) literal(w *syntax.Word) (string, error) {
	var sb strings.Builder
	for _, part := range w.Parts {
		if err := literalPart(&sb, part); err != nil {
			return "", l.unsupported(part.Pos(), "expansions")
		}
	}
	return sb.String(), nil
}

func literalPart(sb *strings.Builder, part syntax.WordPart) error {
	switch part := part.(type) {
	case *syntax.Lit:
		unescape(sb, part.Value, false)
	case *syntax.SglQuoted:
		if part.Dollar {
			return errExpansion
		}
		sb.WriteString(part.Value)
	case *syntax.DblQuoted:
		if part.Dollar {
			return errExpansion
		}
		for _, inner := range part.Parts {
			lit, ok := inner.(*syntax.Lit)
			if !ok {
				return errExpansion
			}
			unescape(sb, lit.Value, true)
		}
	default:
		return errExpansion
	}
	return nil
}

// unescape removes the backslashes quoting the following character.
// Inside double quotes, only a few characters can be quoted.
func unescape(sb *strings.Builder, s string, dquoted bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch {
		case next == '\n':
			i++ // line continuation
		case !dquoted || strings.IndexByte("$`\"\\", next) >= 0:
			sb.WriteByte(next)
			i++
		default:
			sb.WriteByte(c)
		}
	}
}
