// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// vush is a small interactive shell. It runs simple commands, sequences,
// two-command pipes, redirections, subshells and background commands, with
// the cd and exit built-ins.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"golang.org/x/term"
	"mvdan.cc/sh/v3/syntax"

	"mvdan.cc/vush/internal/config"
	"mvdan.cc/vush/interp"
	"mvdan.cc/vush/parse"
)

var (
	command     = flag.String("c", "", "")
	configPath  = flag.String("config", "", "")
	debugLog    = flag.Bool("debug", false, "")
	initConfig  = flag.Bool("init", false, "")
	showVersion = flag.Bool("version", false, "")

	version = "(devel)" // to match the default from runtime/debug

	promptColor = color.New(color.FgBlue, color.Bold)
	errColor    = color.New(color.FgRed)
)

func main() {
	// Subshells and background commands re-execute this binary.
	interp.Init()
	os.Exit(main1())
}

func main1() int {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: vush [flags] [path ...]

Without arguments, commands are read from standard input, interactively if it
is a terminal.

  -c cmd       run the given command string
  -config str  configuration file (default $VUSH_CONFIG or the user config dir)
  -debug       log process handling to standard error
  -init        write the default configuration file
  -version     show version and exit
`)
	}
	flag.Parse()

	if *showVersion {
		// don't overwrite the version if it was set by -ldflags=-X
		if info, ok := debug.ReadBuildInfo(); ok && version == "(devel)" {
			mod := &info.Main
			if mod.Replace != nil {
				mod = mod.Replace
			}
			version = mod.Version
		}
		fmt.Println(version)
		return 0
	}

	path := *configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			fmt.Fprintf(os.Stderr, "vush: %v\n", err)
			return 1
		}
	}
	fsys := afero.NewOsFs()
	if *initConfig {
		return writeConfig(fsys, path)
	}
	cfg, err := config.Load(fsys, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vush: %v\n", err)
		return 1
	}
	color.NoColor = !cfg.UseColor(isTerminal(os.Stderr))

	level := cfg.Level()
	if *debugLog {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	reg := interp.NewRegistry(interp.DefaultCapacity)
	runner, err := interp.New(interp.WithRegistry(reg), interp.Logger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vush: %v\n", err)
		return 1
	}
	stop := interp.ForwardSignals(reg, syscall.SIGINT)
	defer stop()

	switch err := runAll(runner, cfg).(type) {
	case nil:
	case interp.ExitStatus:
		return int(err)
	default:
		errColor.Fprintf(os.Stderr, "vush: %v\n", err)
		var perr syntax.ParseError
		var uerr parse.UnsupportedError
		if errors.As(err, &perr) || errors.As(err, &uerr) {
			return 2
		}
		return 1
	}
	return runner.LastStatus()
}

func isTerminal(f *os.File) bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func writeConfig(fsys afero.Fs, path string) int {
	err := config.WriteDefault(path)
	if errors.Is(err, config.ErrExists) {
		fmt.Fprintf(os.Stderr, "vush: %v; differences with the default:\n", err)
		if err := config.DiffDefault(os.Stdout, fsys, path, isTerminal(os.Stdout)); err != nil {
			fmt.Fprintf(os.Stderr, "vush: %v\n", err)
		}
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vush: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "vush: wrote %s\n", path)
	return 0
}

func runAll(runner *interp.Runner, cfg *config.Config) error {
	if *command != "" {
		return run(runner, strings.NewReader(*command), "")
	}
	if flag.NArg() == 0 {
		if isTerminal(os.Stdin) {
			return interactive(runner, cfg)
		}
		return run(runner, os.Stdin, "")
	}
	for _, path := range flag.Args() {
		if err := runPath(runner, path); err != nil {
			return err
		}
	}
	return nil
}

func runPath(runner *interp.Runner, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return run(runner, f, path)
}

func run(runner *interp.Runner, reader io.Reader, name string) error {
	node, err := parse.Parse(reader, name)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}
	return runner.Run(context.Background(), node)
}

func interactive(runner *interp.Runner, cfg *config.Config) error {
	home, _ := os.UserHomeDir()
	prompt := promptColor.Sprint(cfg.Prompt)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 prompt,
		HistoryFile:            cfg.HistoryPath(home),
		DisableAutoSaveHistory: true,
		Stdin:                  readline.NewCancelableStdin(os.Stdin),
		Stdout:                 os.Stdout,
		Stderr:                 os.Stderr,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	var pending strings.Builder
	for {
		line, err := rl.Readline()
		switch {
		case err == readline.ErrInterrupt:
			// Discard the current line, along with any earlier incomplete ones.
			pending.Reset()
			rl.SetPrompt(prompt)
			continue
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}
		pending.WriteString(line)
		pending.WriteString("\n")
		src := pending.String()

		node, err := parse.Parse(strings.NewReader(src), "")
		if parse.IsIncomplete(err) {
			rl.SetPrompt("> ")
			continue
		}
		pending.Reset()
		rl.SetPrompt(prompt)
		if strings.TrimSpace(src) != "" {
			rl.SaveHistory(strings.TrimSuffix(src, "\n"))
		}
		if err != nil {
			errColor.Fprintf(rl.Stderr(), "vush: %v\n", err)
			continue
		}
		if node == nil {
			continue
		}
		if err := runner.Run(context.Background(), node); err != nil {
			return err
		}
	}
}
