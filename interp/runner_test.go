// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/go-quicktest/qt"
	"github.com/google/go-cmp/cmp"

	"mvdan.cc/vush/tree"
)

// fakeSystem simulates a process's descriptor table, current directory, and
// children. Every effect is recorded as a line in events.
type fakeSystem struct {
	reg *Registry

	fds     map[int]string // what each open descriptor refers to
	nextPid int
	events  []string

	status  map[string]int  // exit status by program or subtree
	missing map[string]bool // programs which cannot be launched
	exists  map[string]bool // files which can be opened without O_CREATE
	dirs    map[string]bool
	cwd     string

	onWait func(pid int)
	byPid  map[int]string
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		fds:     map[int]string{0: "stdin", 1: "stdout", 2: "stderr"},
		nextPid: 100,
		status:  map[string]int{},
		missing: map[string]bool{},
		exists:  map[string]bool{},
		dirs:    map[string]bool{"/": true},
		cwd:     "/",
		byPid:   map[int]string{},
	}
}

func (s *fakeSystem) logf(format string, a ...any) {
	s.events = append(s.events, fmt.Sprintf(format, a...))
}

func (s *fakeSystem) alloc(lowest int, desc string) int {
	fd := lowest
	for s.fds[fd] != "" {
		fd++
	}
	s.fds[fd] = desc
	return fd
}

func (s *fakeSystem) describe(files []int) string {
	descs := make([]string, len(files))
	for i, fd := range files {
		switch desc := s.fds[fd]; {
		case fd == ClosedFD:
			descs[i] = "-"
		case desc == "":
			descs[i] = fmt.Sprintf("bad(%d)", fd)
		default:
			descs[i] = desc
		}
	}
	return "[" + strings.Join(descs, " ") + "]"
}

func (s *fakeSystem) start(name string, files []int, suffix string) int {
	pid := s.nextPid
	s.nextPid++
	s.byPid[pid] = name
	s.logf("start %s %s%s", name, s.describe(files), suffix)
	return pid
}

func (s *fakeSystem) StartProcess(program string, argv []string, files []int) (int, error) {
	if s.missing[program] {
		return 0, exec.ErrNotFound
	}
	return s.start((&tree.Command{Program: program, Argv: argv}).String(), files, ""), nil
}

func (s *fakeSystem) StartSubtree(node tree.Node, files []int, detach bool) (int, error) {
	suffix := ""
	if detach {
		suffix = " detached"
	}
	return s.start("("+node.String()+")", files, suffix), nil
}

func (s *fakeSystem) Wait(pid int) (int, error) {
	var regs []int
	if s.reg != nil {
		regs = s.reg.Pids()
	}
	s.logf("wait %d %v", pid, regs)
	if s.onWait != nil {
		s.onWait(pid)
	}
	return s.status[s.byPid[pid]], nil
}

func (s *fakeSystem) Reap(pid int) { s.logf("reap %d", pid) }

func (s *fakeSystem) Pipe() (int, int, error) {
	r := s.alloc(3, "pipe-r")
	w := s.alloc(3, "pipe-w")
	return r, w, nil
}

func (s *fakeSystem) Dup(fd int) (int, error) {
	desc := s.fds[fd]
	if desc == "" {
		return -1, syscall.EBADF
	}
	nfd := s.alloc(10, desc)
	s.logf("dup %d %d", fd, nfd)
	return nfd, nil
}

func (s *fakeSystem) Dup2(from, to int) error {
	desc := s.fds[from]
	if desc == "" {
		return syscall.EBADF
	}
	s.fds[to] = desc
	s.logf("dup2 %d %d", from, to)
	return nil
}

func (s *fakeSystem) Open(path string, flag int, perm uint32) (int, error) {
	var mode []string
	if flag&os.O_RDWR != 0 {
		mode = append(mode, "rdwr")
	}
	if flag&os.O_CREATE != 0 {
		mode = append(mode, fmt.Sprintf("creat(%#o)", perm))
	}
	if flag&os.O_TRUNC != 0 {
		mode = append(mode, "trunc")
	}
	if flag&os.O_APPEND != 0 {
		mode = append(mode, "append")
	}
	if flag&os.O_CREATE == 0 && !s.exists[path] {
		return -1, &fs.PathError{Op: "open", Path: path, Err: syscall.ENOENT}
	}
	s.exists[path] = true
	fd := s.alloc(0, path)
	s.logf("open %s %s %d", path, strings.Join(mode, "|"), fd)
	return fd, nil
}

func (s *fakeSystem) Close(fd int) error {
	if s.fds[fd] == "" {
		return syscall.EBADF
	}
	delete(s.fds, fd)
	s.logf("close %d", fd)
	return nil
}

func (s *fakeSystem) Chdir(dir string) error {
	if !s.dirs[dir] {
		return &fs.PathError{Op: "chdir", Path: dir, Err: syscall.ENOENT}
	}
	s.cwd = dir
	return nil
}

var notFound = "vush: nosuch: " + exec.ErrNotFound.Error() + "\n"

var runTests = []struct {
	name  string
	setup func(*fakeSystem)
	node  tree.Node

	want       []string
	wantStatus int
	wantStderr string
	wantErr    string
	wantCwd    string
}{
	{
		name: "Command",
		node: tree.Cmd("ls", "-l"),
		want: []string{
			"start ls -l [stdin stdout stderr]",
			"wait 100 [100]",
		},
	},
	{
		name:  "CommandStatus",
		setup: func(s *fakeSystem) { s.status["false"] = 1 },
		node:  tree.Cmd("false"),
		want: []string{
			"start false [stdin stdout stderr]",
			"wait 100 [100]",
		},
		wantStatus: 1,
	},
	{
		name:  "SequenceIgnoresStatus",
		setup: func(s *fakeSystem) { s.status["false"] = 1 },
		node:  tree.Seq(tree.Cmd("false"), tree.Cmd("true")),
		want: []string{
			"start false [stdin stdout stderr]",
			"wait 100 [100]",
			"start true [stdin stdout stderr]",
			"wait 101 [101]",
		},
	},
	{
		name:       "LaunchFailure",
		setup:      func(s *fakeSystem) { s.missing["nosuch"] = true },
		node:       tree.Seq(tree.Cmd("nosuch", "arg"), tree.Cmd("true")),
		want:       []string{"start true [stdin stdout stderr]", "wait 100 [100]"},
		wantStderr: notFound,
	},
	{
		name:       "LaunchFailureLast",
		setup:      func(s *fakeSystem) { s.missing["nosuch"] = true },
		node:       tree.Cmd("nosuch"),
		wantStatus: int(syscall.ENOENT),
		wantStderr: notFound,
	},
	{
		name:  "Pipe",
		setup: func(s *fakeSystem) { s.status["wc -c"] = 3 },
		node:  &tree.Pipe{Left: tree.Cmd("echo", "ab"), Right: tree.Cmd("wc", "-c")},
		want: []string{
			"start echo ab [stdin pipe-w stderr]",
			"start wc -c [pipe-r stdout stderr]",
			"close 3",
			"close 4",
			"wait 101 [100 101]",
			"wait 100 [100]",
		},
		wantStatus: 3,
	},
	{
		name:  "PipeLeftStatusIgnored",
		setup: func(s *fakeSystem) { s.status["false"] = 1 },
		node:  &tree.Pipe{Left: tree.Cmd("false"), Right: tree.Cmd("cat")},
		want: []string{
			"start false [stdin pipe-w stderr]",
			"start cat [pipe-r stdout stderr]",
			"close 3",
			"close 4",
			"wait 101 [100 101]",
			"wait 100 [100]",
		},
	},
	{
		name:  "PipeLeftMissing",
		setup: func(s *fakeSystem) { s.missing["nosuch"] = true },
		node:  &tree.Pipe{Left: tree.Cmd("nosuch"), Right: tree.Cmd("wc", "-c")},
		want: []string{
			"start wc -c [pipe-r stdout stderr]",
			"close 3",
			"close 4",
			"wait 100 [100]",
		},
		wantStderr: notFound,
	},
	{
		name:  "PipeRightMissing",
		setup: func(s *fakeSystem) { s.missing["nosuch"] = true },
		node:  &tree.Pipe{Left: tree.Cmd("echo"), Right: tree.Cmd("nosuch")},
		want: []string{
			"start echo [stdin pipe-w stderr]",
			"close 3",
			"close 4",
			"wait 100 [100]",
		},
		wantStatus: int(syscall.ENOENT),
		wantStderr: notFound,
	},
	{
		name:  "PipeBuiltinLegs",
		setup: func(s *fakeSystem) { s.status["(exit 3)"] = 3 },
		node:  &tree.Pipe{Left: tree.Cmd("cd", "/"), Right: tree.Cmd("exit", "3")},
		want: []string{
			"start (cd /) [stdin pipe-w stderr]",
			"start (exit 3) [pipe-r stdout stderr]",
			"close 3",
			"close 4",
			"wait 101 [100 101]",
			"wait 100 [100]",
		},
		wantStatus: 3,
	},
	{
		name: "RedirectTruncate",
		node: &tree.Redirect{Child: tree.Cmd("pwd"), Fd: 1, Mode: tree.Truncate, Path: "out.txt"},
		want: []string{
			"dup 1 10",
			"open out.txt rdwr|creat(0600)|trunc 3",
			"dup2 3 1",
			"close 3",
			"start pwd [stdin out.txt stderr]",
			"wait 100 [100]",
			"dup2 10 1",
			"close 10",
		},
	},
	{
		name: "RedirectAppend",
		setup: func(s *fakeSystem) {
			s.exists["log"] = true
		},
		node: &tree.Redirect{Child: tree.Cmd("date"), Fd: 2, Mode: tree.Append, Path: "log"},
		want: []string{
			"dup 2 10",
			"open log rdwr|append 3",
			"dup2 3 2",
			"close 3",
			"start date [stdin stdout log]",
			"wait 100 [100]",
			"dup2 10 2",
			"close 10",
		},
	},
	{
		name:       "RedirectAppendMissing",
		node:       &tree.Redirect{Child: tree.Cmd("date"), Fd: 1, Mode: tree.Append, Path: "log"},
		want:       []string{"dup 1 10", "close 10"},
		wantStatus: 1,
		wantStderr: "vush: open log: no such file or directory\n",
	},
	{
		name: "RedirectDuplicate",
		node: &tree.Redirect{Child: tree.Cmd("ls"), Fd: 2, Mode: tree.Duplicate, Source: 1},
		want: []string{
			"dup 2 10",
			"dup2 1 2",
			"start ls [stdin stdout stdout]",
			"wait 100 [100]",
			"dup2 10 2",
			"close 10",
		},
	},
	{
		name:       "RedirectDuplicateClosed",
		node:       &tree.Redirect{Child: tree.Cmd("ls"), Fd: 2, Mode: tree.Duplicate, Source: 7},
		want:       []string{"dup 2 10", "close 10"},
		wantStatus: 1,
		wantStderr: "vush: 7: bad file descriptor\n",
	},
	{
		name: "RedirectClosedDescriptor",
		setup: func(s *fakeSystem) {
			s.exists["in.txt"] = true
		},
		node: &tree.Redirect{Child: tree.Cmd("cat"), Fd: 5, Mode: tree.ReadWrite, Path: "in.txt"},
		want: []string{
			"open in.txt rdwr 3",
			"start cat [stdin stdout stderr - - in.txt]",
			"wait 100 [100]",
			"close 3",
		},
	},
	{
		name: "RedirectHighReusesClosedStdin",
		setup: func(s *fakeSystem) {
			s.exists["in.txt"] = true
			delete(s.fds, 0)
		},
		node: &tree.Redirect{Child: tree.Cmd("cat"), Fd: 3, Mode: tree.ReadWrite, Path: "in.txt"},
		want: []string{
			"open in.txt rdwr 0",
			"dup 0 10",
			"close 0",
			"start cat [bad(0) stdout stderr in.txt]",
			"wait 100 [100]",
			"close 10",
		},
	},
	{
		name: "RedirectReusesClosedStdin",
		setup: func(s *fakeSystem) {
			s.exists["in.txt"] = true
			delete(s.fds, 0)
		},
		node: tree.Seq(
			&tree.Redirect{Child: tree.Cmd("cat"), Fd: 0, Mode: tree.ReadWrite, Path: "in.txt"},
			tree.Cmd("true"),
		),
		want: []string{
			"open in.txt rdwr 0",
			"start cat [in.txt stdout stderr]",
			"wait 100 [100]",
			"close 0",
			"start true [bad(0) stdout stderr]",
			"wait 101 [101]",
		},
	},
	{
		name: "RedirectNested",
		node: &tree.Redirect{
			Child: &tree.Redirect{
				Child: tree.Cmd("make"),
				Fd:    2, Mode: tree.Duplicate, Source: 1,
			},
			Fd: 1, Mode: tree.Truncate, Path: "build.log",
		},
		want: []string{
			"dup 1 10",
			"open build.log rdwr|creat(0600)|trunc 3",
			"dup2 3 1",
			"close 3",
			"dup 2 11",
			"dup2 1 2",
			"start make [stdin build.log build.log]",
			"wait 100 [100]",
			"dup2 11 2",
			"close 11",
			"dup2 10 1",
			"close 10",
		},
	},
	{
		name:  "RedirectRestoredAfterFailure",
		setup: func(s *fakeSystem) { s.missing["nosuch"] = true },
		node: tree.Seq(
			&tree.Redirect{Child: tree.Cmd("nosuch"), Fd: 1, Mode: tree.Truncate, Path: "out"},
			tree.Cmd("ls"),
		),
		want: []string{
			"dup 1 10",
			"open out rdwr|creat(0600)|trunc 3",
			"dup2 3 1",
			"close 3",
			"dup2 10 1",
			"close 10",
			"start ls [stdin stdout stderr]",
			"wait 100 [100]",
		},
		wantStderr: notFound,
	},
	{
		name: "RedirectHighDescriptorInherited",
		node: &tree.Redirect{
			Child: &tree.Pipe{Left: tree.Cmd("a"), Right: tree.Cmd("b")},
			Fd:    4, Mode: tree.Truncate, Path: "trace",
		},
		want: []string{
			"open trace rdwr|creat(0600)|trunc 3",
			"start a [stdin pipe-w stderr - trace]",
			"start b [pipe-r stdout stderr - trace]",
			"close 4",
			"close 5",
			"wait 101 [100 101]",
			"wait 100 [100]",
			"close 3",
		},
	},
	{
		// The interpreter's own 3 and 4 are left alone.
		name: "RedirectThreeAndFour",
		node: &tree.Redirect{
			Child: &tree.Redirect{
				Child: tree.Cmd("sleep", "2"),
				Fd:    4, Mode: tree.Truncate, Path: "g",
			},
			Fd: 3, Mode: tree.Truncate, Path: "f",
		},
		want: []string{
			"open f rdwr|creat(0600)|trunc 3",
			"open g rdwr|creat(0600)|trunc 4",
			"start sleep 2 [stdin stdout stderr f g]",
			"wait 100 [100]",
			"close 4",
			"close 3",
		},
	},
	{
		name: "RedirectHighShadowed",
		node: &tree.Redirect{
			Child: tree.Seq(
				&tree.Redirect{Child: tree.Cmd("a"), Fd: 3, Mode: tree.Truncate, Path: "inner"},
				tree.Cmd("b"),
			),
			Fd: 3, Mode: tree.Truncate, Path: "outer",
		},
		want: []string{
			"open outer rdwr|creat(0600)|trunc 3",
			"open inner rdwr|creat(0600)|trunc 4",
			"start a [stdin stdout stderr inner]",
			"wait 100 [100]",
			"close 4",
			"start b [stdin stdout stderr outer]",
			"wait 101 [101]",
			"close 3",
		},
	},
	{
		name: "RedirectStdinFromHigh",
		setup: func(s *fakeSystem) {
			s.exists["in.txt"] = true
		},
		node: &tree.Redirect{
			Child: &tree.Redirect{Child: tree.Cmd("cat"), Fd: 0, Mode: tree.Duplicate, Source: 3},
			Fd:    3, Mode: tree.ReadWrite, Path: "in.txt",
		},
		want: []string{
			"open in.txt rdwr 3",
			"dup 0 10",
			"dup2 3 0",
			"start cat [in.txt stdout stderr in.txt]",
			"wait 100 [100]",
			"dup2 10 0",
			"close 10",
			"close 3",
		},
	},
	{
		// 4>&1 copies what stdout was, not what it becomes later.
		name: "RedirectHighDuplicate",
		node: &tree.Redirect{
			Child: &tree.Redirect{Child: tree.Cmd("ls"), Fd: 1, Mode: tree.Truncate, Path: "out"},
			Fd:    4, Mode: tree.Duplicate, Source: 1,
		},
		want: []string{
			"dup 1 10",
			"dup 1 11",
			"open out rdwr|creat(0600)|trunc 3",
			"dup2 3 1",
			"close 3",
			"start ls [stdin out stderr - stdout]",
			"wait 100 [100]",
			"dup2 11 1",
			"close 11",
			"close 10",
		},
	},
	{
		// Descriptors above 2 only exist within their Redirect scope.
		name:       "RedirectHighDuplicateUnknown",
		node:       &tree.Redirect{Child: tree.Cmd("ls"), Fd: 3, Mode: tree.Duplicate, Source: 7},
		wantStatus: 1,
		wantStderr: "vush: 7: bad file descriptor\n",
	},
	{
		name:  "Subshell",
		setup: func(s *fakeSystem) { s.status["(cd /tmp; exit 5)"] = 5 },
		node:  &tree.Subshell{Child: tree.Seq(tree.Cmd("cd", "/tmp"), tree.Cmd("exit", "5"))},
		want: []string{
			"start (cd /tmp; exit 5) [stdin stdout stderr]",
			"wait 100 [100]",
		},
		wantStatus: 5,
	},
	{
		name: "Detach",
		node: tree.Seq(&tree.Detach{Child: tree.Cmd("sleep", "1")}, tree.Cmd("ls")),
		want: []string{
			"start (sleep 1) [stdin stdout stderr] detached",
			"reap 100",
			"start ls [stdin stdout stderr]",
			"wait 101 [101]",
		},
	},
	{
		name:       "Exit",
		node:       tree.Seq(tree.Cmd("exit", "7"), tree.Cmd("ls")),
		wantStatus: 7,
		wantErr:    "exit status 7",
	},
	{
		name:    "ExitDefault",
		node:    tree.Cmd("exit"),
		wantErr: "exit status 0",
	},
	{
		name:    "ExitNotNumeric",
		node:    tree.Cmd("exit", "abc"),
		wantErr: "exit status 0",
	},
	{
		name:       "ExitTrailingGarbage",
		node:       tree.Cmd("exit", "12abc"),
		wantStatus: 12,
		wantErr:    "exit status 12",
	},
	{
		name:       "ExitWraps",
		node:       tree.Cmd("exit", "300"),
		wantStatus: 44,
		wantErr:    "exit status 44",
	},
	{
		name:       "ExitNegative",
		node:       tree.Cmd("exit", "-1"),
		wantStatus: 255,
		wantErr:    "exit status 255",
	},
	{
		name: "ExitInsideRedirect",
		node: tree.Seq(
			&tree.Redirect{
				Child: tree.Seq(tree.Cmd("exit", "4"), tree.Cmd("ls")),
				Fd:    1, Mode: tree.Truncate, Path: "out",
			},
			tree.Cmd("ls"),
		),
		want: []string{
			"dup 1 10",
			"open out rdwr|creat(0600)|trunc 3",
			"dup2 3 1",
			"close 3",
			"dup2 10 1",
			"close 10",
		},
		wantStatus: 4,
		wantErr:    "exit status 4",
	},
	{
		name:    "Cd",
		setup:   func(s *fakeSystem) { s.dirs["/tmp"] = true },
		node:    tree.Cmd("cd", "/tmp"),
		wantCwd: "/tmp",
	},
	{
		name:    "CdHome",
		setup:   func(s *fakeSystem) { s.dirs["/home/gopher"] = true },
		node:    tree.Cmd("cd"),
		wantCwd: "/home/gopher",
	},
	{
		name: "CdFailure",
		node: tree.Seq(tree.Cmd("cd", "/nope"), tree.Cmd("ls")),
		want: []string{
			"start ls [stdin stdout stderr]",
			"wait 100 [100]",
		},
		wantStderr: "vush: cd: /nope: no such file or directory\n",
	},
	{
		name:       "CdFailureStatus",
		node:       tree.Cmd("cd", "/nope"),
		wantStatus: 1,
		wantStderr: "vush: cd: /nope: no such file or directory\n",
	},
	{
		name:    "Invalid",
		node:    tree.Seq(tree.Cmd("ls"), &tree.Command{Program: "ls"}),
		wantErr: "invalid command tree: ls: empty argument vector",
	},
}

func TestRun(t *testing.T) {
	t.Parallel()
	for _, test := range runTests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			sys := newFakeSystem()
			if test.setup != nil {
				test.setup(sys)
			}
			_, hadStdin := sys.fds[0]
			reg := NewRegistry(DefaultCapacity)
			reg.kill = func(int, syscall.Signal) error { return nil }
			sys.reg = reg
			var stderr strings.Builder
			r, err := New(
				WithSystem(sys),
				WithRegistry(reg),
				Stderr(&stderr),
				Getenv(func(name string) string {
					if name == "HOME" {
						return "/home/gopher"
					}
					return ""
				}),
			)
			qt.Assert(t, qt.IsNil(err))

			err = r.Run(context.Background(), test.node)
			if test.wantErr != "" {
				qt.Assert(t, qt.ErrorMatches(err, test.wantErr))
			} else {
				qt.Assert(t, qt.IsNil(err))
			}
			qt.Assert(t, qt.CmpEquals(sys.events, test.want, cmpEmpty))
			qt.Assert(t, qt.Equals(r.LastStatus(), test.wantStatus))
			qt.Assert(t, qt.Equals(stderr.String(), test.wantStderr))
			wantCwd := test.wantCwd
			if wantCwd == "" {
				wantCwd = "/"
			}
			qt.Assert(t, qt.Equals(sys.cwd, wantCwd))
			qt.Assert(t, qt.Equals(reg.Len(), 0))

			// No descriptor leaks, and the originals are back in place.
			want := map[int]string{0: "stdin", 1: "stdout", 2: "stderr"}
			if !hadStdin {
				delete(want, 0)
			}
			qt.Assert(t, qt.DeepEquals(sys.fds, want))
		})
	}
}

// cmpEmpty treats nil and empty slices as equal.
var cmpEmpty = cmp.FilterValues(func(x, y []string) bool {
	return len(x) == 0 && len(y) == 0
}, cmp.Ignore())

func TestRunExited(t *testing.T) {
	t.Parallel()
	r, err := New(WithSystem(newFakeSystem()))
	qt.Assert(t, qt.IsNil(err))
	ctx := context.Background()

	err = r.Run(ctx, tree.Cmd("exit", "3"))
	qt.Assert(t, qt.Equals(err, error(ExitStatus(3))))
	qt.Assert(t, qt.IsTrue(r.Exited()))

	// A Runner can be reused, e.g. by a caller which chose not to exit.
	err = r.Run(ctx, tree.Cmd("true"))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsFalse(r.Exited()))
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()
	sys := newFakeSystem()
	r, err := New(WithSystem(sys))
	qt.Assert(t, qt.IsNil(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Run(ctx, tree.Cmd("ls"))
	qt.Assert(t, qt.ErrorIs(err, context.Canceled))
	qt.Assert(t, qt.HasLen(sys.events, 0))
}

func TestRunCanceledWhileWaiting(t *testing.T) {
	t.Parallel()
	sys := newFakeSystem()
	reg := NewRegistry(DefaultCapacity)
	sent := make(chan killed, 2)
	reg.kill = func(pid int, sig syscall.Signal) error {
		sent <- killed{pid, sig}
		return nil
	}
	sys.reg = reg
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sys.onWait = func(pid int) {
		cancel()
		// The interrupt arrives while both legs are still registered.
		for range 2 {
			select {
			case k := <-sent:
				if k.sig != syscall.SIGINT {
					t.Errorf("unexpected signal %v", k.sig)
				}
			case <-time.After(10 * time.Second):
				t.Errorf("timed out waiting for an interrupt")
				return
			}
		}
		sys.onWait = nil
	}
	sys.status["sleep 30"] = 128 + int(syscall.SIGINT)
	r, err := New(WithSystem(sys), WithRegistry(reg))
	qt.Assert(t, qt.IsNil(err))

	err = r.Run(ctx, tree.Seq(
		&tree.Pipe{Left: tree.Cmd("sleep", "30"), Right: tree.Cmd("sleep", "30")},
		tree.Cmd("ls"),
	))
	qt.Assert(t, qt.ErrorIs(err, context.Canceled))
	qt.Assert(t, qt.Equals(r.LastStatus(), 130))
	qt.Assert(t, qt.Equals(reg.Len(), 0))
	qt.Assert(t, qt.DeepEquals(sys.events, []string{
		"start sleep 30 [stdin pipe-w stderr]",
		"start sleep 30 [pipe-r stdout stderr]",
		"close 3",
		"close 4",
		"wait 101 [100 101]",
		"wait 100 [100]",
	}))
}

func TestNewErrors(t *testing.T) {
	t.Parallel()
	_, err := New(WithSystem(nil))
	qt.Assert(t, qt.ErrorMatches(err, `interp.WithSystem: nil System`))
	_, err = New(WithRegistry(nil))
	qt.Assert(t, qt.ErrorMatches(err, `interp.WithRegistry: nil Registry`))
}

func TestAtoi(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"0", 0},
		{"42", 42},
		{"+5", 5},
		{"-3", -3},
		{"7x", 7},
		{"x7", 0},
		{"-", 0},
		{" 1", 0},
	}
	for _, test := range tests {
		qt.Check(t, qt.Equals(atoi(test.in), test.want), qt.Commentf("atoi(%q)", test.in))
	}
}

func TestSubtreeEnviron(t *testing.T) {
	t.Parallel()
	env := []string{"HOME=/root", subtreeEnv + "=old", inheritedEnv + "=9", "PATH=/bin"}
	got := subtreeEnviron(env, `{"Type":"Command"}`, []int{0, 1, 2})
	qt.Assert(t, qt.DeepEquals(got, []string{
		"HOME=/root",
		"PATH=/bin",
		subtreeEnv + `={"Type":"Command"}`,
	}))
	qt.Assert(t, qt.Equals(env[1], subtreeEnv+"=old"))

	got = subtreeEnviron(env, `{}`, []int{0, 1, 2, ClosedFD, 12, 13})
	qt.Assert(t, qt.DeepEquals(got, []string{
		"HOME=/root",
		"PATH=/bin",
		subtreeEnv + `={}`,
		inheritedEnv + "=4,5",
	}))
}

func TestParseInherited(t *testing.T) {
	t.Parallel()
	fds, err := parseInherited("")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(fds, 0))

	fds, err = parseInherited("3,63")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(fds, []int{3, 63}))

	for _, bad := range []string{"x", "2", "3,", "-1"} {
		_, err := parseInherited(bad)
		qt.Check(t, qt.ErrorMatches(err, `invalid descriptor .*`), qt.Commentf("%q", bad))
	}
}

func TestLaunchStatus(t *testing.T) {
	t.Parallel()
	qt.Assert(t, qt.Equals(launchStatus(exec.ErrNotFound), int(syscall.ENOENT)))
	qt.Assert(t, qt.Equals(launchStatus(syscall.EACCES), int(syscall.EACCES)))
	qt.Assert(t, qt.Equals(launchStatus(&fs.PathError{Op: "fork/exec", Path: "x", Err: syscall.ENOEXEC}), int(syscall.ENOEXEC)))
	qt.Assert(t, qt.Equals(launchStatus(fs.ErrPermission), int(syscall.EACCES)))
	qt.Assert(t, qt.Equals(launchStatus(fmt.Errorf("other")), 1))
}
