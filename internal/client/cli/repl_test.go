package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	err   error
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	return f.err
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Login(_ context.Context, args []string) error {
	f.loggedIn = true
	return f.record("login", args)
}
func (f *fakeExec) Logout(context.Context) error {
	f.loggedIn = false
	return f.record("logout", nil)
}
func (f *fakeExec) Whoami(context.Context) error { return f.record("whoami", nil) }
func (f *fakeExec) Users(_ context.Context, args []string) error {
	return f.record("users", args)
}
func (f *fakeExec) AddUser(_ context.Context, args []string) error {
	return f.record("adduser", args)
}
func (f *fakeExec) SetLevel(_ context.Context, args []string) error {
	return f.record("setlevel", args)
}
func (f *fakeExec) Passwd(_ context.Context, args []string) error {
	return f.record("passwd", args)
}
func (f *fakeExec) DelUser(_ context.Context, args []string) error {
	return f.record("deluser", args)
}

func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSpace(fmt.Sprintln(a...)))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &lines
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	lines := capturePrintln(t)

	input := strings.Join([]string{
		"help",
		"login bob",
		"",
		"help",
		"whoami",
		"users * write",
		"adduser carol read",
		"setlevel carol write",
		"passwd",
		"passwd carol",
		"deluser carol",
		"logout",
		"exit",
		"whoami",
	}, "\n") + "\n"

	f := &fakeExec{}
	runREPL(context.Background(), f, func() string { return "" }, bufio.NewReader(strings.NewReader(input)))

	want := []string{
		"login bob",
		"whoami",
		"users * write",
		"adduser carol read",
		"setlevel carol write",
		"passwd",
		"passwd carol",
		"deluser carol",
		"logout",
	}
	if strings.Join(f.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", f.calls, want)
	}

	out := strings.Join(*lines, "\n")
	if !strings.Contains(out, "Available commands: login, whoami, exit") {
		t.Fatalf("missing logged-out help in %q", out)
	}
	if !strings.Contains(out, "Available commands: whoami, users") {
		t.Fatalf("missing logged-in help in %q", out)
	}
	if !strings.HasSuffix(out, "Bye!") {
		t.Fatalf("REPL should stop at exit, output %q", out)
	}
}

func TestRunREPL_PrintsErrorsAndUnknown(t *testing.T) {
	lines := capturePrintln(t)

	f := &fakeExec{err: errors.New("forbidden")}
	runREPL(context.Background(), f, func() string { return " (bob)" }, bufio.NewReader(strings.NewReader("frobnicate\ndeluser x")))

	out := strings.Join(*lines, "\n")
	for _, want := range []string{"clautod (bob)>", "Unknown command: frobnicate", "error: forbidden"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if len(f.calls) != 1 {
		t.Fatalf("calls = %v", f.calls)
	}
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	capturePrintln(t)
	f := &fakeExec{}
	runREPL(context.Background(), f, func() string { return "" }, bufio.NewReader(strings.NewReader("")))
	if len(f.calls) != 0 {
		t.Fatalf("calls = %v", f.calls)
	}
}
