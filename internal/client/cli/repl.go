package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) error
	Users(ctx context.Context, args []string) error
	AddUser(ctx context.Context, args []string) error
	SetLevel(ctx context.Context, args []string) error
	Passwd(ctx context.Context, args []string) error
	DelUser(ctx context.Context, args []string) error
}

// runREPL reads a line from reader, parses the first token as the command
// and dispatches the rest as arguments. The loop exits on EOF or when the
// user types "exit" or "quit".
//
//	Not logged in:
//	  help, login [username], whoami, exit
//
//	Logged in:
//	  help, whoami, users [username] [level], adduser [username] [level],
//	  setlevel <username> <level>, passwd [username], deluser <username>,
//	  logout, exit
//
// Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("clautod%s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, users, adduser, setlevel, passwd, deluser, logout, exit")
			} else {
				printlnFn("Available commands: login, whoami, exit")
			}

		case "login":
			cmdErr = a.Login(ctx, args)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "whoami":
			cmdErr = a.Whoami(ctx)

		case "users":
			cmdErr = a.Users(ctx, args)

		case "adduser":
			cmdErr = a.AddUser(ctx, args)

		case "setlevel":
			cmdErr = a.SetLevel(ctx, args)

		case "passwd":
			cmdErr = a.Passwd(ctx, args)

		case "deluser":
			cmdErr = a.DelUser(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("error:", cmdErr)
		}
	}
}
